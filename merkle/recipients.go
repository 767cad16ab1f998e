package merkle

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/rewards"
	"gopkg.in/yaml.v3"
)

// Format of a recipient list file
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return FormatCSV, nil
	case strings.HasSuffix(lower, ".json"):
		return FormatJSON, nil
	case strings.HasSuffix(lower, ".yaml"), strings.HasSuffix(lower, ".yml"):
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown recipient file format for %q, expected .csv, .json or .yaml", path)
}

type recipientEntry struct {
	Address string `json:"address" yaml:"address"`
	Amount  string `json:"amount" yaml:"amount"`
}

// ReadRecipients parses a recipient list. Amounts are whole token decimals
// unless wei is set, in which case they are raw base units. Indices are
// assigned in file order.
func ReadRecipients(r io.Reader, format Format, wei bool) ([]Recipient, error) {
	var entries []recipientEntry
	switch format {
	case FormatCSV:
		rows, err := csv.NewReader(r).ReadAll()
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			if len(row) != 2 {
				return nil, fmt.Errorf("line %d: expected 2 columns, found %d", i+1, len(row))
			}
			// optional header
			if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "address") {
				continue
			}
			entries = append(entries, recipientEntry{Address: row[0], Amount: row[1]})
		}
	case FormatJSON:
		d := json.NewDecoder(r)
		d.DisallowUnknownFields()
		if err := d.Decode(&entries); err != nil {
			return nil, err
		}
	case FormatYAML:
		d := yaml.NewDecoder(r)
		d.KnownFields(true)
		if err := d.Decode(&entries); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown recipient format %q", format)
	}

	recipients := make([]Recipient, 0, len(entries))
	for i, e := range entries {
		addr := strings.TrimSpace(e.Address)
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("recipient %d: invalid address %q", i, e.Address)
		}

		var amount *big.Int
		var err error
		if wei {
			amount, err = rewards.ParseUnits(e.Amount)
		} else {
			amount, err = rewards.ParseTokenAmount(e.Amount, rewards.TokenDecimals)
		}
		if err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}

		recipients = append(recipients, Recipient{
			Index:   uint64(len(recipients)),
			Address: common.HexToAddress(addr),
			Amount:  amount,
		})
	}
	return recipients, nil
}
