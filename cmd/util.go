package cmd

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/node"
	"github.com/scoutgame/scoutd/rewards"
	"github.com/spf13/cobra"
)

// ArgValidator checks a single positional argument.
type ArgValidator func(cmd *cobra.Command, arg string) error

// ArgsInOrder validates each positional argument with the validator at the
// same position. Extra arguments are not validated.
func ArgsInOrder(validators ...ArgValidator) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < len(validators) {
			return fmt.Errorf("expected %d arguments, found %d", len(validators), len(args))
		}
		for i, v := range validators {
			if err := v(cmd, args[i]); err != nil {
				return fmt.Errorf("argument %d: %w", i+1, err)
			}
		}
		return nil
	}
}

func ArgValidatorAddress(cmd *cobra.Command, arg string) error {
	if !common.IsHexAddress(arg) {
		return fmt.Errorf("%q is not a 0x prefixed 20 byte address", arg)
	}
	return nil
}

func ArgValidatorTxHash(cmd *cobra.Command, arg string) error {
	_, err := ParseTxHash(arg)
	return err
}

func ArgValidatorID(cmd *cobra.Command, arg string) error {
	_, err := ParseID(arg)
	return err
}

func ArgValidatorUint(cmd *cobra.Command, arg string) error {
	if _, err := strconv.ParseUint(arg, 10, 64); err != nil {
		return fmt.Errorf("%q is not a positive integer", arg)
	}
	return nil
}

// ParseID parses a positive database id.
func ParseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not a valid id", arg)
	}
	return id, nil
}

// ParseTxHash requires the full 32 byte hash, HexToHash would pad a short one.
func ParseTxHash(arg string) (common.Hash, error) {
	s := strings.TrimPrefix(strings.ToLower(arg), "0x")
	if len(s) != 64 {
		return common.Hash{}, fmt.Errorf("%q is not a 32 byte hex hash", arg)
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return common.Hash{}, fmt.Errorf("%q is not a 32 byte hex hash", arg)
		}
	}
	return common.HexToHash(s), nil
}

// ParseDonation accepts none, half or all, or the matching basis points.
func ParseDonation(arg string) (int64, error) {
	switch strings.ToLower(arg) {
	case "none", "0":
		return node.DonateNone, nil
	case "half", "5000":
		return node.DonateHalf, nil
	case "all", "10000":
		return node.DonateAll, nil
	}
	return 0, fmt.Errorf("donation must be none, half or all, found %q", arg)
}

// ParseExpiry accepts an RFC3339 time, or a duration from now. An empty string
// never expires.
func ParseExpiry(arg string, now time.Time) (time.Time, error) {
	if arg == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, arg); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(arg)
	if err != nil || d <= 0 {
		return time.Time{}, fmt.Errorf("expiry %q must be an RFC3339 time or a positive duration", arg)
	}
	return now.Add(d), nil
}

var weekPattern = regexp.MustCompile(`^[0-9]{4}-W[0-9]{2}$`)

func ArgValidatorWeek(cmd *cobra.Command, arg string) error {
	if arg == "current" || weekPattern.MatchString(arg) {
		return nil
	}
	return fmt.Errorf("week %q must look like 2025-W23", arg)
}

// ParseWeek resolves 'current' to the iso week of now.
func ParseWeek(arg string, now time.Time) string {
	if arg == "current" {
		return rewards.WeekOf(now)
	}
	return arg
}

func ArgValidatorAmount(cmd *cobra.Command, arg string) error {
	if _, err := rewards.ParseTokenAmount(arg, rewards.TokenDecimals); err != nil {
		return err
	}
	return nil
}

// ParseAmount reads whole tokens, or base units when wei is set.
func ParseAmount(arg string, wei bool) (*big.Int, error) {
	if wei {
		return rewards.ParseUnits(arg)
	}
	return rewards.ParseTokenAmount(arg, rewards.TokenDecimals)
}
