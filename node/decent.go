package node

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/node/ledger"
)

const DecentDefaultAPI = "https://box-v2.api.decent.xyz/api"

const (
	DecentStatusExecuted = "Executed"
	DecentStatusFailed   = "Failed"
)

// DecentClient asks the Decent bridge for the state of a cross chain
// transaction.
type DecentClient struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewDecentClient(baseURL, apiKey string) *DecentClient {
	if baseURL == "" {
		baseURL = DecentDefaultAPI
	}
	return &DecentClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

type decentStatus struct {
	Status      string `json:"status"`
	Transaction struct {
		DstTx struct {
			Fast struct {
				TransactionHash string `json:"transactionHash"`
			} `json:"fast"`
		} `json:"dstTx"`
	} `json:"transaction"`
}

// Status returns the bridge status of a source transaction and the
// destination hash once delivered.
func (c *DecentClient) Status(ctx context.Context, chainID uint64, txHash common.Hash) (string, common.Hash, error) {
	q := url.Values{}
	q.Set("chainId", strconv.FormatUint(chainID, 10))
	q.Set("txHash", txHash.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/getStatus?"+q.Encode(), nil)
	if err != nil {
		return "", common.Hash{}, err
	}
	if c.APIKey != "" {
		req.Header.Set("x-api-key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", common.Hash{}, err
	}
	defer resp.Body.Close()

	// the bridge has not indexed the source transaction yet
	if resp.StatusCode == http.StatusNotFound {
		return "", common.Hash{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", common.Hash{}, fmt.Errorf("decent status: %s", resp.Status)
	}

	var res decentStatus
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", common.Hash{}, fmt.Errorf("decent status: %w", err)
	}

	var dest common.Hash
	if h := res.Transaction.DstTx.Fast.TransactionHash; h != "" {
		dest = common.HexToHash(h)
	}
	return res.Status, dest, nil
}

// WaitForDestination polls until the bridge delivered the source transaction
// and returns the destination hash. A failed bridge transfer is rejected.
func (c *DecentClient) WaitForDestination(ctx context.Context, chainID uint64, txHash common.Hash, timeout time.Duration) (common.Hash, error) {
	var dest common.Hash
	err := retry(ctx, newBackOff(pollInterval, timeout), func() error {
		status, hash, err := c.Status(ctx, chainID, txHash)
		if err != nil {
			return err
		}
		switch status {
		case DecentStatusExecuted:
			if hash == (common.Hash{}) {
				return fmt.Errorf("bridge executed %s without a destination hash: %w", txHash.Hex(), errStillPending)
			}
			dest = hash
			return nil
		case DecentStatusFailed:
			return permanent(fmt.Errorf("%s: %w", txHash.Hex(), ledger.BridgeFailedErr))
		}
		return errStillPending
	})
	return dest, err
}
