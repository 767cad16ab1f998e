package node

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/scoutgame/scoutd/node/ledger"
)

// pollInterval is the first wait between receipt and bridge polls
var pollInterval = time.Second

// waitReceipt polls for the receipt of hash. A reverted transaction returns
// the receipt along with ledger.RevertedErr.
func waitReceipt(ctx context.Context, client ChainReader, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := retry(ctx, newBackOff(pollInterval, timeout), func() error {
		r, err := client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return errStillPending
		}
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%s: %w", hash.Hex(), ledger.RevertedErr)
	}
	return receipt, nil
}

// sendTransaction signs a legacy transaction calling to with data and
// broadcasts it.
func sendTransaction(ctx context.Context, client ChainWriter, key *ecdsa.PrivateKey, to common.Address, data []byte) (common.Hash, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	nonce, err := client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return common.Hash{}, err
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}
