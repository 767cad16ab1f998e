package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/scoutgame/scoutd/config"
	"github.com/scoutgame/scoutd/node/ledger"
	"github.com/scoutgame/scoutd/rewards"
	log "github.com/sirupsen/logrus"
)

// MintParams is a builder NFT purchase paid by a scout.
type MintParams struct {
	Wallet         common.Address
	BuilderTokenID uint64
	TokenAmount    uint64
	Points         uint64
	SourceChainID  uint64
	SourceTxHash   common.Hash
}

// SubmitMintTransaction queues a purchase for settlement. Submitting the same
// payment twice returns the id of the first submission.
func (d *Scoutd) SubmitMintTransaction(ctx context.Context, p MintParams) (string, error) {
	if p.Wallet == (common.Address{}) {
		return "", fmt.Errorf("wallet is required")
	}
	if p.TokenAmount == 0 {
		return "", fmt.Errorf("token amount must be positive")
	}
	if p.SourceTxHash == (common.Hash{}) {
		return "", fmt.Errorf("source transaction hash is required")
	}
	if _, ok := config.ChainByID(p.SourceChainID); !ok {
		return "", fmt.Errorf("%w %d", ErrUnknownChain, p.SourceChainID)
	}
	contract := d.Config.GetString(config.NFTContract)
	if !common.IsHexAddress(contract) {
		return "", fmt.Errorf("builder nft contract is not configured")
	}

	pending := &ledger.PendingTransaction{
		Kind:           ledger.KindNFTMint,
		Wallet:         p.Wallet,
		BuilderTokenID: p.BuilderTokenID,
		TokenAmount:    p.TokenAmount,
		Points:         p.Points,
		Contract:       common.HexToAddress(contract),
		SourceChainID:  p.SourceChainID,
		SourceTxHash:   p.SourceTxHash,
		DestChainID:    d.nftChainID(),
	}
	if !pending.CrossChain() {
		pending.DestTxHash = p.SourceTxHash
	}

	id, created, err := d.Ledger.InsertPendingTransaction(nil, pending)
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{"id": id, "tx": p.SourceTxHash.Hex(), "new": created}).Debug("mint submitted")
	return id, nil
}

func (d *Scoutd) PendingTransaction(ctx context.Context, id string) (ledger.PendingTransaction, error) {
	return d.Ledger.SelectPendingTransaction(ctx, nil, id)
}

// HandlePendingTransaction settles one queued transaction. The row is claimed
// first, so concurrent handlers of the same id do the work once. The status
// the row ends in is returned, or "" if another handler owns it.
//
// Rejections, such as a reverted transaction or a transfer that does not
// match the purchase, fail the row for good. Any other error hands the row
// back to be retried.
func (d *Scoutd) HandlePendingTransaction(ctx context.Context, id string) (ledger.PendingStatus, error) {
	won, err := d.Ledger.ClaimPendingTransaction(ctx, nil, id)
	if err != nil {
		return "", err
	}
	if !won {
		log.WithField("id", id).Debug("pending transaction already handled")
		return "", nil
	}

	p, err := d.Ledger.SelectPendingTransaction(ctx, nil, id)
	if err != nil {
		return "", err
	}
	pLog := log.WithFields(log.Fields{"id": id, "kind": p.Kind, "tx": p.SourceTxHash.Hex()})

	settleErr := d.settle(ctx, &p)
	if settleErr == nil {
		pLog.Info("transaction settled")
		return ledger.PendingStatusCompleted, nil
	}

	// bookkeeping has to happen even when ctx was cancelled mid settlement
	bg := context.Background()

	code, err := ledger.IsRejectedTx(settleErr)
	if err == nil {
		pLog.WithError(settleErr).WithField("code", code).Warn("transaction rejected")
		if err := d.reject(bg, p, code, settleErr); err != nil {
			return "", err
		}
		return ledger.PendingStatusFailed, settleErr
	}

	if ctx.Err() != nil {
		pLog.WithError(settleErr).Info("settlement interrupted, transaction returned to the queue")
		if err := d.Ledger.ReturnPendingTransaction(bg, nil, id); err != nil {
			return "", err
		}
		return ledger.PendingStatusPending, settleErr
	}

	status, err := d.Ledger.ReleasePendingTransaction(bg, nil, id, settleErr, d.maxAttempts())
	if err != nil {
		return "", err
	}
	if status == ledger.PendingStatusFailed {
		pLog.WithError(settleErr).Error("transaction failed too many times")
		if p.Kind == ledger.KindAirdropClaim {
			d.failClaim(bg, nil, p)
		}
	} else {
		pLog.WithError(settleErr).Debug("transaction released for retry")
	}
	return status, settleErr
}

func (d *Scoutd) reject(ctx context.Context, p ledger.PendingTransaction, code int64, cause error) error {
	tx, err := d.Ledger.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ledger.Rollback(tx)

	if err := d.Ledger.FailPendingTransaction(ctx, tx, p.ID, code, cause); err != nil {
		return err
	}
	if p.Kind == ledger.KindAirdropClaim {
		d.failClaim(ctx, tx, p)
	}
	return tx.Commit()
}

// failClaim lets the wallet pick its claim up again.
func (d *Scoutd) failClaim(ctx context.Context, q ledger.QueryAble, p ledger.PendingTransaction) {
	airdropID, err := parseClaimReference(p.Reference)
	if err != nil {
		return
	}
	if err := d.Ledger.SetClaimSettled(q, airdropID, p.Wallet, false); err != nil && !errors.Is(err, ledger.ErrInvalidTransition) {
		log.WithError(err).WithField("id", p.ID).Error("failed to reopen airdrop claim")
	}
}

func (d *Scoutd) settle(ctx context.Context, p *ledger.PendingTransaction) error {
	client, err := d.Chains.Get(p.DestChainID)
	if err != nil {
		return err
	}

	dest := p.DestTxHash
	if dest == (common.Hash{}) {
		if !p.CrossChain() {
			dest = p.SourceTxHash
		} else {
			dest, err = d.Decent.WaitForDestination(ctx, p.SourceChainID, p.SourceTxHash, d.settlementTimeout())
			if err != nil {
				return err
			}
			if err := d.Ledger.SetPendingDestination(ctx, nil, p.ID, dest); err != nil {
				return err
			}
			p.DestTxHash = dest
		}
	}

	receipt, err := waitReceipt(ctx, client, dest, d.settlementTimeout())
	if err != nil {
		return err
	}

	switch p.Kind {
	case ledger.KindNFTMint:
		return d.applyMint(ctx, p, dest, receipt)
	case ledger.KindAirdropClaim:
		return d.applyClaim(ctx, client, p, receipt)
	}
	return fmt.Errorf("unknown pending transaction kind %q", p.Kind)
}

func (d *Scoutd) applyMint(ctx context.Context, p *ledger.PendingTransaction, dest common.Hash, receipt *types.Receipt) error {
	transfers, err := transfersTo(receipt, p.Contract, p.Wallet)
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		return fmt.Errorf("%s: %w", dest.Hex(), ledger.TransferNotFoundErr)
	}
	matched, moved := false, false
	for _, t := range transfers {
		if !t.ID.IsUint64() || t.ID.Uint64() != p.BuilderTokenID || !t.Value.IsUint64() || t.Value.Uint64() != p.TokenAmount {
			continue
		}
		// only a mint adds to the supply, a transfer between holders does not
		if t.From != (common.Address{}) {
			moved = true
			continue
		}
		matched = true
		break
	}
	if !matched && moved {
		return fmt.Errorf("%s: token %d came from a holder: %w", dest.Hex(), p.BuilderTokenID, ledger.NotMintedErr)
	}
	if !matched {
		return fmt.Errorf("%s: expected %d of token %d: %w", dest.Hex(), p.TokenAmount, p.BuilderTokenID, ledger.TransferMismatchErr)
	}

	week := rewards.WeekOf(d.now())
	tx, err := d.Ledger.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ledger.Rollback(tx)

	err = d.Ledger.InsertNFTPurchase(tx, ledger.NFTPurchase{
		TxHash:         dest,
		PendingID:      p.ID,
		Wallet:         p.Wallet,
		BuilderTokenID: p.BuilderTokenID,
		TokenAmount:    p.TokenAmount,
		Points:         p.Points,
		ChainID:        p.DestChainID,
		Week:           week,
	})
	if err != nil {
		return err
	}
	if err := d.Ledger.AddHolding(tx, p.Wallet, p.BuilderTokenID, int64(p.TokenAmount)); err != nil {
		return err
	}
	if err := d.Ledger.RecomputeBuilderPayouts(tx, week, p.BuilderTokenID, d.builderBps()); err != nil {
		return err
	}
	if err := d.Ledger.CompletePendingTransaction(ctx, tx, p.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// applyClaim settles a claim once the chain agrees the wallet claimed. The
// transaction has to have gone through the airdrop's contract.
func (d *Scoutd) applyClaim(ctx context.Context, client ChainReader, p *ledger.PendingTransaction, receipt *types.Receipt) error {
	airdropID, err := parseClaimReference(p.Reference)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ledger.ClaimMissingErr)
	}
	a, err := d.Ledger.SelectAirdrop(nil, airdropID)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("airdrop %d: %w", airdropID, ledger.ClaimMissingErr)
	}
	if err != nil {
		return err
	}
	if !a.Deployed() {
		return fmt.Errorf("airdrop %d has no claim contract: %w", airdropID, ledger.ClaimNotOnChainErr)
	}

	touched := false
	for _, lg := range receipt.Logs {
		if lg.Address == a.Contract {
			touched = true
			break
		}
	}
	if !touched {
		return fmt.Errorf("%s emitted nothing from %s: %w", p.DestTxHash.Hex(), a.Contract.Hex(), ledger.ClaimNotOnChainErr)
	}

	tree, err := d.Trees.Tree(ctx, a)
	if err != nil {
		return err
	}
	r, ok := tree.Find(p.Wallet)
	if !ok {
		return fmt.Errorf("%s is not a recipient: %w", p.Wallet.Hex(), ledger.ClaimMissingErr)
	}
	claimed, err := onChainClaimed(ctx, client, a, r)
	if err != nil {
		return err
	}
	if !claimed {
		return fmt.Errorf("%s has not claimed from %s: %w", p.Wallet.Hex(), a.Contract.Hex(), ledger.ClaimNotOnChainErr)
	}

	tx, err := d.Ledger.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer ledger.Rollback(tx)

	if err := d.Ledger.SetClaimSettled(tx, airdropID, p.Wallet, true); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return fmt.Errorf("%v: %w", err, ledger.ClaimMissingErr)
		}
		return err
	}
	if err := d.Ledger.CompletePendingTransaction(ctx, tx, p.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	log.WithFields(log.Fields{"airdrop": airdropID, "wallet": p.Wallet.Hex()}).Info("airdrop claimed")
	return nil
}

func (d *Scoutd) sinceStuck() time.Time {
	return d.now().Add(-d.stuckAfter())
}
