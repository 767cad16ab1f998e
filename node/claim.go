package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/node/ledger"
	"github.com/scoutgame/scoutd/rewards"
	log "github.com/sirupsen/logrus"
)

// ClaimStep is where a wallet is in the claim flow.
type ClaimStep string

const (
	StepNotQualified     ClaimStep = "not_qualified"
	StepExpired          ClaimStep = "expired"
	StepAlreadyClaimed   ClaimStep = "already_claimed"
	StepClaimable        ClaimStep = "claimable"
	StepDonationSelected ClaimStep = "donation_selected"
	// StepSubmitted waits for the claim transaction to settle
	StepSubmitted ClaimStep = "submitted"
	StepSuccess   ClaimStep = "success"
)

// The donation options offered to claimers.
const (
	DonateNone int64 = 0
	DonateHalf int64 = rewards.BasisPoints / 2
	DonateAll  int64 = rewards.BasisPoints
)

var (
	ErrInvalidClaimStep = errors.New("claim is not at a step that allows this")
	ErrAlreadySubmitted = errors.New("transaction was already submitted")
)

type ClaimState struct {
	Step        ClaimStep            `json:"step"`
	Eligibility Eligibility          `json:"eligibility"`
	Claim       *ledger.AirdropClaim `json:"claim,omitempty"`
}

// ClaimStatus combines the eligibility of a wallet with its recorded claim.
func (d *Scoutd) ClaimStatus(ctx context.Context, airdropID int64, wallet common.Address) (ClaimState, error) {
	var s ClaimState
	e, err := d.CheckAirdropEligibility(ctx, airdropID, wallet)
	if err != nil {
		return s, err
	}
	s.Eligibility = e

	c, err := d.Ledger.SelectAirdropClaim(nil, airdropID, wallet)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
	case err != nil:
		return s, err
	default:
		s.Claim = &c
	}

	// our own claim wins over the chain, which reports it as claimed as
	// soon as the transaction lands
	if s.Claim != nil {
		switch s.Claim.Status {
		case ledger.ClaimClaimed:
			s.Step = StepSuccess
			return s, nil
		case ledger.ClaimSubmitted:
			s.Step = StepSubmitted
			return s, nil
		}
	}

	switch e.Status {
	case EligibilityNotQualified:
		s.Step = StepNotQualified
	case EligibilityExpired:
		s.Step = StepExpired
	case EligibilityAlreadyClaimed:
		s.Step = StepAlreadyClaimed
	case EligibilityClaimable:
		s.Step = StepClaimable
		if s.Claim != nil && s.Claim.Status == ledger.ClaimSelected {
			s.Step = StepDonationSelected
		}
	}
	return s, nil
}

// SelectDonation records how much of the claim the wallet donates. It is
// allowed while claimable or to change an earlier choice.
func (d *Scoutd) SelectDonation(ctx context.Context, airdropID int64, wallet common.Address, donationBps int64) (ClaimState, error) {
	if donationBps != DonateNone && donationBps != DonateHalf && donationBps != DonateAll {
		return ClaimState{}, fmt.Errorf("donation must be %d, %d or %d basis points", DonateNone, DonateHalf, DonateAll)
	}

	s, err := d.ClaimStatus(ctx, airdropID, wallet)
	if err != nil {
		return s, err
	}
	if s.Step != StepClaimable && s.Step != StepDonationSelected {
		return s, fmt.Errorf("%w: %s", ErrInvalidClaimStep, s.Step)
	}

	amount, ok := new(big.Int).SetString(s.Eligibility.Amount, 10)
	if !ok {
		return s, fmt.Errorf("invalid eligible amount %q", s.Eligibility.Amount)
	}
	keep, donate, err := rewards.SplitDonation(amount, donationBps)
	if err != nil {
		return s, err
	}

	if err := d.Ledger.UpsertClaimSelection(nil, ledger.AirdropClaim{
		AirdropID:      airdropID,
		Address:        wallet,
		ClaimAmount:    keep,
		DonationAmount: donate,
		DonationBps:    donationBps,
	}); err != nil {
		return s, err
	}
	return d.ClaimStatus(ctx, airdropID, wallet)
}

// SubmitClaimTransaction queues the claim transaction sent by the wallet for
// settlement. The claim moves to success once the receipt confirms it.
func (d *Scoutd) SubmitClaimTransaction(ctx context.Context, airdropID int64, wallet common.Address, txHash common.Hash) (string, error) {
	s, err := d.ClaimStatus(ctx, airdropID, wallet)
	if err != nil {
		return "", err
	}
	if s.Step != StepDonationSelected {
		return "", fmt.Errorf("%w: %s", ErrInvalidClaimStep, s.Step)
	}
	a, err := d.Ledger.SelectAirdrop(nil, airdropID)
	if err != nil {
		return "", err
	}

	tx, err := d.Ledger.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer ledger.Rollback(tx)

	if err := d.Ledger.SetClaimSubmitted(tx, airdropID, wallet, txHash); err != nil {
		return "", err
	}
	id, created, err := d.Ledger.InsertPendingTransaction(tx, &ledger.PendingTransaction{
		Kind:          ledger.KindAirdropClaim,
		Wallet:        wallet,
		Contract:      a.Contract,
		SourceChainID: a.ChainID,
		SourceTxHash:  txHash,
		DestChainID:   a.ChainID,
		DestTxHash:    txHash,
		Reference:     claimReference(airdropID),
	})
	if err != nil {
		return "", err
	}
	if !created {
		return "", fmt.Errorf("%w: %s as %s", ErrAlreadySubmitted, txHash.Hex(), id)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	log.WithFields(log.Fields{"airdrop": airdropID, "wallet": wallet.Hex(), "tx": txHash.Hex(), "id": id}).Info("airdrop claim submitted")
	return id, nil
}

func claimReference(airdropID int64) string {
	return fmt.Sprintf("airdrop:%d", airdropID)
}

func parseClaimReference(ref string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(ref, "airdrop:%d", &id); err != nil {
		return 0, fmt.Errorf("invalid claim reference %q", ref)
	}
	return id, nil
}
