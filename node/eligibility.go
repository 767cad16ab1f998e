package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/merkle"
	"github.com/scoutgame/scoutd/node/ledger"
	log "github.com/sirupsen/logrus"
)

type EligibilityStatus string

const (
	EligibilityNotQualified   EligibilityStatus = "not_qualified"
	EligibilityExpired        EligibilityStatus = "expired"
	EligibilityAlreadyClaimed EligibilityStatus = "already_claimed"
	EligibilityClaimable      EligibilityStatus = "claimable"
)

// Eligibility is what a wallet can claim from an airdrop. Index, amount and
// proof are only set for claimable wallets.
type Eligibility struct {
	AirdropID int64             `json:"airdropid"`
	Wallet    common.Address    `json:"wallet"`
	Status    EligibilityStatus `json:"status"`
	Contract  common.Address    `json:"contract"`
	Root      common.Hash       `json:"root"`
	Index     uint64            `json:"index"`
	Amount    string            `json:"amount,omitempty"`
	Proof     []common.Hash     `json:"proof,omitempty"`
}

// CheckAirdropEligibility decides if wallet can claim from an airdrop. A
// deployed contract has to commit to the same root as the airdrop, and its
// claimed state wins over the ledger.
func (d *Scoutd) CheckAirdropEligibility(ctx context.Context, airdropID int64, wallet common.Address) (Eligibility, error) {
	e := Eligibility{AirdropID: airdropID, Wallet: wallet}

	a, err := d.Ledger.SelectAirdrop(nil, airdropID)
	if err != nil {
		return e, err
	}
	e.Contract, e.Root = a.Contract, a.Root

	if a.Expired(d.now()) {
		e.Status = EligibilityExpired
		return e, nil
	}

	tree, err := d.Trees.Tree(ctx, a)
	if err != nil {
		return e, err
	}

	var client ChainReader
	if a.Deployed() {
		client, err = d.Chains.Get(a.ChainID)
		if err != nil {
			return e, err
		}
		root, err := onChainRoot(ctx, client, a)
		if err != nil {
			return e, err
		}
		if root != a.Root {
			log.WithFields(log.Fields{"airdrop": airdropID, "onchain": root.Hex(), "stored": a.Root.Hex()}).Error("airdrop root mismatch")
			return e, fmt.Errorf("%w: contract %s has %s", merkle.ErrRootMismatch, a.Contract.Hex(), root.Hex())
		}
	}

	r, ok := tree.Find(wallet)
	if !ok {
		e.Status = EligibilityNotQualified
		return e, nil
	}

	claimed := false
	if client != nil {
		claimed, err = onChainClaimed(ctx, client, a, r)
		if err != nil {
			return e, err
		}
	}
	if !claimed {
		c, err := d.Ledger.SelectAirdropClaim(nil, airdropID, wallet)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return e, err
		}
		claimed = err == nil && c.Status == ledger.ClaimClaimed
	}
	if claimed {
		e.Status = EligibilityAlreadyClaimed
		return e, nil
	}

	proof, err := tree.Proof(r.Index)
	if err != nil {
		return e, err
	}
	if !merkle.VerifyRecipient(tree.Encoding(), proof, a.Root, r) {
		return e, fmt.Errorf("%w: proof for %s does not verify", merkle.ErrRootMismatch, wallet.Hex())
	}

	e.Status = EligibilityClaimable
	e.Index = r.Index
	e.Amount = r.Amount.String()
	e.Proof = proof
	return e, nil
}
