package node

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/scoutgame/scoutd/node/ledger"
	"github.com/scoutgame/scoutd/rewards"
	log "github.com/sirupsen/logrus"
)

// RecordBuilderGems sets a builder's gems for a week.
func (d *Scoutd) RecordBuilderGems(ctx context.Context, week string, builderTokenID uint64, wallet common.Address, gems uint64) error {
	return d.Ledger.UpsertBuilderGems(nil, week, builderTokenID, wallet, gems)
}

// ComputeWeeklyPayouts ranks the builders of a week, splits allocation between
// them and rewrites every builder's payouts to themselves and their holders.
// Running it again for the same week replaces the earlier result.
func (d *Scoutd) ComputeWeeklyPayouts(ctx context.Context, week string, allocation *big.Int) ([]rewards.Allocation, error) {
	tx, err := d.Ledger.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer ledger.Rollback(tx)

	weeks, err := d.Ledger.SelectBuilderWeeks(tx, week)
	if err != nil {
		return nil, err
	}
	scores := make([]rewards.BuilderGems, len(weeks))
	for i, b := range weeks {
		scores[i] = rewards.BuilderGems{BuilderTokenID: b.BuilderTokenID, Gems: b.Gems}
	}

	allocations, err := rewards.AllocateWeekly(allocation, scores, d.topBuilders(), d.rankDecay())
	if err != nil {
		return nil, err
	}
	byBuilder := make(map[uint64]rewards.Allocation, len(allocations))
	for _, a := range allocations {
		byBuilder[a.BuilderTokenID] = a
	}

	for _, b := range weeks {
		rank, tokens := 0, new(big.Int)
		if a, ok := byBuilder[b.BuilderTokenID]; ok {
			rank, tokens = a.Rank, a.Tokens
		}
		if err := d.Ledger.SetBuilderAllocation(tx, week, b.BuilderTokenID, rank, tokens); err != nil {
			return nil, err
		}
		if err := d.Ledger.RecomputeBuilderPayouts(tx, week, b.BuilderTokenID, d.builderBps()); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"week": week, "ranked": len(allocations), "builders": len(weeks)}).Info("weekly payouts computed")
	return allocations, nil
}

// Payouts of a week, optionally for a single wallet.
func (d *Scoutd) Payouts(ctx context.Context, week string, wallet *common.Address) ([]ledger.Payout, error) {
	return d.Ledger.SelectPayouts(nil, week, wallet)
}
