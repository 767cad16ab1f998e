package rewards

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultTopBuilders is how many ranked builders earn each week
	DefaultTopBuilders = 100
	// DefaultRankDecay is the weight lost per rank
	DefaultRankDecay = 0.03
)

var ErrInvalidDecay = errors.New("rank decay must be in [0, 1)")

// BuilderGems is a builder's score for a week.
type BuilderGems struct {
	BuilderTokenID uint64
	Gems           uint64
}

// Allocation is the tokens a ranked builder earned for a week.
type Allocation struct {
	BuilderTokenID uint64
	Gems           uint64
	Rank           int
	Tokens         *big.Int
}

// weightPrecision is the fixed point precision used for rank weights
const weightPrecision = 36

// RankWeights returns weight(rank) = (1-decay)^(rank-1) for ranks 1..n.
func RankWeights(n int, decay float64) ([]decimal.Decimal, error) {
	if decay < 0 || decay >= 1 {
		return nil, ErrInvalidDecay
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(decay))
	weights := make([]decimal.Decimal, n)
	w := decimal.NewFromInt(1)
	for i := 0; i < n; i++ {
		weights[i] = w
		w = w.Mul(factor).Truncate(weightPrecision)
	}
	return weights, nil
}

// AllocateWeekly ranks builders by gems and splits allocation between the
// top N using normalized rank weights. Builders without gems do not rank.
// Integer dust is given to rank 1 so the allocations sum exactly to
// allocation.
func AllocateWeekly(allocation *big.Int, builders []BuilderGems, topN int, decay float64) ([]Allocation, error) {
	if allocation == nil || allocation.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	if topN <= 0 {
		return nil, fmt.Errorf("top builders must be positive, got %d", topN)
	}

	ranked := make([]BuilderGems, 0, len(builders))
	for _, b := range builders {
		if b.Gems > 0 {
			ranked = append(ranked, b)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Gems != ranked[j].Gems {
			return ranked[i].Gems > ranked[j].Gems
		}
		return ranked[i].BuilderTokenID < ranked[j].BuilderTokenID
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	if len(ranked) == 0 {
		return []Allocation{}, nil
	}

	weights, err := RankWeights(len(ranked), decay)
	if err != nil {
		return nil, err
	}
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}

	total := decimal.NewFromBigInt(allocation, 0)
	out := make([]Allocation, len(ranked))
	paid := new(big.Int)
	for i, b := range ranked {
		q, _ := total.Mul(weights[i]).QuoRem(sum, 0)
		tokens := q.BigInt()
		paid.Add(paid, tokens)
		out[i] = Allocation{
			BuilderTokenID: b.BuilderTokenID,
			Gems:           b.Gems,
			Rank:           i + 1,
			Tokens:         tokens,
		}
	}
	out[0].Tokens.Add(out[0].Tokens, new(big.Int).Sub(allocation, paid))
	return out, nil
}

// WeekOf returns the ISO week label used to key weekly payouts, e.g. 2026-W42.
func WeekOf(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}
