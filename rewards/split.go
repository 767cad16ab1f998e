package rewards

import (
	"errors"
	"math/big"
	"sort"
)

const (
	// BasisPoints is 100%
	BasisPoints = 10000
	// DefaultBuilderBps is the builder's share of their own weekly tokens
	DefaultBuilderBps = 2000
)

var ErrInvalidBps = errors.New("basis points must be between 0 and 10000")

// Holder is a wallet holding NFTs of a builder.
type Holder struct {
	Wallet  string
	Balance uint64
}

// Share is an amount of tokens owed to a wallet.
type Share struct {
	Wallet string
	Amount *big.Int
}

// DivideTokensBetweenBuilderAndHolders splits a builder's weekly tokens.
// The builder receives builderBps of the tokens, the holders split the rest
// pro rata by NFT balance. Rounding dust goes to the builder, and without any
// holders the builder is paid in full. The shares always sum to tokens.
//
// If the builder also holds their own NFT, they appear twice in the result.
// Callers merge by wallet when needed.
func DivideTokensBetweenBuilderAndHolders(tokens *big.Int, builderWallet string, holders []Holder, builderBps int64) ([]Share, error) {
	if builderBps < 0 || builderBps > BasisPoints {
		return nil, ErrInvalidBps
	}
	if tokens == nil || tokens.Sign() <= 0 {
		return []Share{}, nil
	}

	var supply uint64
	active := make([]Holder, 0, len(holders))
	for _, h := range holders {
		if h.Balance == 0 {
			continue
		}
		supply += h.Balance
		active = append(active, h)
	}

	if supply == 0 {
		return []Share{{Wallet: builderWallet, Amount: new(big.Int).Set(tokens)}}, nil
	}

	// deterministic ordering for stored payouts
	sort.Slice(active, func(i, j int) bool { return active[i].Wallet < active[j].Wallet })

	builderAmount := mulBps(tokens, builderBps)
	pool := new(big.Int).Sub(tokens, builderAmount)

	shares := make([]Share, 0, len(active)+1)
	paid := new(big.Int)
	bigSupply := new(big.Int).SetUint64(supply)
	for _, h := range active {
		amt := new(big.Int).Mul(pool, new(big.Int).SetUint64(h.Balance))
		amt.Quo(amt, bigSupply)
		paid.Add(paid, amt)
		shares = append(shares, Share{Wallet: h.Wallet, Amount: amt})
	}

	// dust from the pool division
	builderAmount.Add(builderAmount, new(big.Int).Sub(pool, paid))
	return append([]Share{{Wallet: builderWallet, Amount: builderAmount}}, shares...), nil
}

// SplitDonation divides a claim into the part kept by the claimer and the
// part donated. The donation rounds down.
func SplitDonation(amount *big.Int, donationBps int64) (keep, donate *big.Int, err error) {
	if donationBps < 0 || donationBps > BasisPoints {
		return nil, nil, ErrInvalidBps
	}
	donate = mulBps(amount, donationBps)
	keep = new(big.Int).Sub(amount, donate)
	return keep, donate, nil
}

func mulBps(v *big.Int, bps int64) *big.Int {
	out := new(big.Int).Mul(v, big.NewInt(bps))
	return out.Quo(out, big.NewInt(BasisPoints))
}
