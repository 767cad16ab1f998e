package rewards

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// TokenDecimals is the precision of the Scout token and of every airdrop
// token we distribute.
const TokenDecimals = 18

var (
	ErrNegativeAmount = errors.New("amount must not be negative")
	ErrTooPrecise     = errors.New("amount has more decimal places than the token supports")
)

// ParseTokenAmount converts a decimal token amount such as "12.5" into its
// integer base unit representation.
func ParseTokenAmount(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	if -d.Exponent() > decimals {
		// trailing zeros are fine, "1.50" is as precise as "1.5"
		if !d.Equal(d.Truncate(decimals)) {
			return nil, ErrTooPrecise
		}
	}
	return d.Shift(decimals).BigInt(), nil
}

// FormatTokenAmount renders base units as a decimal token amount without
// trailing zeros.
func FormatTokenAmount(units *big.Int, decimals int32) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -decimals).String()
}

// ParseUnits parses a raw base unit integer string.
func ParseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, ErrNegativeAmount
	}
	return v, nil
}
