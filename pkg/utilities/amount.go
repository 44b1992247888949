package utilities

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// FormatUnits renders a base-unit amount as a decimal string with the
// token's precision, e.g. 1500000 with 6 decimals is "1.5".
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ParseUnits converts a human amount such as "12.25" into base units. More
// fractional digits than decimals is an error rather than a silent rounding.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.IsNegative() {
		return nil, ErrInvalidAmount
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, ErrInvalidAmount
	}
	return scaled.BigInt(), nil
}

// ParseBaseUnits parses a non-negative integer amount given in base units.
func ParseBaseUnits(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 || v.BitLen() > 256 {
		return nil, ErrInvalidAmount
	}
	return v, nil
}
