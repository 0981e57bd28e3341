package model

import "github.com/shopspring/decimal"

// Units converts whole currency units to minor units.
func Units(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Mul(decimal.NewFromInt(MinorUnitsPerUnit))
}

// CheckAmount returns ErrInvalidAmount unless d is a non-negative integer
// number of minor units.
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() || !d.IsInteger() {
		return ErrInvalidAmount
	}
	return nil
}
