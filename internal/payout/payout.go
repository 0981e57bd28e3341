// Package payout implements the integer arithmetic of betting markets:
// the minimum deposit a bet must carry and the proportional split of a
// resolved market's pool across the winning positions.
//
// All amounts are shopspring/decimal values holding integer minor units.
// Every division floors, so the sum of the payouts never exceeds the pool;
// the undistributed remainder is always smaller than the number of
// positive weights.
package payout

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidPool is returned when the pool is negative or fractional.
	ErrInvalidPool = errors.New("payout: pool must be a non-negative integer amount")

	// ErrInvalidWeight is returned when a weight is negative.
	ErrInvalidWeight = errors.New("payout: weights must be non-negative")
)

// RequiredDeposit is the smallest deposit that buys supply units at
// perSupply each.
func RequiredDeposit(supply int64, perSupply decimal.Decimal) decimal.Decimal {
	return perSupply.Mul(decimal.NewFromInt(supply))
}

// Proportional splits pool across weights. amounts[i] is
// floor(pool * weights[i] / sum(weights)); remainder is what is left of the
// pool after every amount is paid. With no positive weight the whole pool is
// the remainder.
func Proportional(pool decimal.Decimal, weights []int64) (amounts []decimal.Decimal, remainder decimal.Decimal, err error) {
	if pool.IsNegative() || !pool.IsInteger() {
		return nil, decimal.Zero, ErrInvalidPool
	}

	var total int64
	for _, w := range weights {
		if w < 0 {
			return nil, decimal.Zero, ErrInvalidWeight
		}
		total += w
	}

	amounts = make([]decimal.Decimal, len(weights))
	if total == 0 {
		for i := range amounts {
			amounts[i] = decimal.Zero
		}
		return amounts, pool, nil
	}

	// Integer division at precision 0 floors for non-negative operands.
	divisor := decimal.NewFromInt(total)
	paid := decimal.Zero
	for i, w := range weights {
		q, _ := pool.Mul(decimal.NewFromInt(w)).QuoRem(divisor, 0)
		amounts[i] = q
		paid = paid.Add(q)
	}
	return amounts, pool.Sub(paid), nil
}
