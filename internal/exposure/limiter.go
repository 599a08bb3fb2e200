// Package exposure implements platform-level contribution limits that
// account for concentration across pools run by the same operator.
//
// A participant spreading payment across ten pools of one operator carries
// the same counterparty risk as one large contribution. This package sums
// a participant's exposure per pool and per operator and rejects
// contributions that would breach either ceiling. Limits sit above the
// per-pool min/max bounds, which each pool enforces itself.
package exposure

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrPerPoolLimitExceeded is returned when a contribution would push a
	// participant's exposure in a single pool beyond the platform maximum.
	ErrPerPoolLimitExceeded = errors.New("exposure: per-pool limit exceeded")

	// ErrPerOperatorLimitExceeded is returned when a contribution would push
	// the aggregate exposure across one operator's pools beyond the maximum.
	ErrPerOperatorLimitExceeded = errors.New("exposure: per-operator limit exceeded")
)

// Position is a participant's current exposure in one pool.
type Position struct {
	PoolID   string
	Operator string
	Amount   decimal.Decimal
}

// Limiter enforces platform-wide exposure ceilings. A zero limit disables
// the corresponding check.
type Limiter struct {
	// MaxPerPool is the maximum payment exposure in any single pool.
	MaxPerPool decimal.Decimal

	// MaxPerOperator is the maximum aggregate exposure across all pools
	// run by the same operator.
	MaxPerOperator decimal.Decimal
}

// NewLimiter creates a limiter with the given per-pool and per-operator
// ceilings.
func NewLimiter(maxPerPool, maxPerOperator decimal.Decimal) *Limiter {
	return &Limiter{MaxPerPool: maxPerPool, MaxPerOperator: maxPerOperator}
}

// Enabled reports whether any ceiling is configured.
func (l *Limiter) Enabled() bool {
	return l.MaxPerPool.IsPositive() || l.MaxPerOperator.IsPositive()
}

// Check validates whether adding amount to the participant's position in
// targetPool respects both ceilings. existing holds the participant's
// current positions across all pools, including targetPool if any.
func (l *Limiter) Check(targetPool, targetOperator string, amount decimal.Decimal, existing []Position) error {
	inPool := decimal.Zero
	withOperator := decimal.Zero
	for _, pos := range existing {
		if pos.PoolID == targetPool {
			inPool = inPool.Add(pos.Amount)
		}
		if pos.Operator == targetOperator {
			withOperator = withOperator.Add(pos.Amount)
		}
	}

	if l.MaxPerPool.IsPositive() && inPool.Add(amount).GreaterThan(l.MaxPerPool) {
		return ErrPerPoolLimitExceeded
	}
	if l.MaxPerOperator.IsPositive() && withOperator.Add(amount).GreaterThan(l.MaxPerOperator) {
		return ErrPerOperatorLimitExceeded
	}
	return nil
}
