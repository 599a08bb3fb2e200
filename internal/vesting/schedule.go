// Package vesting implements the deferred-release ledger for finalized
// token sales: an immediate TGE slice, a flat cliff, then linear release
// until the allocation is fully vested.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every rounding step floors, so entitlement never runs ahead of the
// schedule; the residue stays with the issuer.
package vesting

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTGEPercent is returned when the TGE percentage is outside 0-100.
	ErrInvalidTGEPercent = errors.New("vesting: tge percent must be between 0 and 100")

	// ErrNegativeDuration is returned when a cliff or vesting duration is negative.
	ErrNegativeDuration = errors.New("vesting: durations must be non-negative")
)

var hundred = decimal.NewFromInt(100)

// Schedule describes one release curve. It is stateless — allocation and
// timestamps are passed as arguments, not stored — so the same schedule
// serves every participant of a pool.
type Schedule struct {
	// TGEPercent is the share of the allocation unlocked at the TGE
	// timestamp, 0-100.
	TGEPercent int64

	// Cliff is the period after TGE during which nothing beyond the TGE
	// slice is released.
	Cliff time.Duration

	// Duration is the length of the linear release window after the cliff.
	Duration time.Duration
}

// NewSchedule validates and returns a release schedule.
func NewSchedule(tgePercent int64, cliff, duration time.Duration) (Schedule, error) {
	if tgePercent < 0 || tgePercent > 100 {
		return Schedule{}, ErrInvalidTGEPercent
	}
	if cliff < 0 || duration < 0 {
		return Schedule{}, ErrNegativeDuration
	}
	return Schedule{TGEPercent: tgePercent, Cliff: cliff, Duration: duration}, nil
}

// TGEAmount returns the slice unlocked immediately at TGE:
// floor(total × TGEPercent / 100).
func (s Schedule) TGEAmount(total decimal.Decimal) decimal.Decimal {
	return total.Mul(decimal.NewFromInt(s.TGEPercent)).Div(hundred).Floor()
}

// Entitlement computes the cumulative amount unlocked at the given time:
//
//	t < tge:                     0
//	tge ≤ t < tge+cliff:         tgeAmount
//	t ≥ tge+cliff+duration:      total (full vest, no rounding shortfall)
//	otherwise:                   tgeAmount + floor((total-tgeAmount) × elapsed / duration)
//
// Elapsed time is measured in whole seconds from the end of the cliff.
func (s Schedule) Entitlement(total decimal.Decimal, tge, now time.Time) decimal.Decimal {
	if now.Before(tge) {
		return decimal.Zero
	}

	tgeAmount := s.TGEAmount(total)
	cliffEnd := tge.Add(s.Cliff)
	if now.Before(cliffEnd) {
		return tgeAmount
	}

	vestEnd := cliffEnd.Add(s.Duration)
	if !now.Before(vestEnd) {
		return total
	}

	elapsed := int64(now.Sub(cliffEnd) / time.Second)
	window := int64(s.Duration / time.Second)
	if window == 0 {
		// Sub-second vesting window rounds to a single step.
		return total
	}

	linear := total.Sub(tgeAmount).
		Mul(decimal.NewFromInt(elapsed)).
		Div(decimal.NewFromInt(window)).
		Floor()

	return tgeAmount.Add(linear)
}
