package vesting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/model"
	"github.com/launchforge/sale-engine/internal/transfer"
)

var (
	// ErrNoVesting is returned when a participant has no vesting entry.
	ErrNoVesting = errors.New("vesting: no vesting entry for participant")

	// ErrNothingToClaim is returned when the releasable amount is zero.
	// Distinguished from success-with-zero so callers get a clear signal.
	ErrNothingToClaim = errors.New("vesting: nothing to claim")

	// ErrAlreadyGranted is returned when an allocation is granted twice.
	ErrAlreadyGranted = errors.New("vesting: allocation already granted")

	// ErrReentrantCall is returned when a transfer callback re-enters the
	// ledger it was called from.
	ErrReentrantCall = errors.New("vesting: re-entrant call rejected")
)

// reentryKey marks a context as originating inside one of this ledger's
// mutating operations.
type reentryKey struct{}

// Ledger owns the release state for every participant of one finalized
// pool. It is the sole authority for claims after the finalize handoff.
//
// Mutations hold the mutex for their full duration, the external credit
// included, so concurrent claims serialize. The context handed to the
// transfer backend is marked; a callback re-entering Claim with it fails
// with ErrReentrantCall. State reaches its post-condition before the
// external call and is rolled back if the call fails, so every claim is
// atomic.
type Ledger struct {
	mu sync.Mutex

	poolID   string
	schedule Schedule
	entries  map[string]*model.VestingEntry

	transfer transfer.Transfer
	emitter  model.Emitter
}

// NewLedger creates an empty ledger for a pool.
func NewLedger(poolID string, schedule Schedule, tr transfer.Transfer, emitter model.Emitter) *Ledger {
	if emitter == nil {
		emitter = model.NopEmitter{}
	}
	return &Ledger{
		poolID:   poolID,
		schedule: schedule,
		entries:  make(map[string]*model.VestingEntry),
		transfer: tr,
		emitter:  emitter,
	}
}

// Schedule returns the release schedule shared by all entries.
func (l *Ledger) Schedule() Schedule {
	return l.schedule
}

// Grant records a participant's allocation at finalize time. Zero or
// negative allocations create no entry. Granting twice for the same
// participant is a programming error and is rejected.
func (l *Ledger) Grant(participant string, allocation decimal.Decimal, tge time.Time) error {
	if allocation.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[participant]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyGranted, participant)
	}
	l.entries[participant] = &model.VestingEntry{
		PoolID:          l.poolID,
		Participant:     participant,
		TotalAllocation: allocation,
		TGETimestamp:    tge,
		Released:        decimal.Zero,
	}
	return nil
}

// Entry returns a copy of a participant's vesting entry.
func (l *Ledger) Entry(participant string) (model.VestingEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[participant]
	if !ok {
		return model.VestingEntry{}, false
	}
	return *e, true
}

// Entries returns copies of all vesting entries.
func (l *Ledger) Entries() []model.VestingEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.VestingEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

// Releasable returns the amount the participant could claim at the given
// time. Pure query: no side effects, zero for unknown participants.
func (l *Ledger) Releasable(participant string, now time.Time) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[participant]
	if !ok {
		return decimal.Zero
	}
	return l.releasableLocked(e, now)
}

func (l *Ledger) releasableLocked(e *model.VestingEntry, now time.Time) decimal.Decimal {
	entitled := l.schedule.Entitlement(e.TotalAllocation, e.TGETimestamp, now)
	out := entitled.Sub(e.Released)
	if out.IsNegative() {
		// Released can never exceed entitlement under floor rounding;
		// clamp anyway.
		return decimal.Zero
	}
	return out
}

// Claim releases the currently claimable amount to the participant.
// Returns the amount released by this call.
func (l *Ledger) Claim(ctx context.Context, participant string, now time.Time) (decimal.Decimal, error) {
	if v, _ := ctx.Value(reentryKey{}).(*Ledger); v == l {
		return decimal.Zero, ErrReentrantCall
	}
	l.mu.Lock()

	e, ok := l.entries[participant]
	if !ok {
		l.mu.Unlock()
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoVesting, participant)
	}

	amount := l.releasableLocked(e, now)
	if amount.IsZero() {
		l.mu.Unlock()
		return decimal.Zero, ErrNothingToClaim
	}

	// Effects before external call.
	e.Released = e.Released.Add(amount)
	released := e.Released

	if err := l.transfer.Credit(context.WithValue(ctx, reentryKey{}, l), participant, amount); err != nil {
		e.Released = e.Released.Sub(amount)
		l.mu.Unlock()
		return decimal.Zero, fmt.Errorf("vesting: credit %s: %w", participant, err)
	}
	l.mu.Unlock()

	l.emitter.Emit(model.Event{
		Type:        model.EventClaimed,
		PoolID:      l.poolID,
		Participant: participant,
		Amount:      amount,
		Released:    released,
		At:          now,
	})
	return amount, nil
}
