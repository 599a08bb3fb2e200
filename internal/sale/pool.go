// Package sale implements the fixed-term token sale state machine: bounded
// contribution admission, the finalize-or-cancel decision, refunds, and
// the handoff of final allocations to the vesting ledger.
//
// All monetary values use shopspring/decimal — never float64 for money.
//
// Every mutating operation holds the per-pool mutex for its full duration,
// external value transfers included, so concurrent calls serialize. The
// context handed to the gate and the transfer backend carries a marker for
// this pool; a callback that re-enters a mutating operation with that
// context fails with ErrReentrantCall instead of deadlocking. State reaches
// its post-condition before each transfer and a transfer failure rolls the
// state back, so each operation is atomic.
package sale

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/eligibility"
	"github.com/launchforge/sale-engine/internal/model"
	"github.com/launchforge/sale-engine/internal/transfer"
	"github.com/launchforge/sale-engine/internal/vesting"
)

var hundred = decimal.NewFromInt(100)

// reentryKey marks a context as originating inside one of this pool's
// mutating operations.
type reentryKey struct{}

// Deps are the collaborators a pool calls out to.
type Deps struct {
	Gate     eligibility.Gate
	Transfer transfer.Transfer
	Emitter  model.Emitter

	// FeePercent of the raised funds is paid to FeeRecipient on withdraw,
	// 0-100. Comes from registry configuration.
	FeePercent   int64
	FeeRecipient string
}

// Pool is one token sale. Created Active; transitions exactly once to
// Finalized or Cancelled, never before the configured end time for the
// finalize path. Immutable afterwards except refund/claim bookkeeping.
type Pool struct {
	mu sync.Mutex

	id        string
	operator  string
	cfg       model.SaleConfig
	createdAt time.Time

	status        string
	totalRaised   decimal.Decimal
	feePaid       decimal.Decimal
	operatorPaid  decimal.Decimal
	contributions map[string]*model.Contribution

	ledger *vesting.Ledger
	deps   Deps
}

// NewPool validates the configuration against the registry bounds and
// constructs an Active pool owned by the given operator.
func NewPool(id, operator string, cfg model.SaleConfig, bounds Bounds, deps Deps, now time.Time) (*Pool, error) {
	if operator == "" {
		return nil, fmt.Errorf("%w: operator is required", ErrInvalidConfig)
	}
	if err := ValidateConfig(cfg, bounds); err != nil {
		return nil, err
	}
	if deps.FeePercent < 0 || deps.FeePercent > 100 {
		return nil, fmt.Errorf("%w: fee percent %d outside 0-100", ErrInvalidConfig, deps.FeePercent)
	}
	if deps.Emitter == nil {
		deps.Emitter = model.NopEmitter{}
	}

	schedule, err := vesting.NewSchedule(cfg.TGEPercent, cfg.CliffDuration, cfg.VestingDuration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Pool{
		id:            id,
		operator:      operator,
		cfg:           cfg,
		createdAt:     now,
		status:        model.StatusActive,
		totalRaised:   decimal.Zero,
		feePaid:       decimal.Zero,
		operatorPaid:  decimal.Zero,
		contributions: make(map[string]*model.Contribution),
		ledger:        vesting.NewLedger(id, schedule, deps.Transfer, deps.Emitter),
		deps:          deps,
	}, nil
}

// reentered reports whether ctx was produced inside one of this pool's own
// mutating operations.
func (p *Pool) reentered(ctx context.Context) bool {
	v, _ := ctx.Value(reentryKey{}).(*Pool)
	return v == p
}

// reentryContext marks ctx so callbacks into this pool are detectable.
func (p *Pool) reentryContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, reentryKey{}, p)
}

// ID returns the pool identifier.
func (p *Pool) ID() string { return p.id }

// Operator returns the designated operator identity.
func (p *Pool) Operator() string { return p.operator }

// Config returns the immutable sale configuration.
func (p *Pool) Config() model.SaleConfig { return p.cfg }

// Ledger returns the pool's vesting ledger. Entries exist only after a
// successful finalize.
func (p *Pool) Ledger() *vesting.Ledger { return p.ledger }

// Status returns the current lifecycle state.
func (p *Pool) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// TotalRaised returns the running contribution total.
func (p *Pool) TotalRaised() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalRaised
}

// Contribution returns a copy of a participant's aggregate record.
func (p *Pool) Contribution(participant string) (model.Contribution, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c, ok := p.contributions[participant]
	if !ok {
		return model.Contribution{}, false
	}
	return *c, true
}

// Contributions returns copies of every aggregate contribution record.
func (p *Pool) Contributions() []model.Contribution {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]model.Contribution, 0, len(p.contributions))
	for _, c := range p.contributions {
		out = append(out, *c)
	}
	return out
}

// Snapshot returns the persistable view of the pool state.
func (p *Pool) Snapshot() model.PoolSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return model.PoolSnapshot{
		ID:          p.id,
		Operator:    p.operator,
		Config:      p.cfg,
		Status:      p.status,
		TotalRaised: p.totalRaised,
		Withdrawn:   p.feePaid.Add(p.operatorPaid),
		CreatedAt:   p.createdAt,
	}
}

// Contribute admits a contribution. Preconditions are checked in order and
// the first failure wins: pool Active, inside the sale window, positive
// amount, participant eligible, aggregate within [min, max], hard cap not
// exceeded. On success the participant is debited after the ledger is
// updated; a failed debit rolls everything back.
//
// Returns the participant's updated aggregate record.
func (p *Pool) Contribute(ctx context.Context, participant string, amount decimal.Decimal, now time.Time) (model.Contribution, error) {
	if p.reentered(ctx) {
		return model.Contribution{}, ErrReentrantCall
	}
	p.mu.Lock()
	if p.status != model.StatusActive {
		p.mu.Unlock()
		return model.Contribution{}, ErrSaleNotActive
	}
	if now.Before(p.cfg.StartTime) || now.After(p.cfg.EndTime) {
		p.mu.Unlock()
		return model.Contribution{}, ErrSaleWindowClosed
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		p.mu.Unlock()
		return model.Contribution{}, ErrInvalidAmount
	}

	cctx := p.reentryContext(ctx)
	eligible, gerr := p.deps.Gate.IsEligible(cctx, participant)
	if gerr != nil {
		p.mu.Unlock()
		return model.Contribution{}, fmt.Errorf("sale: eligibility check for %s: %w", participant, gerr)
	}
	if !eligible {
		p.mu.Unlock()
		return model.Contribution{}, fmt.Errorf("%w: %s", ErrNotEligible, participant)
	}

	existing := decimal.Zero
	if c, ok := p.contributions[participant]; ok {
		existing = c.Amount
	}
	newAmount := existing.Add(amount)
	if newAmount.LessThan(p.cfg.MinContribution) {
		p.mu.Unlock()
		return model.Contribution{}, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, newAmount, p.cfg.MinContribution)
	}
	if newAmount.GreaterThan(p.cfg.MaxContribution) {
		p.mu.Unlock()
		return model.Contribution{}, fmt.Errorf("%w: %s > %s", ErrAboveMaximum, newAmount, p.cfg.MaxContribution)
	}
	if p.totalRaised.Add(amount).GreaterThan(p.cfg.HardCap) {
		p.mu.Unlock()
		return model.Contribution{}, fmt.Errorf("%w: %s + %s > %s", ErrHardCapExceeded, p.totalRaised, amount, p.cfg.HardCap)
	}

	// Truncation toward zero: the sub-token remainder is never minted or
	// tracked.
	allocation := amount.Div(p.cfg.PricePerToken).Floor()

	c, ok := p.contributions[participant]
	if !ok {
		c = &model.Contribution{Participant: participant, Amount: decimal.Zero, TokenAllocation: decimal.Zero}
		p.contributions[participant] = c
	}
	c.Amount = c.Amount.Add(amount)
	c.TokenAllocation = c.TokenAllocation.Add(allocation)
	p.totalRaised = p.totalRaised.Add(amount)

	if err := p.deps.Transfer.Debit(cctx, participant, amount); err != nil {
		c.Amount = c.Amount.Sub(amount)
		c.TokenAllocation = c.TokenAllocation.Sub(allocation)
		p.totalRaised = p.totalRaised.Sub(amount)
		if c.Amount.IsZero() {
			delete(p.contributions, participant)
		}
		p.mu.Unlock()
		return model.Contribution{}, fmt.Errorf("sale: debit %s: %w", participant, err)
	}
	result := *c
	totalRaised := p.totalRaised
	p.mu.Unlock()

	p.deps.Emitter.Emit(model.Event{
		Type:        model.EventContributionAccepted,
		PoolID:      p.id,
		Participant: participant,
		Amount:      amount,
		Allocation:  result.TokenAllocation,
		TotalRaised: totalRaised,
		At:          now,
	})
	return result, nil
}

// Finalize concludes the sale after the window closes. Soft cap reached
// means Finalized and every positive allocation is handed to the vesting
// ledger with the finalize time as TGE; soft cap missed means Cancelled —
// the designed refund path, not an error. Terminal either way; a second
// call fails with ErrAlreadyFinalized.
//
// Returns the resulting status.
func (p *Pool) Finalize(ctx context.Context, caller string, now time.Time) (string, error) {
	if p.reentered(ctx) {
		return "", ErrReentrantCall
	}
	p.mu.Lock()
	if caller != p.operator {
		p.mu.Unlock()
		return "", ErrNotOperator
	}
	if p.status != model.StatusActive {
		p.mu.Unlock()
		return "", ErrAlreadyFinalized
	}
	if !now.After(p.cfg.EndTime) {
		p.mu.Unlock()
		return "", ErrSaleNotEnded
	}

	var outcome string
	if p.totalRaised.GreaterThanOrEqual(p.cfg.SoftCap) {
		p.status = model.StatusFinalized
		outcome = model.OutcomeFinalized
		for _, c := range p.contributions {
			if err := p.ledger.Grant(c.Participant, c.TokenAllocation, now); err != nil {
				// Grants are keyed by participant and the pool is only
				// finalized once, so this cannot fire.
				p.status = model.StatusActive
				p.mu.Unlock()
				return "", err
			}
		}
	} else {
		p.status = model.StatusCancelled
		outcome = model.OutcomeCancelled
	}
	status := p.status
	totalRaised := p.totalRaised
	p.mu.Unlock()

	p.deps.Emitter.Emit(model.Event{
		Type:        model.EventFinalized,
		PoolID:      p.id,
		TotalRaised: totalRaised,
		Outcome:     outcome,
		At:          now,
	})
	return status, nil
}

// Cancel is the operator-initiated abort. Allowed any time while Active,
// before or after the end time; converges to the same Cancelled state as
// a soft-cap miss.
func (p *Pool) Cancel(ctx context.Context, caller, reason string, now time.Time) error {
	if p.reentered(ctx) {
		return ErrReentrantCall
	}
	p.mu.Lock()
	if caller != p.operator {
		p.mu.Unlock()
		return ErrNotOperator
	}
	if p.status != model.StatusActive {
		p.mu.Unlock()
		return ErrAlreadyFinalized
	}
	p.status = model.StatusCancelled
	p.mu.Unlock()

	p.deps.Emitter.Emit(model.Event{
		Type:   model.EventCancelled,
		PoolID: p.id,
		Reason: reason,
		At:     now,
	})
	return nil
}

// Refund returns a cancelled pool's contribution to the participant.
// A second call fails with ErrAlreadyRefunded rather than silently
// no-opping, so callers can tell "nothing to refund" from "already
// handled".
func (p *Pool) Refund(ctx context.Context, participant string) (decimal.Decimal, error) {
	if p.reentered(ctx) {
		return decimal.Zero, ErrReentrantCall
	}
	p.mu.Lock()
	if p.status != model.StatusCancelled {
		p.mu.Unlock()
		return decimal.Zero, ErrNotCancelled
	}
	c, ok := p.contributions[participant]
	if !ok || !c.Amount.IsPositive() {
		p.mu.Unlock()
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNothingToRefund, participant)
	}
	if c.Refunded {
		p.mu.Unlock()
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAlreadyRefunded, participant)
	}

	// Effects before external call.
	c.Refunded = true
	amount := c.Amount

	if err := p.deps.Transfer.Credit(p.reentryContext(ctx), participant, amount); err != nil {
		c.Refunded = false
		p.mu.Unlock()
		return decimal.Zero, fmt.Errorf("sale: refund credit %s: %w", participant, err)
	}
	p.mu.Unlock()

	p.deps.Emitter.Emit(model.Event{
		Type:        model.EventRefunded,
		PoolID:      p.id,
		Participant: participant,
		Amount:      amount,
		At:          time.Now().UTC(),
	})
	return amount, nil
}

// WithdrawRaised pays out the raised funds, minus the registry fee, to the
// operator. Finalized pools only; repeat calls fail once everything has
// been withdrawn. Returns the total amount paid out by this call.
//
// The fee is a percentage of the total raise and settles at most once: the
// fee and operator legs are tracked separately, so a retry after a failed
// operator credit pays only the outstanding operator share.
func (p *Pool) WithdrawRaised(ctx context.Context, caller string, now time.Time) (decimal.Decimal, error) {
	if p.reentered(ctx) {
		return decimal.Zero, ErrReentrantCall
	}
	p.mu.Lock()
	if caller != p.operator {
		p.mu.Unlock()
		return decimal.Zero, ErrNotOperator
	}
	if p.status != model.StatusFinalized {
		p.mu.Unlock()
		return decimal.Zero, ErrSaleNotFinalized
	}

	remaining := p.totalRaised.Sub(p.feePaid).Sub(p.operatorPaid)
	if !remaining.IsPositive() {
		p.mu.Unlock()
		return decimal.Zero, ErrNothingToWithdraw
	}

	feeDue := p.totalRaised.Mul(decimal.NewFromInt(p.deps.FeePercent)).Div(hundred).Sub(p.feePaid)
	if feeDue.IsNegative() {
		feeDue = decimal.Zero
	}
	operatorDue := remaining.Sub(feeDue)

	cctx := p.reentryContext(ctx)
	if feeDue.IsPositive() {
		p.feePaid = p.feePaid.Add(feeDue)
		if err := p.deps.Transfer.Credit(cctx, p.deps.FeeRecipient, feeDue); err != nil {
			p.feePaid = p.feePaid.Sub(feeDue)
			p.mu.Unlock()
			return decimal.Zero, fmt.Errorf("sale: fee credit: %w", err)
		}
	}
	if operatorDue.IsPositive() {
		p.operatorPaid = p.operatorPaid.Add(operatorDue)
		if err := p.deps.Transfer.Credit(cctx, p.operator, operatorDue); err != nil {
			// The fee leg already settled; only the operator share
			// becomes withdrawable again.
			p.operatorPaid = p.operatorPaid.Sub(operatorDue)
			p.mu.Unlock()
			return decimal.Zero, fmt.Errorf("sale: operator credit: %w", err)
		}
	}
	p.mu.Unlock()
	return remaining, nil
}

// Releasable reports the amount the participant could claim at the given
// time. Zero before finalize or for unknown participants.
func (p *Pool) Releasable(participant string, now time.Time) decimal.Decimal {
	return p.ledger.Releasable(participant, now)
}

// Claim releases vested tokens to the participant. Fails with
// ErrSaleNotFinalized before a successful finalize.
func (p *Pool) Claim(ctx context.Context, participant string, now time.Time) (decimal.Decimal, error) {
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()

	if status != model.StatusFinalized {
		return decimal.Zero, ErrSaleNotFinalized
	}
	return p.ledger.Claim(ctx, participant, now)
}
