// Package model defines the core domain types shared across the sale engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pool lifecycle states. A pool is created Active and moves to exactly one
// of Finalized or Cancelled, after which no transition leaves it.
const (
	StatusActive    = "active"
	StatusFinalized = "finalized"
	StatusCancelled = "cancelled"
)

// SaleConfig holds the immutable parameters of one token sale.
type SaleConfig struct {
	// PricePerToken is the fixed payment-per-token ratio for the whole sale.
	PricePerToken decimal.Decimal `json:"price_per_token" db:"price_per_token"`

	HardCap decimal.Decimal `json:"hard_cap" db:"hard_cap"`
	SoftCap decimal.Decimal `json:"soft_cap" db:"soft_cap"`

	MinContribution decimal.Decimal `json:"min_contribution" db:"min_contribution"`
	MaxContribution decimal.Decimal `json:"max_contribution" db:"max_contribution"`

	StartTime time.Time `json:"start_time" db:"start_time"`
	EndTime   time.Time `json:"end_time" db:"end_time"`

	// TGEPercent is the share of an allocation unlocked immediately at
	// finalize time, 0-100.
	TGEPercent int64 `json:"tge_percent" db:"tge_percent"`

	CliffDuration   time.Duration `json:"cliff_duration" db:"cliff_duration"`
	VestingDuration time.Duration `json:"vesting_duration" db:"vesting_duration"`
}

// Contribution is the aggregate record for one participant in one pool.
// Amount only grows while the pool is Active; Refunded flips true at most
// once, and only on a cancelled pool.
type Contribution struct {
	Participant     string          `json:"participant"`
	Amount          decimal.Decimal `json:"amount"`
	TokenAllocation decimal.Decimal `json:"token_allocation"`
	Refunded        bool            `json:"refunded"`
}

// PoolSnapshot is the persisted view of a pool's state. The in-memory
// sale.Pool is the transactional authority; snapshots exist for queries
// and restarts.
type PoolSnapshot struct {
	ID          string          `json:"id" db:"id"`
	Operator    string          `json:"operator" db:"operator"`
	Config      SaleConfig      `json:"config"`
	Status      string          `json:"status" db:"status"`
	TotalRaised decimal.Decimal `json:"total_raised" db:"total_raised"`
	Withdrawn   decimal.Decimal `json:"withdrawn" db:"withdrawn"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ContributionEntry is an immutable record of one accepted contribution.
// Once created, these are never modified or deleted.
type ContributionEntry struct {
	ID          string          `json:"id" db:"id"`
	PoolID      string          `json:"pool_id" db:"pool_id"`
	Participant string          `json:"participant" db:"participant"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Allocation  decimal.Decimal `json:"allocation" db:"allocation"` // allocation minted by this contribution
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// VestingEntry is one participant's release schedule state, created at
// finalize time. TotalAllocation and TGETimestamp never change; Released
// is monotone and bounded by TotalAllocation.
type VestingEntry struct {
	PoolID          string          `json:"pool_id" db:"pool_id"`
	Participant     string          `json:"participant" db:"participant"`
	TotalAllocation decimal.Decimal `json:"total_allocation" db:"total_allocation"`
	TGETimestamp    time.Time       `json:"tge_timestamp" db:"tge_timestamp"`
	Released        decimal.Decimal `json:"released" db:"released"`
}

// PayoutEntry is an immutable record of value leaving the engine: a refund
// on a cancelled pool or a vesting claim on a finalized one.
type PayoutEntry struct {
	ID          string          `json:"id" db:"id"`
	PoolID      string          `json:"pool_id" db:"pool_id"`
	Participant string          `json:"participant" db:"participant"`
	Kind        string          `json:"kind" db:"kind"` // "refund" or "claim"
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// Payout kinds.
const (
	PayoutRefund = "refund"
	PayoutClaim  = "claim"
)
