package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types emitted by the core. Consumers (WebSocket hub, indexers)
// receive these fire-and-forget; correctness never depends on delivery.
const (
	EventContributionAccepted = "contribution_accepted"
	EventFinalized            = "finalized"
	EventCancelled            = "cancelled"
	EventRefunded             = "refunded"
	EventClaimed              = "claimed"
)

// Finalize outcomes reported on EventFinalized.
const (
	OutcomeFinalized = "finalized"
	OutcomeCancelled = "soft_cap_missed"
)

// Event is a notification about a pool state change.
type Event struct {
	Type        string          `json:"type"`
	PoolID      string          `json:"pool_id"`
	Participant string          `json:"participant,omitempty"`
	Amount      decimal.Decimal `json:"amount,omitempty"`
	Allocation  decimal.Decimal `json:"allocation,omitempty"`
	TotalRaised decimal.Decimal `json:"total_raised,omitempty"`
	Released    decimal.Decimal `json:"released,omitempty"` // cumulative, on claims
	Outcome     string          `json:"outcome,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	At          time.Time       `json:"at"`
}

// Emitter receives events from the core. Implementations must not block;
// slow consumers drop rather than stall a mutating operation.
type Emitter interface {
	Emit(ev Event)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(Event) {}
