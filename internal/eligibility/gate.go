// Package eligibility answers whether a participant is currently permitted
// to contribute to a sale. The engine queries the gate on every
// contribution and never caches the answer — eligibility can change
// between calls.
package eligibility

import (
	"context"
	"sync"
)

// Gate is the capability check consulted before each contribution.
// A query error is not "not eligible": the engine propagates it and
// aborts the contribution.
type Gate interface {
	IsEligible(ctx context.Context, participant string) (bool, error)
}

// StaticGate is an in-memory allowlist. Used for development and testing,
// or for sales with a fixed participant set loaded from configuration.
type StaticGate struct {
	mu      sync.RWMutex
	allowed map[string]bool
}

// NewStaticGate creates a gate allowing exactly the given participants.
func NewStaticGate(participants ...string) *StaticGate {
	g := &StaticGate{allowed: make(map[string]bool, len(participants))}
	for _, p := range participants {
		g.allowed[p] = true
	}
	return g
}

// Allow adds a participant to the allowlist.
func (g *StaticGate) Allow(participant string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed[participant] = true
}

// Revoke removes a participant from the allowlist.
func (g *StaticGate) Revoke(participant string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.allowed, participant)
}

func (g *StaticGate) IsEligible(_ context.Context, participant string) (bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allowed[participant], nil
}
