// Package registry creates and tracks sale pools. It owns the platform
// bounds (hard-cap floor, maximum sale duration) and the fee split applied
// when an operator withdraws raised funds.
package registry

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/eligibility"
	"github.com/launchforge/sale-engine/internal/model"
	"github.com/launchforge/sale-engine/internal/sale"
	"github.com/launchforge/sale-engine/internal/transfer"
)

// ErrPoolNotFound is returned when a pool ID is unknown.
var ErrPoolNotFound = errors.New("registry: pool not found")

// Config holds the registry-level platform parameters.
type Config struct {
	// HardCapFloor is the smallest hard cap a sale may configure.
	HardCapFloor decimal.Decimal

	// MaxSaleDuration bounds endTime - startTime. Zero means unbounded.
	MaxSaleDuration time.Duration

	// FeePercent of withdrawn funds paid to FeeRecipient, 0-100.
	FeePercent   int64
	FeeRecipient string
}

// Registry is the pool factory and directory.
type Registry struct {
	mu    sync.RWMutex
	cfg   Config
	pools map[string]*sale.Pool
	order []string // creation order for stable listing

	gate     eligibility.Gate
	transfer transfer.Transfer
	emitter  model.Emitter
}

// New creates a registry wiring the given collaborators into every pool it
// creates.
func New(cfg Config, gate eligibility.Gate, tr transfer.Transfer, emitter model.Emitter) *Registry {
	return &Registry{
		cfg:      cfg,
		pools:    make(map[string]*sale.Pool),
		gate:     gate,
		transfer: tr,
		emitter:  emitter,
	}
}

// Config returns the registry configuration.
func (r *Registry) Config() Config { return r.cfg }

// CreatePool validates the sale configuration against the platform bounds
// and constructs a new Active pool with a fresh ID. The pool re-validates
// the same bounds itself.
func (r *Registry) CreatePool(operator string, cfg model.SaleConfig, now time.Time) (*sale.Pool, error) {
	bounds := sale.Bounds{
		HardCapFloor: r.cfg.HardCapFloor,
		MaxDuration:  r.cfg.MaxSaleDuration,
	}
	deps := sale.Deps{
		Gate:         r.gate,
		Transfer:     r.transfer,
		Emitter:      r.emitter,
		FeePercent:   r.cfg.FeePercent,
		FeeRecipient: r.cfg.FeeRecipient,
	}

	pool, err := sale.NewPool(uuid.New().String(), operator, cfg, bounds, deps, now)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.pools[pool.ID()] = pool
	r.order = append(r.order, pool.ID())
	r.mu.Unlock()

	return pool, nil
}

// Get returns a pool by ID.
func (r *Registry) Get(id string) (*sale.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pool, ok := r.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

// List returns all pools in creation order.
func (r *Registry) List() []*sale.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*sale.Pool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.pools[id])
	}
	return out
}
