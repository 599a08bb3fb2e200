// Package store defines the persistence interface for the sale engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The in-memory sale.Pool objects are the transactional authority; the
// store holds snapshots and immutable entry ledgers for queries and
// restarts.
package store

import (
	"context"

	"github.com/launchforge/sale-engine/internal/model"
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Pool snapshots ---

	// SavePool upserts a pool snapshot.
	SavePool(ctx context.Context, snap *model.PoolSnapshot) error

	// GetPool retrieves a pool snapshot by ID.
	GetPool(ctx context.Context, id string) (*model.PoolSnapshot, error)

	// ListPools returns all pool snapshots.
	ListPools(ctx context.Context) ([]model.PoolSnapshot, error)

	// --- Immutable contribution ledger ---

	// InsertContribution appends an immutable contribution record.
	InsertContribution(ctx context.Context, entry *model.ContributionEntry) error

	// ListContributionsByPool returns all contributions for a pool.
	ListContributionsByPool(ctx context.Context, poolID string) ([]model.ContributionEntry, error)

	// ListContributionsByParticipant returns all contributions by one participant.
	ListContributionsByParticipant(ctx context.Context, participant string) ([]model.ContributionEntry, error)

	// --- Vesting entries ---

	// SaveVestingEntry upserts a participant's vesting state.
	SaveVestingEntry(ctx context.Context, entry *model.VestingEntry) error

	// ListVestingEntries returns all vesting entries for a pool.
	ListVestingEntries(ctx context.Context, poolID string) ([]model.VestingEntry, error)

	// --- Immutable payout ledger (refunds and claims) ---

	// InsertPayout appends an immutable refund or claim record.
	InsertPayout(ctx context.Context, entry *model.PayoutEntry) error

	// ListPayoutsByPool returns all payouts for a pool.
	ListPayoutsByPool(ctx context.Context, poolID string) ([]model.PayoutEntry, error)
}
