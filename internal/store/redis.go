package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/launchforge/sale-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SavePool(ctx context.Context, snap *model.PoolSnapshot) error {
	if err := s.primary.SavePool(ctx, snap); err != nil {
		return err
	}
	s.cachePool(ctx, snap)
	return nil
}

func (s *CachedStore) InsertContribution(ctx context.Context, entry *model.ContributionEntry) error {
	if err := s.primary.InsertContribution(ctx, entry); err != nil {
		return err
	}
	// Invalidate the participant's contribution cache.
	s.rdb.Del(ctx, participantKey(entry.Participant))
	return nil
}

func (s *CachedStore) SaveVestingEntry(ctx context.Context, entry *model.VestingEntry) error {
	return s.primary.SaveVestingEntry(ctx, entry)
}

func (s *CachedStore) InsertPayout(ctx context.Context, entry *model.PayoutEntry) error {
	return s.primary.InsertPayout(ctx, entry)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.PoolSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, poolKey(id)).Bytes()
	if err == nil {
		var snap model.PoolSnapshot
		if json.Unmarshal(data, &snap) == nil {
			return &snap, nil
		}
	}

	// Cache miss: read from primary.
	snap, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cachePool(ctx, snap)
	return snap, nil
}

func (s *CachedStore) ListContributionsByParticipant(ctx context.Context, participant string) ([]model.ContributionEntry, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, participantKey(participant)).Bytes()
	if err == nil {
		var entries []model.ContributionEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss.
	entries, err := s.primary.ListContributionsByParticipant(ctx, participant)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(entries); err == nil {
		s.rdb.Set(ctx, participantKey(participant), data, s.ttl)
	}
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.PoolSnapshot, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) ListContributionsByPool(ctx context.Context, poolID string) ([]model.ContributionEntry, error) {
	return s.primary.ListContributionsByPool(ctx, poolID)
}

func (s *CachedStore) ListVestingEntries(ctx context.Context, poolID string) ([]model.VestingEntry, error) {
	return s.primary.ListVestingEntries(ctx, poolID)
}

func (s *CachedStore) ListPayoutsByPool(ctx context.Context, poolID string) ([]model.PayoutEntry, error) {
	return s.primary.ListPayoutsByPool(ctx, poolID)
}

// --- Cache helpers ---

func (s *CachedStore) cachePool(ctx context.Context, snap *model.PoolSnapshot) {
	if data, err := json.Marshal(snap); err == nil {
		s.rdb.Set(ctx, poolKey(snap.ID), data, s.ttl)
	}
}

func poolKey(id string) string        { return fmt.Sprintf("pool:%s", id) }
func participantKey(id string) string { return fmt.Sprintf("contributions:%s", id) }
