package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/launchforge/sale-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu            sync.RWMutex
	pools         map[string]*model.PoolSnapshot
	poolOrder     []string
	contributions []model.ContributionEntry
	vesting       map[string]map[string]*model.VestingEntry // poolID → participant → entry
	payouts       []model.PayoutEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:   make(map[string]*model.PoolSnapshot),
		vesting: make(map[string]map[string]*model.VestingEntry),
	}
}

func (s *MemoryStore) SavePool(_ context.Context, snap *model.PoolSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[snap.ID]; !exists {
		s.poolOrder = append(s.poolOrder, snap.ID)
	}
	// Store a copy to avoid external mutation.
	copy := *snap
	s.pools[snap.ID] = &copy
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("pool %s not found", id)
	}
	copy := *snap
	return &copy, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.PoolSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.PoolSnapshot, 0, len(s.poolOrder))
	for _, id := range s.poolOrder {
		pools = append(pools, *s.pools[id])
	}
	return pools, nil
}

func (s *MemoryStore) InsertContribution(_ context.Context, entry *model.ContributionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.contributions = append(s.contributions, *entry)
	return nil
}

func (s *MemoryStore) ListContributionsByPool(_ context.Context, poolID string) ([]model.ContributionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ContributionEntry
	for _, e := range s.contributions {
		if e.PoolID == poolID {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListContributionsByParticipant(_ context.Context, participant string) ([]model.ContributionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ContributionEntry
	for _, e := range s.contributions {
		if e.Participant == participant {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) SaveVestingEntry(_ context.Context, entry *model.VestingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byParticipant, ok := s.vesting[entry.PoolID]
	if !ok {
		byParticipant = make(map[string]*model.VestingEntry)
		s.vesting[entry.PoolID] = byParticipant
	}
	copy := *entry
	byParticipant[entry.Participant] = &copy
	return nil
}

func (s *MemoryStore) ListVestingEntries(_ context.Context, poolID string) ([]model.VestingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.VestingEntry
	for _, e := range s.vesting[poolID] {
		result = append(result, *e)
	}
	return result, nil
}

func (s *MemoryStore) InsertPayout(_ context.Context, entry *model.PayoutEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payouts = append(s.payouts, *entry)
	return nil
}

func (s *MemoryStore) ListPayoutsByPool(_ context.Context, poolID string) ([]model.PayoutEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PayoutEntry
	for _, e := range s.payouts {
		if e.PoolID == poolID {
			result = append(result, e)
		}
	}
	return result, nil
}
