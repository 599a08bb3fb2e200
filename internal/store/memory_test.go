package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/model"
	"github.com/launchforge/sale-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var at = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

func snapshot(id string) *model.PoolSnapshot {
	return &model.PoolSnapshot{
		ID:          id,
		Operator:    "op",
		Status:      model.StatusActive,
		TotalRaised: d(0),
		Withdrawn:   d(0),
		CreatedAt:   at,
		Config: model.SaleConfig{
			PricePerToken:   d(1),
			HardCap:         d(1000),
			SoftCap:         d(500),
			MinContribution: d(10),
			MaxContribution: d(200),
			StartTime:       at,
			EndTime:         at.Add(24 * time.Hour),
			TGEPercent:      20,
		},
	}
}

func TestSavePool_Upsert(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	snap := snapshot("p1")
	if err := s.SavePool(ctx, snap); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// Mutating the caller's copy must not affect the stored snapshot.
	snap.Status = model.StatusCancelled
	got, err := s.GetPool(ctx, "p1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != model.StatusActive {
		t.Errorf("stored snapshot mutated through caller copy: %s", got.Status)
	}

	// Re-saving replaces state without duplicating the listing.
	snap.TotalRaised = d(300)
	if err := s.SavePool(ctx, snap); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
	pools, err := s.ListPools(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("expected 1 pool after upsert, got %d", len(pools))
	}
	if !pools[0].TotalRaised.Equal(d(300)) {
		t.Errorf("expected total raised 300, got %s", pools[0].TotalRaised)
	}
}

func TestGetPool_NotFound(t *testing.T) {
	s := store.NewMemoryStore()
	if _, err := s.GetPool(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown pool")
	}
}

func TestListPools_CreationOrder(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := s.SavePool(ctx, snapshot(id)); err != nil {
			t.Fatalf("save %s failed: %v", id, err)
		}
	}

	pools, err := s.ListPools(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i, p := range pools {
		if p.ID != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], p.ID)
		}
	}
}

func TestContributions(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	entries := []model.ContributionEntry{
		{ID: "c1", PoolID: "p1", Participant: "alice", Amount: d(100), Allocation: d(100), Timestamp: at},
		{ID: "c2", PoolID: "p1", Participant: "bob", Amount: d(50), Allocation: d(50), Timestamp: at},
		{ID: "c3", PoolID: "p2", Participant: "alice", Amount: d(70), Allocation: d(70), Timestamp: at},
	}
	for i := range entries {
		if err := s.InsertContribution(ctx, &entries[i]); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	byPool, err := s.ListContributionsByPool(ctx, "p1")
	if err != nil {
		t.Fatalf("list by pool failed: %v", err)
	}
	if len(byPool) != 2 {
		t.Errorf("expected 2 entries for p1, got %d", len(byPool))
	}

	byParticipant, err := s.ListContributionsByParticipant(ctx, "alice")
	if err != nil {
		t.Fatalf("list by participant failed: %v", err)
	}
	if len(byParticipant) != 2 {
		t.Errorf("expected 2 entries for alice, got %d", len(byParticipant))
	}
}

func TestVestingEntries_Upsert(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	entry := &model.VestingEntry{
		PoolID: "p1", Participant: "alice",
		TotalAllocation: d(1000), TGETimestamp: at, Released: d(0),
	}
	if err := s.SaveVestingEntry(ctx, entry); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	// A claim updates Released in place.
	entry.Released = d(200)
	if err := s.SaveVestingEntry(ctx, entry); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}

	got, err := s.ListVestingEntries(ctx, "p1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	if !got[0].Released.Equal(d(200)) {
		t.Errorf("expected released 200, got %s", got[0].Released)
	}
}

func TestPayouts(t *testing.T) {
	s := store.NewMemoryStore()
	ctx := context.Background()

	payouts := []model.PayoutEntry{
		{ID: "x1", PoolID: "p1", Participant: "alice", Kind: model.PayoutRefund, Amount: d(100), Timestamp: at},
		{ID: "x2", PoolID: "p1", Participant: "bob", Kind: model.PayoutClaim, Amount: d(40), Timestamp: at},
		{ID: "x3", PoolID: "p2", Participant: "alice", Kind: model.PayoutClaim, Amount: d(10), Timestamp: at},
	}
	for i := range payouts {
		if err := s.InsertPayout(ctx, &payouts[i]); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	got, err := s.ListPayoutsByPool(ctx, "p1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 payouts for p1, got %d", len(got))
	}
	if got[0].Kind != model.PayoutRefund || got[1].Kind != model.PayoutClaim {
		t.Errorf("unexpected payout kinds: %s, %s", got[0].Kind, got[1].Kind)
	}
}
