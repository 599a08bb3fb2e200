package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/eligibility"
	"github.com/launchforge/sale-engine/internal/exposure"
	"github.com/launchforge/sale-engine/internal/model"
	"github.com/launchforge/sale-engine/internal/registry"
	"github.com/launchforge/sale-engine/internal/store"
	"github.com/launchforge/sale-engine/internal/transfer"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var testStart = time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	router chi.Router
	store  *store.MemoryStore
	book   *transfer.Book
	clock  time.Time
}

// newTestEnv wires a service against an in-memory store, a funded account
// book, and a static gate admitting alice, bob, and carol. The clock starts
// at testStart and is advanced explicitly by tests.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimits(t, nil)
}

func newTestEnvWithLimits(t *testing.T, limits *exposure.Limiter) *testEnv {
	t.Helper()

	gate := eligibility.NewStaticGate("alice", "bob", "carol")
	book := transfer.NewBook()
	for _, p := range []string{"alice", "bob", "carol"} {
		book.Deposit(p, d(100000))
	}

	reg := registry.New(registry.Config{
		HardCapFloor:    d(100),
		MaxSaleDuration: 0,
		FeePercent:      2,
		FeeRecipient:    "fees",
	}, gate, book, nil)

	st := store.NewMemoryStore()
	env := &testEnv{store: st, book: book, clock: testStart}

	svc := NewService(reg, st, limits)
	svc.now = func() time.Time { return env.clock }

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/pools", func(r chi.Router) {
			r.Post("/", svc.CreatePool)
			r.Get("/", svc.ListPools)
			r.Route("/{poolID}", func(r chi.Router) {
				r.Get("/", svc.GetPool)
				r.Post("/contributions", svc.Contribute)
				r.Get("/contributions", svc.ListPoolContributions)
				r.Post("/finalize", svc.Finalize)
				r.Post("/cancel", svc.Cancel)
				r.Post("/withdraw", svc.Withdraw)
				r.Post("/refunds", svc.Refund)
				r.Post("/claims", svc.Claim)
				r.Get("/vesting/{participant}", svc.GetVesting)
				r.Get("/payouts", svc.ListPoolPayouts)
			})
		})
		r.Get("/participants/{participant}/contributions", svc.ListParticipantContributions)
	})
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func defaultCreateRequest() CreatePoolRequest {
	return CreatePoolRequest{
		Operator:        "op",
		PricePerToken:   d(1),
		HardCap:         d(1000),
		SoftCap:         d(500),
		MinContribution: d(10),
		MaxContribution: d(200),
		StartTime:       testStart,
		EndTime:         testStart.Add(24 * time.Hour),
		TGEPercent:      20,
		CliffSeconds:    int64((30 * 24 * time.Hour).Seconds()),
		VestingSeconds:  int64((180 * 24 * time.Hour).Seconds()),
	}
}

// createPool creates a pool through the API and returns its ID.
func createPool(t *testing.T, e *testEnv, req CreatePoolRequest) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/pools", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var snap model.PoolSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	return snap.ID
}

func contribute(t *testing.T, e *testEnv, poolID, participant string, amount decimal.Decimal) {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/contributions",
		ContributeRequest{Participant: participant, Amount: amount})
	if w.Code != http.StatusOK {
		t.Fatalf("contribute failed, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreatePool(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/v1/pools", defaultCreateRequest())
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var snap model.PoolSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to decode snapshot: %v", err)
	}
	if snap.Status != model.StatusActive {
		t.Errorf("expected active status, got %s", snap.Status)
	}
	if snap.ID == "" {
		t.Error("expected a generated pool ID")
	}

	// The snapshot is persisted.
	if _, err := e.store.GetPool(context.Background(), snap.ID); err != nil {
		t.Errorf("snapshot not persisted: %v", err)
	}
}

func TestCreatePool_InvalidConfig(t *testing.T) {
	e := newTestEnv(t)

	req := defaultCreateRequest()
	req.SoftCap = d(5000) // above hard cap
	w := e.do(t, http.MethodPost, "/api/v1/pools", req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestContribute(t *testing.T) {
	e := newTestEnv(t)
	poolID := createPool(t, e, defaultCreateRequest())

	w := e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/contributions",
		ContributeRequest{Participant: "alice", Amount: d(150)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ContributeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Contribution.Amount.Equal(d(150)) {
		t.Errorf("expected amount 150, got %s", resp.Contribution.Amount)
	}
	if !resp.TotalRaised.Equal(d(150)) {
		t.Errorf("expected total raised 150, got %s", resp.TotalRaised)
	}

	// The immutable entry landed in the store.
	entries, err := e.store.ListContributionsByPool(context.Background(), poolID)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Participant != "alice" {
		t.Errorf("unexpected contribution entries: %+v", entries)
	}
}

func TestContribute_Rejections(t *testing.T) {
	e := newTestEnv(t)
	poolID := createPool(t, e, defaultCreateRequest())

	// Not on the allowlist.
	w := e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/contributions",
		ContributeRequest{Participant: "mallory", Amount: d(50)})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for ineligible participant, got %d", w.Code)
	}

	// Below the per-participant minimum.
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/contributions",
		ContributeRequest{Participant: "alice", Amount: d(5)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 below minimum, got %d", w.Code)
	}

	// Unknown pool.
	w = e.do(t, http.MethodPost, "/api/v1/pools/nope/contributions",
		ContributeRequest{Participant: "alice", Amount: d(50)})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown pool, got %d", w.Code)
	}

	// Missing participant.
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/contributions",
		ContributeRequest{Amount: d(50)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing participant, got %d", w.Code)
	}
}

func TestLifecycle_Finalized(t *testing.T) {
	e := newTestEnv(t)
	poolID := createPool(t, e, defaultCreateRequest())

	contribute(t, e, poolID, "alice", d(200))
	contribute(t, e, poolID, "bob", d(200))
	contribute(t, e, poolID, "carol", d(150)) // total 550 ≥ soft cap

	// Finalize before the window closes is a conflict.
	w := e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/finalize", OperatorRequest{Operator: "op"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before end, got %d: %s", w.Code, w.Body.String())
	}

	e.clock = testStart.Add(25 * time.Hour)
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/finalize", OperatorRequest{Operator: "op"})
	if w.Code != http.StatusOK {
		t.Fatalf("finalize failed, got %d: %s", w.Code, w.Body.String())
	}
	var snap model.PoolSnapshot
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.Status != model.StatusFinalized {
		t.Fatalf("expected finalized, got %s", snap.Status)
	}

	// Vesting status: 20% of 200 releasable at TGE.
	w = e.do(t, http.MethodGet, "/api/v1/pools/"+poolID+"/vesting/alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("vesting lookup failed, got %d: %s", w.Code, w.Body.String())
	}
	var vs VestingStatusResponse
	json.Unmarshal(w.Body.Bytes(), &vs)
	if !vs.TotalAllocation.Equal(d(200)) {
		t.Errorf("expected allocation 200, got %s", vs.TotalAllocation)
	}
	if !vs.Releasable.Equal(d(40)) {
		t.Errorf("expected releasable 40 at tge, got %s", vs.Releasable)
	}

	// Claim the TGE slice; a second claim has nothing left.
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/claims", ParticipantRequest{Participant: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("claim failed, got %d: %s", w.Code, w.Body.String())
	}
	var payout PayoutResponse
	json.Unmarshal(w.Body.Bytes(), &payout)
	if !payout.Amount.Equal(d(40)) {
		t.Errorf("expected claim 40, got %s", payout.Amount)
	}
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/claims", ParticipantRequest{Participant: "alice"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on empty claim, got %d", w.Code)
	}

	// Operator withdraws the raised 550; the 2% fee goes to the platform.
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/withdraw", OperatorRequest{Operator: "op"})
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw failed, got %d: %s", w.Code, w.Body.String())
	}
	json.Unmarshal(w.Body.Bytes(), &payout)
	if !payout.Amount.Equal(d(550)) {
		t.Errorf("expected withdrawal 550, got %s", payout.Amount)
	}
	if !e.book.Balance("fees").Equal(d(11)) {
		t.Errorf("expected fee balance 11, got %s", e.book.Balance("fees"))
	}

	// The claim shows up in the payout ledger.
	w = e.do(t, http.MethodGet, "/api/v1/pools/"+poolID+"/payouts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("payout list failed, got %d", w.Code)
	}
	var payouts []model.PayoutEntry
	json.Unmarshal(w.Body.Bytes(), &payouts)
	if len(payouts) != 1 || payouts[0].Kind != model.PayoutClaim {
		t.Errorf("unexpected payout entries: %+v", payouts)
	}
}

func TestLifecycle_Cancelled(t *testing.T) {
	e := newTestEnv(t)
	poolID := createPool(t, e, defaultCreateRequest())

	contribute(t, e, poolID, "alice", d(150))
	contribute(t, e, poolID, "bob", d(180)) // total 330 < soft cap 500

	e.clock = testStart.Add(25 * time.Hour)
	w := e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/finalize", OperatorRequest{Operator: "op"})
	if w.Code != http.StatusOK {
		t.Fatalf("finalize failed, got %d: %s", w.Code, w.Body.String())
	}
	var snap model.PoolSnapshot
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled on soft cap miss, got %s", snap.Status)
	}

	// Refund once, then conflict.
	before := e.book.Balance("alice")
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/refunds", ParticipantRequest{Participant: "alice"})
	if w.Code != http.StatusOK {
		t.Fatalf("refund failed, got %d: %s", w.Code, w.Body.String())
	}
	var payout PayoutResponse
	json.Unmarshal(w.Body.Bytes(), &payout)
	if !payout.Amount.Equal(d(150)) {
		t.Errorf("expected refund 150, got %s", payout.Amount)
	}
	if !e.book.Balance("alice").Equal(before.Add(d(150))) {
		t.Error("refund not credited to alice")
	}

	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/refunds", ParticipantRequest{Participant: "alice"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 on second refund, got %d", w.Code)
	}

	// Claims never open on a cancelled pool.
	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/claims", ParticipantRequest{Participant: "alice"})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 claiming on cancelled pool, got %d", w.Code)
	}
}

func TestCancel_Operator(t *testing.T) {
	e := newTestEnv(t)
	poolID := createPool(t, e, defaultCreateRequest())

	// Only the operator may cancel.
	w := e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/cancel",
		OperatorRequest{Operator: "mallory", Reason: "grief"})
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-operator, got %d", w.Code)
	}

	w = e.do(t, http.MethodPost, "/api/v1/pools/"+poolID+"/cancel",
		OperatorRequest{Operator: "op", Reason: "compliance"})
	if w.Code != http.StatusOK {
		t.Fatalf("cancel failed, got %d: %s", w.Code, w.Body.String())
	}
	var snap model.PoolSnapshot
	json.Unmarshal(w.Body.Bytes(), &snap)
	if snap.Status != model.StatusCancelled {
		t.Errorf("expected cancelled, got %s", snap.Status)
	}
}

func TestGetVesting_NotFound(t *testing.T) {
	e := newTestEnv(t)
	poolID := createPool(t, e, defaultCreateRequest())

	w := e.do(t, http.MethodGet, "/api/v1/pools/"+poolID+"/vesting/alice", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 before finalize, got %d", w.Code)
	}
}

func TestListPools(t *testing.T) {
	e := newTestEnv(t)
	for i := 0; i < 2; i++ {
		req := defaultCreateRequest()
		req.Operator = fmt.Sprintf("op-%d", i)
		createPool(t, e, req)
	}

	w := e.do(t, http.MethodGet, "/api/v1/pools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed, got %d", w.Code)
	}
	var snaps []model.PoolSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snaps); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(snaps) != 2 {
		t.Errorf("expected 2 pools, got %d", len(snaps))
	}
}

func TestContribute_ExposureLimits(t *testing.T) {
	// Per-operator ceiling of 250 across all of one operator's pools.
	e := newTestEnvWithLimits(t, exposure.NewLimiter(decimal.Zero, d(250)))
	p1 := createPool(t, e, defaultCreateRequest())
	p2 := createPool(t, e, defaultCreateRequest())

	contribute(t, e, p1, "alice", d(150))
	contribute(t, e, p2, "alice", d(100)) // aggregate exactly 250

	w := e.do(t, http.MethodPost, "/api/v1/pools/"+p2+"/contributions",
		ContributeRequest{Participant: "alice", Amount: d(10)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 over the operator ceiling, got %d: %s", w.Code, w.Body.String())
	}

	// Other participants are unaffected.
	contribute(t, e, p2, "bob", d(100))
}

func TestContribute_ExposureLimitsConcurrent(t *testing.T) {
	// Per-operator ceiling of 150: two simultaneous 100s to the same
	// operator's pools must not both pass the check.
	e := newTestEnvWithLimits(t, exposure.NewLimiter(decimal.Zero, d(150)))
	p1 := createPool(t, e, defaultCreateRequest())
	p2 := createPool(t, e, defaultCreateRequest())

	codes := make([]int, 2)
	var wg sync.WaitGroup
	for i, poolID := range []string{p1, p2} {
		wg.Add(1)
		go func(i int, poolID string) {
			defer wg.Done()
			body, _ := json.Marshal(ContributeRequest{Participant: "alice", Amount: d(100)})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/pools/"+poolID+"/contributions", bytes.NewReader(body))
			w := httptest.NewRecorder()
			e.router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i, poolID)
	}
	wg.Wait()

	ok, rejected := 0, 0
	for _, code := range codes {
		switch code {
		case http.StatusOK:
			ok++
		case http.StatusBadRequest:
			rejected++
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("expected exactly one admitted and one rejected, got codes %v", codes)
	}
}

func TestListParticipantContributions(t *testing.T) {
	e := newTestEnv(t)
	p1 := createPool(t, e, defaultCreateRequest())
	p2 := createPool(t, e, defaultCreateRequest())

	contribute(t, e, p1, "alice", d(100))
	contribute(t, e, p2, "alice", d(50))
	contribute(t, e, p1, "bob", d(80))

	w := e.do(t, http.MethodGet, "/api/v1/participants/alice/contributions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list failed, got %d", w.Code)
	}
	var entries []model.ContributionEntry
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 2 {
		t.Errorf("expected 2 entries for alice, got %d", len(entries))
	}
}
