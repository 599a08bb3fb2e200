// Package api provides the HTTP handlers for creating sale pools,
// admitting contributions, finalizing or cancelling sales, and paying out
// refunds and vesting claims.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/exposure"
	"github.com/launchforge/sale-engine/internal/metrics"
	"github.com/launchforge/sale-engine/internal/model"
	"github.com/launchforge/sale-engine/internal/registry"
	"github.com/launchforge/sale-engine/internal/sale"
	"github.com/launchforge/sale-engine/internal/store"
	"github.com/launchforge/sale-engine/internal/transfer"
	"github.com/launchforge/sale-engine/internal/vesting"
)

// Service handles sale pool operations. The in-memory pools own the
// transactional state; the store receives snapshots and immutable entry
// records after each successful mutation.
type Service struct {
	registry *registry.Registry
	store    store.Store
	limits   *exposure.Limiter // nil disables platform exposure checks
	limitMu  sync.Mutex        // serializes exposure check + admission
	now      func() time.Time
}

// NewService creates a new sale service.
func NewService(reg *registry.Registry, st store.Store, limits *exposure.Limiter) *Service {
	return &Service{
		registry: reg,
		store:    st,
		limits:   limits,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// --- Request/Response types ---

// CreatePoolRequest is the JSON body for pool creation.
type CreatePoolRequest struct {
	Operator        string          `json:"operator"`
	PricePerToken   decimal.Decimal `json:"price_per_token"`
	HardCap         decimal.Decimal `json:"hard_cap"`
	SoftCap         decimal.Decimal `json:"soft_cap"`
	MinContribution decimal.Decimal `json:"min_contribution"`
	MaxContribution decimal.Decimal `json:"max_contribution"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
	TGEPercent      int64           `json:"tge_percent"`
	CliffSeconds    int64           `json:"cliff_seconds"`
	VestingSeconds  int64           `json:"vesting_seconds"`
}

// ContributeRequest is the JSON body for POST /pools/{poolID}/contributions.
type ContributeRequest struct {
	Participant string          `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`
}

// ContributeResponse is returned from a successful contribution.
type ContributeResponse struct {
	PoolID       string             `json:"pool_id"`
	Contribution model.Contribution `json:"contribution"`
	TotalRaised  decimal.Decimal    `json:"total_raised"`
}

// OperatorRequest is the JSON body for operator-only operations.
type OperatorRequest struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason,omitempty"`
}

// ParticipantRequest is the JSON body for refund and claim operations.
type ParticipantRequest struct {
	Participant string `json:"participant"`
}

// PayoutResponse is returned from refunds, claims, and withdrawals.
type PayoutResponse struct {
	PoolID      string          `json:"pool_id"`
	Participant string          `json:"participant,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

// VestingStatusResponse describes a participant's release state.
type VestingStatusResponse struct {
	PoolID          string          `json:"pool_id"`
	Participant     string          `json:"participant"`
	TotalAllocation decimal.Decimal `json:"total_allocation"`
	Released        decimal.Decimal `json:"released"`
	Releasable      decimal.Decimal `json:"releasable"`
	TGETimestamp    time.Time       `json:"tge_timestamp"`
}

// --- HTTP Handlers ---

// CreatePool handles POST /api/v1/pools
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg := model.SaleConfig{
		PricePerToken:   req.PricePerToken,
		HardCap:         req.HardCap,
		SoftCap:         req.SoftCap,
		MinContribution: req.MinContribution,
		MaxContribution: req.MaxContribution,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		TGEPercent:      req.TGEPercent,
		CliffDuration:   time.Duration(req.CliffSeconds) * time.Second,
		VestingDuration: time.Duration(req.VestingSeconds) * time.Second,
	}

	pool, err := s.registry.CreatePool(req.Operator, cfg, s.now())
	if err != nil {
		s.writeDomainError(w, "create_pool", err)
		return
	}

	snap := pool.Snapshot()
	if err := s.store.SavePool(r.Context(), &snap); err != nil {
		slog.Error("pool snapshot save failed", "pool", pool.ID(), "err", err)
	}

	metrics.PoolsCreated.Inc()
	metrics.ActivePools.Inc()
	slog.Info("pool created",
		"id", pool.ID(),
		"operator", req.Operator,
		"hard_cap", cfg.HardCap.String(),
		"soft_cap", cfg.SoftCap.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(snap)
}

// ListPools handles GET /api/v1/pools
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools := s.registry.List()
	snaps := make([]model.PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		snaps = append(snaps, p.Snapshot())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snaps)
}

// GetPool handles GET /api/v1/pools/{poolID}
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	snap := pool.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Contribute handles POST /api/v1/pools/{poolID}/contributions
func (s *Service) Contribute(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var req ContributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Participant == "" {
		writeError(w, "participant is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	// The ceiling check and the admission must observe the same positions:
	// limitMu is held across both so two in-flight contributions cannot
	// each pass the check against the pre-admission state.
	if s.limits != nil && s.limits.Enabled() {
		s.limitMu.Lock()
		positions := s.participantPositions(req.Participant)
		if err := s.limits.Check(pool.ID(), pool.Operator(), req.Amount, positions); err != nil {
			s.limitMu.Unlock()
			s.writeDomainError(w, "contribute", err)
			return
		}
		contribution, err := pool.Contribute(ctx, req.Participant, req.Amount, now)
		s.limitMu.Unlock()
		if err != nil {
			s.writeDomainError(w, "contribute", err)
			return
		}
		s.finishContribution(ctx, w, pool, req, contribution, now)
		return
	}

	contribution, err := pool.Contribute(ctx, req.Participant, req.Amount, now)
	if err != nil {
		s.writeDomainError(w, "contribute", err)
		return
	}
	s.finishContribution(ctx, w, pool, req, contribution, now)
}

// finishContribution persists the snapshot and the immutable entry for an
// admitted contribution and writes the response.
func (s *Service) finishContribution(ctx context.Context, w http.ResponseWriter, pool *sale.Pool, req ContributeRequest, contribution model.Contribution, now time.Time) {
	snap := pool.Snapshot()
	if err := s.store.SavePool(ctx, &snap); err != nil {
		slog.Error("pool snapshot save failed", "pool", pool.ID(), "err", err)
	}
	entry := &model.ContributionEntry{
		ID:          uuid.New().String(),
		PoolID:      pool.ID(),
		Participant: req.Participant,
		Amount:      req.Amount,
		Allocation:  req.Amount.Div(pool.Config().PricePerToken).Floor(),
		Timestamp:   now,
	}
	if err := s.store.InsertContribution(ctx, entry); err != nil {
		slog.Error("contribution entry save failed", "pool", pool.ID(), "err", err)
	}

	metrics.ContributionsTotal.WithLabelValues(pool.ID()).Inc()
	slog.Info("contribution accepted",
		"pool", pool.ID(),
		"participant", req.Participant,
		"amount", req.Amount.String(),
		"allocation", contribution.TokenAllocation.String(),
		"total_raised", snap.TotalRaised.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ContributeResponse{
		PoolID:       pool.ID(),
		Contribution: contribution,
		TotalRaised:  snap.TotalRaised,
	})
}

// Finalize handles POST /api/v1/pools/{poolID}/finalize
func (s *Service) Finalize(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var req OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	now := s.now()

	status, err := pool.Finalize(ctx, req.Operator, now)
	if err != nil {
		s.writeDomainError(w, "finalize", err)
		return
	}

	snap := pool.Snapshot()
	if err := s.store.SavePool(ctx, &snap); err != nil {
		slog.Error("pool snapshot save failed", "pool", pool.ID(), "err", err)
	}
	for _, e := range pool.Ledger().Entries() {
		entry := e
		if err := s.store.SaveVestingEntry(ctx, &entry); err != nil {
			slog.Error("vesting entry save failed", "pool", pool.ID(), "participant", e.Participant, "err", err)
		}
	}

	metrics.ActivePools.Dec()
	metrics.FinalizeOutcomes.WithLabelValues(status).Inc()
	slog.Info("pool finalized",
		"pool", pool.ID(),
		"status", status,
		"total_raised", snap.TotalRaised.String(),
	)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Cancel handles POST /api/v1/pools/{poolID}/cancel
func (s *Service) Cancel(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var req OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := pool.Cancel(r.Context(), req.Operator, req.Reason, s.now()); err != nil {
		s.writeDomainError(w, "cancel", err)
		return
	}

	snap := pool.Snapshot()
	if err := s.store.SavePool(r.Context(), &snap); err != nil {
		slog.Error("pool snapshot save failed", "pool", pool.ID(), "err", err)
	}

	metrics.ActivePools.Dec()
	slog.Info("pool cancelled", "pool", pool.ID(), "reason", req.Reason)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

// Refund handles POST /api/v1/pools/{poolID}/refunds
func (s *Service) Refund(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var req ParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	amount, err := pool.Refund(ctx, req.Participant)
	if err != nil {
		s.writeDomainError(w, "refund", err)
		return
	}

	s.recordPayout(ctx, pool.ID(), req.Participant, model.PayoutRefund, amount)
	metrics.RefundsTotal.Inc()
	slog.Info("refund paid", "pool", pool.ID(), "participant", req.Participant, "amount", amount.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PayoutResponse{
		PoolID:      pool.ID(),
		Participant: req.Participant,
		Amount:      amount,
	})
}

// Withdraw handles POST /api/v1/pools/{poolID}/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var req OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	amount, err := pool.WithdrawRaised(ctx, req.Operator, s.now())
	if err != nil {
		s.writeDomainError(w, "withdraw", err)
		return
	}

	snap := pool.Snapshot()
	if err := s.store.SavePool(ctx, &snap); err != nil {
		slog.Error("pool snapshot save failed", "pool", pool.ID(), "err", err)
	}

	slog.Info("raised funds withdrawn", "pool", pool.ID(), "amount", amount.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PayoutResponse{PoolID: pool.ID(), Amount: amount})
}

// Claim handles POST /api/v1/pools/{poolID}/claims
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	var req ParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	amount, err := pool.Claim(ctx, req.Participant, s.now())
	if err != nil {
		s.writeDomainError(w, "claim", err)
		return
	}

	if entry, ok := pool.Ledger().Entry(req.Participant); ok {
		if err := s.store.SaveVestingEntry(ctx, &entry); err != nil {
			slog.Error("vesting entry save failed", "pool", pool.ID(), "participant", req.Participant, "err", err)
		}
	}
	s.recordPayout(ctx, pool.ID(), req.Participant, model.PayoutClaim, amount)

	metrics.ClaimsTotal.Inc()
	slog.Info("claim paid", "pool", pool.ID(), "participant", req.Participant, "amount", amount.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PayoutResponse{
		PoolID:      pool.ID(),
		Participant: req.Participant,
		Amount:      amount,
	})
}

// GetVesting handles GET /api/v1/pools/{poolID}/vesting/{participant}
func (s *Service) GetVesting(w http.ResponseWriter, r *http.Request) {
	pool, err := s.registry.Get(chi.URLParam(r, "poolID"))
	if err != nil {
		writeError(w, "pool not found", http.StatusNotFound)
		return
	}

	participant := chi.URLParam(r, "participant")
	entry, ok := pool.Ledger().Entry(participant)
	if !ok {
		writeError(w, "no vesting entry for participant", http.StatusNotFound)
		return
	}

	now := s.now()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(VestingStatusResponse{
		PoolID:          pool.ID(),
		Participant:     participant,
		TotalAllocation: entry.TotalAllocation,
		Released:        entry.Released,
		Releasable:      pool.Releasable(participant, now),
		TGETimestamp:    entry.TGETimestamp,
	})
}

// ListPoolContributions handles GET /api/v1/pools/{poolID}/contributions
func (s *Service) ListPoolContributions(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	entries, err := s.store.ListContributionsByPool(r.Context(), poolID)
	if err != nil {
		writeError(w, "failed to list contributions", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.ContributionEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// ListParticipantContributions handles GET /api/v1/participants/{participant}/contributions
func (s *Service) ListParticipantContributions(w http.ResponseWriter, r *http.Request) {
	participant := chi.URLParam(r, "participant")

	entries, err := s.store.ListContributionsByParticipant(r.Context(), participant)
	if err != nil {
		writeError(w, "failed to list contributions", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.ContributionEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// ListPoolPayouts handles GET /api/v1/pools/{poolID}/payouts
func (s *Service) ListPoolPayouts(w http.ResponseWriter, r *http.Request) {
	poolID := chi.URLParam(r, "poolID")

	entries, err := s.store.ListPayoutsByPool(r.Context(), poolID)
	if err != nil {
		writeError(w, "failed to list payouts", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.PayoutEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// --- Helpers ---

// participantPositions collects a participant's live exposure across every
// registered pool for the platform limit check. Refunded contributions no
// longer count.
func (s *Service) participantPositions(participant string) []exposure.Position {
	var out []exposure.Position
	for _, p := range s.registry.List() {
		c, ok := p.Contribution(participant)
		if !ok || c.Refunded {
			continue
		}
		out = append(out, exposure.Position{
			PoolID:   p.ID(),
			Operator: p.Operator(),
			Amount:   c.Amount,
		})
	}
	return out
}

func (s *Service) recordPayout(ctx context.Context, poolID, participant, kind string, amount decimal.Decimal) {
	entry := &model.PayoutEntry{
		ID:          uuid.New().String(),
		PoolID:      poolID,
		Participant: participant,
		Kind:        kind,
		Amount:      amount,
		Timestamp:   s.now(),
	}
	if err := s.store.InsertPayout(ctx, entry); err != nil {
		slog.Error("payout entry save failed", "pool", poolID, "participant", participant, "err", err)
	}
}

// errStatus maps domain errors to HTTP status codes so callers can
// distinguish rejections that need corrected input from state conflicts.
func errStatus(err error) int {
	switch {
	case errors.Is(err, sale.ErrInvalidAmount),
		errors.Is(err, sale.ErrBelowMinimum),
		errors.Is(err, sale.ErrAboveMaximum),
		errors.Is(err, sale.ErrHardCapExceeded),
		errors.Is(err, sale.ErrSaleWindowClosed),
		errors.Is(err, sale.ErrInvalidConfig),
		errors.Is(err, exposure.ErrPerPoolLimitExceeded),
		errors.Is(err, exposure.ErrPerOperatorLimitExceeded),
		errors.Is(err, transfer.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, sale.ErrNotEligible),
		errors.Is(err, sale.ErrNotOperator):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrPoolNotFound),
		errors.Is(err, vesting.ErrNoVesting):
		return http.StatusNotFound
	case errors.Is(err, sale.ErrSaleNotActive),
		errors.Is(err, sale.ErrAlreadyFinalized),
		errors.Is(err, sale.ErrSaleNotEnded),
		errors.Is(err, sale.ErrSaleNotFinalized),
		errors.Is(err, sale.ErrNotCancelled),
		errors.Is(err, sale.ErrNothingToRefund),
		errors.Is(err, sale.ErrAlreadyRefunded),
		errors.Is(err, sale.ErrNothingToWithdraw),
		errors.Is(err, sale.ErrReentrantCall),
		errors.Is(err, vesting.ErrNothingToClaim),
		errors.Is(err, vesting.ErrReentrantCall):
		return http.StatusConflict
	default:
		// Collaborator failures (gate unreachable, transfer backend down).
		return http.StatusBadGateway
	}
}

func (s *Service) writeDomainError(w http.ResponseWriter, op string, err error) {
	status := errStatus(err)
	metrics.RejectionsTotal.WithLabelValues(op, http.StatusText(status)).Inc()
	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
