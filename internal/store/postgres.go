package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/launchforge/sale-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision;
// durations are stored as whole seconds.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) SavePool(ctx context.Context, snap *model.PoolSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pools (id, operator, price_per_token, hard_cap, soft_cap,
		                    min_contribution, max_contribution, start_time, end_time,
		                    tge_percent, cliff_seconds, vesting_seconds,
		                    status, total_raised, withdrawn, created_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC,
		         $6::NUMERIC, $7::NUMERIC, $8, $9,
		         $10, $11, $12,
		         $13, $14::NUMERIC, $15::NUMERIC, $16)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status,
		     total_raised = EXCLUDED.total_raised,
		     withdrawn = EXCLUDED.withdrawn`,
		snap.ID, snap.Operator,
		snap.Config.PricePerToken.String(), snap.Config.HardCap.String(), snap.Config.SoftCap.String(),
		snap.Config.MinContribution.String(), snap.Config.MaxContribution.String(),
		snap.Config.StartTime, snap.Config.EndTime,
		snap.Config.TGEPercent,
		int64(snap.Config.CliffDuration/time.Second), int64(snap.Config.VestingDuration/time.Second),
		snap.Status, snap.TotalRaised.String(), snap.Withdrawn.String(), snap.CreatedAt,
	)
	return err
}

const poolColumns = `id, operator,
	price_per_token::TEXT, hard_cap::TEXT, soft_cap::TEXT,
	min_contribution::TEXT, max_contribution::TEXT,
	start_time, end_time, tge_percent, cliff_seconds, vesting_seconds,
	status, total_raised::TEXT, withdrawn::TEXT, created_at`

func scanPool(row interface{ Scan(...interface{}) error }) (*model.PoolSnapshot, error) {
	var snap model.PoolSnapshot
	var price, hardCap, softCap, minC, maxC, totalRaised, withdrawn string
	var cliffSec, vestingSec int64

	err := row.Scan(&snap.ID, &snap.Operator,
		&price, &hardCap, &softCap,
		&minC, &maxC,
		&snap.Config.StartTime, &snap.Config.EndTime,
		&snap.Config.TGEPercent, &cliffSec, &vestingSec,
		&snap.Status, &totalRaised, &withdrawn, &snap.CreatedAt)
	if err != nil {
		return nil, err
	}

	snap.Config.PricePerToken, _ = decimal.NewFromString(price)
	snap.Config.HardCap, _ = decimal.NewFromString(hardCap)
	snap.Config.SoftCap, _ = decimal.NewFromString(softCap)
	snap.Config.MinContribution, _ = decimal.NewFromString(minC)
	snap.Config.MaxContribution, _ = decimal.NewFromString(maxC)
	snap.Config.CliffDuration = time.Duration(cliffSec) * time.Second
	snap.Config.VestingDuration = time.Duration(vestingSec) * time.Second
	snap.TotalRaised, _ = decimal.NewFromString(totalRaised)
	snap.Withdrawn, _ = decimal.NewFromString(withdrawn)

	return &snap, nil
}

func (s *PostgresStore) GetPool(ctx context.Context, id string) (*model.PoolSnapshot, error) {
	snap, err := scanPool(s.pool.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", id, err)
	}
	return snap, nil
}

func (s *PostgresStore) ListPools(ctx context.Context) ([]model.PoolSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+poolColumns+` FROM pools ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pools []model.PoolSnapshot
	for rows.Next() {
		snap, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, *snap)
	}
	return pools, rows.Err()
}

func (s *PostgresStore) InsertContribution(ctx context.Context, e *model.ContributionEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contribution_entries (id, pool_id, participant, amount, allocation, timestamp)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6)`,
		e.ID, e.PoolID, e.Participant,
		e.Amount.String(), e.Allocation.String(),
		e.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListContributionsByPool(ctx context.Context, poolID string) ([]model.ContributionEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, participant, amount::TEXT, allocation::TEXT, timestamp
		 FROM contribution_entries WHERE pool_id = $1 ORDER BY timestamp`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContributionEntries(rows)
}

func (s *PostgresStore) ListContributionsByParticipant(ctx context.Context, participant string) ([]model.ContributionEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, participant, amount::TEXT, allocation::TEXT, timestamp
		 FROM contribution_entries WHERE participant = $1 ORDER BY timestamp`, participant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanContributionEntries(rows)
}

func (s *PostgresStore) SaveVestingEntry(ctx context.Context, e *model.VestingEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO vesting_entries (pool_id, participant, total_allocation, tge_timestamp, released)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5::NUMERIC)
		 ON CONFLICT (pool_id, participant) DO UPDATE
		 SET released = EXCLUDED.released`,
		e.PoolID, e.Participant,
		e.TotalAllocation.String(), e.TGETimestamp, e.Released.String(),
	)
	return err
}

func (s *PostgresStore) ListVestingEntries(ctx context.Context, poolID string) ([]model.VestingEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pool_id, participant, total_allocation::TEXT, tge_timestamp, released::TEXT
		 FROM vesting_entries WHERE pool_id = $1 ORDER BY participant`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.VestingEntry
	for rows.Next() {
		var e model.VestingEntry
		var totalS, releasedS string

		if err := rows.Scan(&e.PoolID, &e.Participant, &totalS, &e.TGETimestamp, &releasedS); err != nil {
			return nil, err
		}
		e.TotalAllocation, _ = decimal.NewFromString(totalS)
		e.Released, _ = decimal.NewFromString(releasedS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) InsertPayout(ctx context.Context, e *model.PayoutEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payout_entries (id, pool_id, participant, kind, amount, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6)`,
		e.ID, e.PoolID, e.Participant, e.Kind,
		e.Amount.String(), e.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListPayoutsByPool(ctx context.Context, poolID string) ([]model.PayoutEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, pool_id, participant, kind, amount::TEXT, timestamp
		 FROM payout_entries WHERE pool_id = $1 ORDER BY timestamp`, poolID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.PayoutEntry
	for rows.Next() {
		var e model.PayoutEntry
		var amountS string

		if err := rows.Scan(&e.ID, &e.PoolID, &e.Participant, &e.Kind, &amountS, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amountS)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanContributionEntries reads pgx rows into ContributionEntry slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanContributionEntries(rows pgxRows) ([]model.ContributionEntry, error) {
	var entries []model.ContributionEntry
	for rows.Next() {
		var e model.ContributionEntry
		var amountS, allocS string

		if err := rows.Scan(&e.ID, &e.PoolID, &e.Participant, &amountS, &allocS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Amount, _ = decimal.NewFromString(amountS)
		e.Allocation, _ = decimal.NewFromString(allocS)

		entries = append(entries, e)
	}
	return entries, nil
}
