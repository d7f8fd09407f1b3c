// Package postgres provides PostgreSQL-backed implementations of the
// engine's persistence interfaces.
//
// All read-modify-write paths are single upsert statements (INSERT ...
// ON CONFLICT DO UPDATE), so concurrent batches and processes converge
// on one record per key without a distributed lock: creation races
// resolve first-writer-wins and increments stay additive.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

// Store is a PostgreSQL-backed QuotaStore, ProgressStore, and SpendStore.
type Store struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var (
	_ textclass.QuotaStore    = (*Store)(nil)
	_ textclass.ProgressStore = (*Store)(nil)
	_ textclass.SpendStore    = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithTablePrefix sets the table name prefix (default "textclass_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) { s.tablePrefix = prefix }
}

// New creates a new PostgreSQL-backed store.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:        pool,
		tablePrefix: "textclass_",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) quotasTable() string   { return s.tablePrefix + "model_quotas" }
func (s *Store) progressTable() string { return s.tablePrefix + "progress" }
func (s *Store) spendTable() string    { return s.tablePrefix + "spend" }

// EnsureSchema creates the required tables if they don't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			model TEXT PRIMARY KEY,
			day TEXT NOT NULL,
			requests BIGINT NOT NULL DEFAULT 0,
			tokens BIGINT NOT NULL DEFAULT 0,
			in_flight BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS %s (
			caller_id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL DEFAULT '',
			total_rows INT NOT NULL DEFAULT 0,
			processed_rows INT NOT NULL DEFAULT 0,
			phase TEXT NOT NULL DEFAULT 'processing',
			active BOOLEAN NOT NULL DEFAULT false,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS %s (
			caller_id TEXT PRIMARY KEY,
			day TEXT NOT NULL,
			total DOUBLE PRECISION NOT NULL DEFAULT 0
		);
	`, s.quotasTable(), s.progressTable(), s.spendTable())

	if _, err := s.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("textclass/postgres: ensure schema: %w", err)
	}
	return nil
}

// Usage returns today's counters for a model. A stored record whose day
// is stale reads as zeroed counters (the reset is written by AddUsage).
func (s *Store) Usage(ctx context.Context, model string) (textclass.ModelQuota, error) {
	q := textclass.ModelQuota{Model: model, Day: textclass.Today()}

	var day string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT day, requests, tokens, in_flight FROM %s WHERE model = $1`, s.quotasTable()),
		model,
	).Scan(&day, &q.Requests, &q.Tokens, &q.InFlight)

	if err == pgx.ErrNoRows {
		return q, nil
	}
	if err != nil {
		return textclass.ModelQuota{}, fmt.Errorf("textclass/postgres: usage: %w", err)
	}

	if day != q.Day {
		q.Requests = 0
		q.Tokens = 0
	}
	return q, nil
}

// AddUsage adds to today's counters, resetting them first when the
// stored day is stale.
func (s *Store) AddUsage(ctx context.Context, model string, requests, tokens int64) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s AS q (model, day, requests, tokens) VALUES ($1, $2, $3, $4)
			ON CONFLICT (model) DO UPDATE SET
				requests = CASE WHEN q.day = EXCLUDED.day THEN q.requests + EXCLUDED.requests ELSE EXCLUDED.requests END,
				tokens   = CASE WHEN q.day = EXCLUDED.day THEN q.tokens + EXCLUDED.tokens ELSE EXCLUDED.tokens END,
				day      = EXCLUDED.day`,
			s.quotasTable()),
		model, textclass.Today(), requests, tokens,
	)
	if err != nil {
		return fmt.Errorf("textclass/postgres: add usage: %w", err)
	}
	return nil
}

// IncInFlight increments the model's in-flight batch count.
func (s *Store) IncInFlight(ctx context.Context, model string) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s AS q (model, day, in_flight) VALUES ($1, $2, 1)
			ON CONFLICT (model) DO UPDATE SET in_flight = q.in_flight + 1`,
			s.quotasTable()),
		model, textclass.Today(),
	)
	if err != nil {
		return fmt.Errorf("textclass/postgres: inc in-flight: %w", err)
	}
	return nil
}

// DecInFlight decrements the model's in-flight batch count, never
// below zero.
func (s *Store) DecInFlight(ctx context.Context, model string) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET in_flight = GREATEST(in_flight - 1, 0) WHERE model = $1`,
			s.quotasTable()),
		model,
	)
	if err != nil {
		return fmt.Errorf("textclass/postgres: dec in-flight: %w", err)
	}
	return nil
}

// ResetInFlight zeroes the in-flight counter for every model.
func (s *Store) ResetInFlight(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET in_flight = 0 WHERE in_flight <> 0`, s.quotasTable()),
	)
	if err != nil {
		return fmt.Errorf("textclass/postgres: reset in-flight: %w", err)
	}
	return nil
}

// Init creates or resets the caller's progress record.
func (s *Store) Init(ctx context.Context, callerID, batchID string, totalRows int, phase textclass.Phase) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (caller_id, batch_id, total_rows, processed_rows, phase, active, updated_at)
			VALUES ($1, $2, $3, 0, $4, true, $5)
			ON CONFLICT (caller_id) DO UPDATE SET
				batch_id = EXCLUDED.batch_id,
				total_rows = EXCLUDED.total_rows,
				processed_rows = 0,
				phase = EXCLUDED.phase,
				active = true,
				updated_at = EXCLUDED.updated_at`,
			s.progressTable()),
		callerID, batchID, totalRows, string(phase), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("textclass/postgres: init progress: %w", err)
	}
	return nil
}

// Advance sets the absolute processed count and refreshes the timestamp.
func (s *Store) Advance(ctx context.Context, callerID string, processed, total int, phase textclass.Phase) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (caller_id, total_rows, processed_rows, phase, active, updated_at)
			VALUES ($1, $2, $3, $4, true, $5)
			ON CONFLICT (caller_id) DO UPDATE SET
				total_rows = EXCLUDED.total_rows,
				processed_rows = EXCLUDED.processed_rows,
				phase = EXCLUDED.phase,
				active = true,
				updated_at = EXCLUDED.updated_at`,
			s.progressTable()),
		callerID, total, processed, string(phase), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("textclass/postgres: advance progress: %w", err)
	}
	return nil
}

// Finalize marks the caller's record inactive. Idempotent.
func (s *Store) Finalize(ctx context.Context, callerID string) error {
	_, err := s.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET active = false, updated_at = $2 WHERE caller_id = $1`,
			s.progressTable()),
		callerID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("textclass/postgres: finalize progress: %w", err)
	}
	return nil
}

// Get returns the caller's record, or a zero record when absent.
func (s *Store) Get(ctx context.Context, callerID string) (textclass.ProgressRecord, error) {
	rec := textclass.ProgressRecord{CallerID: callerID, Phase: textclass.PhaseProcessing}

	var phase string
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT batch_id, total_rows, processed_rows, phase, active, updated_at FROM %s WHERE caller_id = $1`,
			s.progressTable()),
		callerID,
	).Scan(&rec.BatchID, &rec.TotalRows, &rec.ProcessedRows, &phase, &rec.Active, &rec.UpdatedAt)

	if err == pgx.ErrNoRows {
		return rec, nil
	}
	if err != nil {
		return textclass.ProgressRecord{}, fmt.Errorf("textclass/postgres: get progress: %w", err)
	}

	rec.Phase = textclass.Phase(phase)
	return rec, nil
}

// RecordSpend adds to the caller's daily total, resetting to amount on
// a stale day, and returns the post-update total.
func (s *Store) RecordSpend(ctx context.Context, callerID string, amount float64) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO %s AS sp (caller_id, day, total) VALUES ($1, $2, $3)
			ON CONFLICT (caller_id) DO UPDATE SET
				total = CASE WHEN sp.day = EXCLUDED.day THEN sp.total + EXCLUDED.total ELSE EXCLUDED.total END,
				day = EXCLUDED.day
			RETURNING total`,
			s.spendTable()),
		callerID, textclass.Today(), amount,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("textclass/postgres: record spend: %w", err)
	}
	return total, nil
}

// DailySpend returns the caller's total for today.
func (s *Store) DailySpend(ctx context.Context, callerID string) (float64, error) {
	var day string
	var total float64
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT day, total FROM %s WHERE caller_id = $1`, s.spendTable()),
		callerID,
	).Scan(&day, &total)

	if err == pgx.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("textclass/postgres: daily spend: %w", err)
	}

	if day != textclass.Today() {
		return 0, nil
	}
	return total, nil
}
