// Package sqlite provides SQLite-backed implementations of the
// engine's persistence interfaces, for single-host deployments that
// want counters to survive restarts without running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

// Store is a SQLite-backed QuotaStore, ProgressStore, and SpendStore.
type Store struct {
	db *sql.DB
}

var (
	_ textclass.QuotaStore    = (*Store)(nil)
	_ textclass.ProgressStore = (*Store)(nil)
	_ textclass.SpendStore    = (*Store)(nil)
)

const schema = `
CREATE TABLE IF NOT EXISTS model_quotas (
	model TEXT PRIMARY KEY,
	day TEXT NOT NULL,
	requests INTEGER NOT NULL DEFAULT 0,
	tokens INTEGER NOT NULL DEFAULT 0,
	in_flight INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS progress (
	caller_id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL DEFAULT '',
	total_rows INTEGER NOT NULL DEFAULT 0,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	phase TEXT NOT NULL DEFAULT 'processing',
	active INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS spend (
	caller_id TEXT PRIMARY KEY,
	day TEXT NOT NULL,
	total REAL NOT NULL DEFAULT 0
);
`

// New opens (or creates) the database at dbPath and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("textclass/sqlite: open db: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("textclass/sqlite: migrate db: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Usage returns today's counters for a model. A stored record whose day
// is stale reads as zeroed counters (the reset is written by AddUsage).
func (s *Store) Usage(ctx context.Context, model string) (textclass.ModelQuota, error) {
	q := textclass.ModelQuota{Model: model, Day: textclass.Today()}

	var day string
	err := s.db.QueryRowContext(ctx,
		`SELECT day, requests, tokens, in_flight FROM model_quotas WHERE model = ?`,
		model,
	).Scan(&day, &q.Requests, &q.Tokens, &q.InFlight)

	if err == sql.ErrNoRows {
		return q, nil
	}
	if err != nil {
		return textclass.ModelQuota{}, fmt.Errorf("textclass/sqlite: usage: %w", err)
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_quotas (model, day, requests, tokens) VALUES (?, ?, ?, ?)
		 ON CONFLICT(model) DO UPDATE SET
			requests = CASE WHEN model_quotas.day = excluded.day THEN model_quotas.requests + excluded.requests ELSE excluded.requests END,
			tokens   = CASE WHEN model_quotas.day = excluded.day THEN model_quotas.tokens + excluded.tokens ELSE excluded.tokens END,
			day      = excluded.day`,
		model, textclass.Today(), requests, tokens,
	)
	if err != nil {
		return fmt.Errorf("textclass/sqlite: add usage: %w", err)
	}
	return nil
}

// IncInFlight increments the model's in-flight batch count.
func (s *Store) IncInFlight(ctx context.Context, model string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_quotas (model, day, in_flight) VALUES (?, ?, 1)
		 ON CONFLICT(model) DO UPDATE SET in_flight = model_quotas.in_flight + 1`,
		model, textclass.Today(),
	)
	if err != nil {
		return fmt.Errorf("textclass/sqlite: inc in-flight: %w", err)
	}
	return nil
}

// DecInFlight decrements the model's in-flight batch count, never
// below zero.
func (s *Store) DecInFlight(ctx context.Context, model string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE model_quotas SET in_flight = MAX(in_flight - 1, 0) WHERE model = ?`,
		model,
	)
	if err != nil {
		return fmt.Errorf("textclass/sqlite: dec in-flight: %w", err)
	}
	return nil
}

// ResetInFlight zeroes the in-flight counter for every model.
func (s *Store) ResetInFlight(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE model_quotas SET in_flight = 0 WHERE in_flight <> 0`)
	if err != nil {
		return fmt.Errorf("textclass/sqlite: reset in-flight: %w", err)
	}
	return nil
}

// Init creates or resets the caller's progress record.
func (s *Store) Init(ctx context.Context, callerID, batchID string, totalRows int, phase textclass.Phase) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (caller_id, batch_id, total_rows, processed_rows, phase, active, updated_at)
		 VALUES (?, ?, ?, 0, ?, 1, ?)
		 ON CONFLICT(caller_id) DO UPDATE SET
			batch_id = excluded.batch_id,
			total_rows = excluded.total_rows,
			processed_rows = 0,
			phase = excluded.phase,
			active = 1,
			updated_at = excluded.updated_at`,
		callerID, batchID, totalRows, string(phase), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("textclass/sqlite: init progress: %w", err)
	}
	return nil
}

// Advance sets the absolute processed count and refreshes the timestamp.
func (s *Store) Advance(ctx context.Context, callerID string, processed, total int, phase textclass.Phase) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (caller_id, total_rows, processed_rows, phase, active, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT(caller_id) DO UPDATE SET
			total_rows = excluded.total_rows,
			processed_rows = excluded.processed_rows,
			phase = excluded.phase,
			active = 1,
			updated_at = excluded.updated_at`,
		callerID, total, processed, string(phase), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("textclass/sqlite: advance progress: %w", err)
	}
	return nil
}

// Finalize marks the caller's record inactive. Idempotent.
func (s *Store) Finalize(ctx context.Context, callerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE progress SET active = 0, updated_at = ? WHERE caller_id = ?`,
		time.Now().UTC(), callerID,
	)
	if err != nil {
		return fmt.Errorf("textclass/sqlite: finalize progress: %w", err)
	}
	return nil
}

// Get returns the caller's record, or a zero record when absent.
func (s *Store) Get(ctx context.Context, callerID string) (textclass.ProgressRecord, error) {
	rec := textclass.ProgressRecord{CallerID: callerID, Phase: textclass.PhaseProcessing}

	var phase string
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT batch_id, total_rows, processed_rows, phase, active, updated_at FROM progress WHERE caller_id = ?`,
		callerID,
	).Scan(&rec.BatchID, &rec.TotalRows, &rec.ProcessedRows, &phase, &active, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return rec, nil
	}
	if err != nil {
		return textclass.ProgressRecord{}, fmt.Errorf("textclass/sqlite: get progress: %w", err)
	}

	rec.Phase = textclass.Phase(phase)
	rec.Active = active != 0
	return rec, nil
}

// RecordSpend adds to the caller's daily total, resetting to amount on
// a stale day, and returns the post-update total.
func (s *Store) RecordSpend(ctx context.Context, callerID string, amount float64) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO spend (caller_id, day, total) VALUES (?, ?, ?)
		 ON CONFLICT(caller_id) DO UPDATE SET
			total = CASE WHEN spend.day = excluded.day THEN spend.total + excluded.total ELSE excluded.total END,
			day = excluded.day
		 RETURNING total`,
		callerID, textclass.Today(), amount,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("textclass/sqlite: record spend: %w", err)
	}
	return total, nil
}

// DailySpend returns the caller's total for today.
func (s *Store) DailySpend(ctx context.Context, callerID string) (float64, error) {
	var day string
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT day, total FROM spend WHERE caller_id = ?`,
		callerID,
	).Scan(&day, &total)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("textclass/sqlite: daily spend: %w", err)
	}

	if day != textclass.Today() {
		return 0, nil
	}
	return total, nil
}
