package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "textclass.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestQuotaUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	q, err := s.Usage(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Zero(t, q.Requests, "absent models read as zero")
	assert.Equal(t, textclass.Today(), q.Day)

	require.NoError(t, s.AddUsage(ctx, "gpt-4o-mini", 1, 120))
	require.NoError(t, s.AddUsage(ctx, "gpt-4o-mini", 2, 80))

	q, err = s.Usage(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.Requests)
	assert.Equal(t, int64(200), q.Tokens)
}

func TestInFlight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IncInFlight(ctx, "m1"))
	require.NoError(t, s.IncInFlight(ctx, "m1"))
	require.NoError(t, s.IncInFlight(ctx, "m2"))

	q, err := s.Usage(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), q.InFlight)

	require.NoError(t, s.DecInFlight(ctx, "m1"))
	require.NoError(t, s.DecInFlight(ctx, "m1"))
	require.NoError(t, s.DecInFlight(ctx, "m1"))
	q, err = s.Usage(ctx, "m1")
	require.NoError(t, err)
	assert.Zero(t, q.InFlight, "never decrements below zero")

	// Decrementing an unknown model is a no-op, not an error.
	require.NoError(t, s.DecInFlight(ctx, "nope"))

	require.NoError(t, s.ResetInFlight(ctx))
	q, err = s.Usage(ctx, "m2")
	require.NoError(t, err)
	assert.Zero(t, q.InFlight)
}

func TestProgressLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.Equal(t, textclass.PhaseProcessing, rec.Phase)

	require.NoError(t, s.Init(ctx, "user-1", "batch-1", 100, textclass.PhaseProcessing))
	require.NoError(t, s.Advance(ctx, "user-1", 40, 100, textclass.PhaseProcessing))
	require.NoError(t, s.Advance(ctx, "user-1", 100, 100, textclass.PhaseWriting))

	rec, err = s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, rec.Active)
	assert.Equal(t, "batch-1", rec.BatchID)
	assert.Equal(t, 100, rec.ProcessedRows)
	assert.Equal(t, textclass.PhaseWriting, rec.Phase)
	assert.False(t, rec.UpdatedAt.IsZero())

	require.NoError(t, s.Finalize(ctx, "user-1"))
	rec, err = s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, rec.Active)

	require.NoError(t, s.Finalize(ctx, "user-1"))
	require.NoError(t, s.Finalize(ctx, "nobody"))
}

func TestInitResetsRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Init(ctx, "user-1", "batch-1", 100, textclass.PhaseProcessing))
	require.NoError(t, s.Advance(ctx, "user-1", 60, 100, textclass.PhaseWriting))

	require.NoError(t, s.Init(ctx, "user-1", "batch-2", 30, textclass.PhaseProcessing))
	rec, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "batch-2", rec.BatchID)
	assert.Equal(t, 30, rec.TotalRows)
	assert.Zero(t, rec.ProcessedRows)
	assert.Equal(t, textclass.PhaseProcessing, rec.Phase)
	assert.True(t, rec.Active)
}

func TestSpend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	total, err := s.DailySpend(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, total)

	total, err = s.RecordSpend(ctx, "user-1", 0.08)
	require.NoError(t, err)
	assert.InDelta(t, 0.08, total, 1e-9)

	total, err = s.RecordSpend(ctx, "user-1", 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, total, 1e-9)

	total, err = s.DailySpend(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, total, 1e-9)

	total, err = s.DailySpend(ctx, "user-2")
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestStaleDayResets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Plant yesterday's rows directly.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_quotas (model, day, requests, tokens, in_flight) VALUES (?, ?, ?, ?, ?)`,
		"gpt-4o-mini", "2020-01-01", 500, 90000, 2)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO spend (caller_id, day, total) VALUES (?, ?, ?)`,
		"user-1", "2020-01-01", 0.49)
	require.NoError(t, err)

	// Reads treat the stale day as zero without writing.
	q, err := s.Usage(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Zero(t, q.Requests)
	assert.Zero(t, q.Tokens)
	assert.Equal(t, int64(2), q.InFlight)

	total, err := s.DailySpend(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, total)

	// Writes reset before applying.
	require.NoError(t, s.AddUsage(ctx, "gpt-4o-mini", 1, 10))
	q, err = s.Usage(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, int64(1), q.Requests)
	assert.Equal(t, int64(10), q.Tokens)

	total, err = s.RecordSpend(ctx, "user-1", 0.05)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, total, 1e-9)
}

func TestSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "textclass.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.AddUsage(ctx, "gpt-4o-mini", 3, 300))
	_, err = s.RecordSpend(ctx, "user-1", 0.07)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	defer s.Close()

	q, err := s.Usage(ctx, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Equal(t, int64(3), q.Requests)

	total, err := s.DailySpend(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.07, total, 1e-9)
}
