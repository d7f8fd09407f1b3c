package textclass

import (
	"context"
	"time"
)

// DayFormat is the UTC calendar-day key used by the persisted stores.
const DayFormat = "2006-01-02"

// Today returns the current UTC day key.
func Today() string {
	return time.Now().UTC().Format(DayFormat)
}

// ModelQuota is the persisted daily usage record for one model, shared
// by every concurrent batch and process using that model.
type ModelQuota struct {
	Model    string
	Day      string
	Requests int64
	Tokens   int64
	InFlight int64
}

// ProgressRecord is the persisted progress state for one caller.
type ProgressRecord struct {
	CallerID      string
	BatchID       string
	TotalRows     int
	ProcessedRows int
	Phase         Phase
	Active        bool
	UpdatedAt     time.Time
}

// SpendRecord is the persisted daily spending total for one caller.
type SpendRecord struct {
	CallerID string
	Day      string
	Total    float64
}

// QuotaStore persists per-model daily usage counters and the in-flight
// batch count. Counters roll over lazily: the first operation that
// observes a new UTC day resets them before applying itself.
type QuotaStore interface {
	// Usage returns today's counters for a model. A stored record whose
	// day is stale reads as zeroed counters; an absent record reads as a
	// zero record.
	Usage(ctx context.Context, model string) (ModelQuota, error)

	// AddUsage adds to today's counters, resetting them first when the
	// stored day is stale. Duplicate-create races on first use resolve
	// first-writer-wins, with losers converging on the winning record.
	AddUsage(ctx context.Context, model string, requests, tokens int64) error

	// IncInFlight and DecInFlight adjust the count of currently admitted
	// batches for a model. DecInFlight never takes the counter below zero.
	IncInFlight(ctx context.Context, model string) error
	DecInFlight(ctx context.Context, model string) error

	// ResetInFlight zeroes the in-flight counter for every model. Called
	// on process startup and shutdown.
	ResetInFlight(ctx context.Context) error
}

// ProgressStore persists per-caller batch progress. Written by the
// executing batch, read by any number of concurrent pollers.
type ProgressStore interface {
	// Init creates or resets the caller's record: zero processed rows,
	// active, the given phase. Upsert semantics.
	Init(ctx context.Context, callerID, batchID string, totalRows int, phase Phase) error

	// Advance sets the absolute processed count and refreshes the
	// last-update timestamp.
	Advance(ctx context.Context, callerID string, processed, total int, phase Phase) error

	// Finalize marks the caller's record inactive. Idempotent.
	Finalize(ctx context.Context, callerID string) error

	// Get returns the caller's record, or a zero record when absent.
	Get(ctx context.Context, callerID string) (ProgressRecord, error)
}

// SpendStore is the per-caller daily spending ledger. It only records;
// enforcing the daily cap belongs to the caller.
type SpendStore interface {
	// RecordSpend adds to the caller's daily total, resetting to amount
	// when the stored day is stale, and returns the post-update total.
	RecordSpend(ctx context.Context, callerID string, amount float64) (float64, error)

	// DailySpend returns the caller's total for today, zero when absent
	// or stale.
	DailySpend(ctx context.Context, callerID string) (float64, error)
}
