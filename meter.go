package textclass

import "time"

// Meter observes engine events for monitoring/logging.
type Meter interface {
	// OnWait is called each time the rate limiter delays an admission.
	OnWait(event WaitEvent)

	// OnRow is called when a row's labeling attempt finishes.
	OnRow(event RowEvent)

	// OnBatch is called when a batch starts and when it ends.
	OnBatch(event BatchEvent)
}

// WaitEvent describes one rate-limit delay.
type WaitEvent struct {
	Model  string
	Tokens int64
	Wait   time.Duration
}

// RowEvent describes the outcome of a single row.
type RowEvent struct {
	BatchID  string
	Model    string
	Row      int
	Tokens   int64
	Duration time.Duration
	Err      error

	// TokenizeErr is non-fatal: the row proceeded with zero tokens.
	TokenizeErr error
}

// BatchEvent describes the start or end of a batch.
type BatchEvent struct {
	BatchID  string
	CallerID string
	Model    string
	Rows     int
	Done     bool
	Duration time.Duration
	Err      error
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnWait(WaitEvent)   {}
func (noopMeter) OnRow(RowEvent)     {}
func (noopMeter) OnBatch(BatchEvent) {}
