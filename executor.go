package textclass

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// flushInterval returns how many completed rows pass between persisted
// progress updates. Larger batches flush less often, bounding write
// amplification on the progress store while keeping a small staleness
// window for pollers.
func flushInterval(totalRows int) int {
	switch {
	case totalRows <= 100:
		return 5
	case totalRows <= 500:
		return 25
	default:
		return 50
	}
}

// batchExecutor runs one batch of rows through the rate limiter and the
// labeling service with a fixed-size worker pool. Results land at their
// row's original index, so the output order is the input order
// regardless of completion order.
type batchExecutor struct {
	callerID  string
	batchID   string
	model     string
	rows      []string
	labels    []LabelDef
	limiter   *RateLimiter
	labeler   Labeler
	tokenizer Tokenizer
	progress  ProgressStore
	meter     Meter
	workers   int
}

func (e *batchExecutor) run(ctx context.Context) ([]LabeledRow, error) {
	total := len(e.rows)
	results := make([]string, total)
	interval := flushInterval(total)

	var (
		wg        sync.WaitGroup
		processed atomic.Int64
		failed    atomic.Bool
		errOnce   sync.Once
		firstErr  error
	)

	fail := func(err error) {
		errOnce.Do(func() { firstErr = err })
		failed.Store(true)
	}

	// Workers flush an absolute count, so a slow worker must not clobber
	// a later flush with a smaller one.
	var flushMu sync.Mutex
	lastFlushed := 0
	flush := func(n int) {
		flushMu.Lock()
		defer flushMu.Unlock()
		if n <= lastFlushed {
			return
		}
		lastFlushed = n
		_ = e.progress.Advance(ctx, e.callerID, n, total, PhaseProcessing)
	}

	jobs := make(chan int)
	for w := 0; w < e.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if failed.Load() {
					// A sibling already failed; skip rows not yet started.
					continue
				}
				if err := e.processRow(ctx, i, results); err != nil {
					fail(err)
					continue
				}
				n := int(processed.Add(1))
				if n%interval == 0 || n == total {
					flush(n)
				}
			}
		}()
	}

	for i := range e.rows {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	// Assemble the output in input order, reporting the writing phase at
	// the same cadence.
	out := make([]LabeledRow, total)
	for i, text := range e.rows {
		out[i] = LabeledRow{Input: text, Label: results[i]}
		n := i + 1
		if n%interval == 0 || n == total {
			_ = e.progress.Advance(ctx, e.callerID, n, total, PhaseWriting)
		}
	}
	return out, nil
}

// processRow tokenizes, admits, and labels one row, storing the result
// at the row's index. Tokenizer failures are recovered locally: the row
// proceeds with zero tokens.
func (e *batchExecutor) processRow(ctx context.Context, i int, results []string) error {
	start := time.Now()

	tokens, tokErr := e.tokenizer.Count(e.rows[i], e.model)
	if tokErr != nil {
		tokens = 0
	}

	if err := e.limiter.Admit(ctx, tokens); err != nil {
		e.meter.OnRow(RowEvent{
			BatchID: e.batchID, Model: e.model, Row: i, Tokens: tokens,
			Duration: time.Since(start), Err: err, TokenizeErr: tokErr,
		})
		return &BatchError{Err: err, CallerID: e.callerID, BatchID: e.batchID, Model: e.model, Row: i}
	}

	label, err := e.labeler.Label(ctx, e.rows[i], e.labels, e.model)
	e.meter.OnRow(RowEvent{
		BatchID: e.batchID, Model: e.model, Row: i, Tokens: tokens,
		Duration: time.Since(start), Err: err, TokenizeErr: tokErr,
	})
	if err != nil {
		return &BatchError{Err: err, CallerID: e.callerID, BatchID: e.batchID, Model: e.model, Row: i}
	}

	results[i] = label
	return nil
}
