package textclass

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Classifier is the batch labeling engine. It estimates costs, admits
// batches against the caller's daily spending cap, and runs them under
// per-model rate limits while reporting progress.
type Classifier struct {
	cfg       Config
	labeler   Labeler
	quotas    QuotaStore
	progress  ProgressStore
	spend     SpendStore
	tokenizer Tokenizer
	meter     Meter
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithQuotaStore sets the persisted per-model quota store.
func WithQuotaStore(qs QuotaStore) Option {
	return func(c *Classifier) { c.quotas = qs }
}

// WithProgressStore sets the persisted progress store.
func WithProgressStore(ps ProgressStore) Option {
	return func(c *Classifier) { c.progress = ps }
}

// WithSpendStore sets the persisted spending ledger.
func WithSpendStore(ss SpendStore) Option {
	return func(c *Classifier) { c.spend = ss }
}

// WithTokenizer sets the tokenizer.
func WithTokenizer(t Tokenizer) Option {
	return func(c *Classifier) { c.tokenizer = t }
}

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(c *Classifier) { c.meter = m }
}

// New creates a Classifier with the given config and labeling adapter.
// Default components (no-op stores, HeuristicTokenizer, no-op meter)
// are used unless overridden via options; production wiring passes
// persisted stores so quotas, progress, and spend survive the process.
func New(cfg Config, labeler Labeler, opts ...Option) (*Classifier, error) {
	if labeler == nil {
		return nil, fmt.Errorf("textclass: a labeler is required")
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{
		cfg:     cfg,
		labeler: labeler,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Apply defaults after options.
	if c.quotas == nil {
		c.quotas = noopQuotaStore{}
	}
	if c.progress == nil {
		c.progress = noopProgressStore{}
	}
	if c.spend == nil {
		c.spend = noopSpendStore{}
	}
	if c.tokenizer == nil {
		c.tokenizer = HeuristicTokenizer{}
	}
	if c.meter == nil {
		c.meter = noopMeter{}
	}

	return c, nil
}

// modelConfig resolves a model name, falling back to the default model
// when empty.
func (c *Classifier) modelConfig(model string) (string, ModelConfig, error) {
	if model == "" {
		model = c.cfg.DefaultModel
	}
	mc, ok := c.cfg.Models[model]
	if !ok {
		return "", ModelConfig{}, fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	return model, mc, nil
}

// EstimateCost tokenizes every row and projects the dollar cost of
// labeling the batch under the model's pricing. Tokenizer failures
// count as zero tokens for the affected row.
func (c *Classifier) EstimateCost(ctx context.Context, rows []string, model string) (CostEstimate, error) {
	model, mc, err := c.modelConfig(model)
	if err != nil {
		return CostEstimate{}, err
	}

	var total int64
	for _, text := range rows {
		n, err := c.tokenizer.Count(text, model)
		if err != nil {
			continue
		}
		total += n
	}

	return CostEstimate{
		Model:       model,
		Rows:        len(rows),
		TotalTokens: total,
		Cost:        EstimateCost(mc.Pricing, total, len(rows)),
	}, nil
}

// Authorize checks an estimated cost against the caller's daily
// spending cap and, when it fits, records it in the ledger. A rejected
// estimate leaves the ledger untouched. A zero cap disables the check.
func (c *Classifier) Authorize(ctx context.Context, callerID string, cost float64) error {
	limit := *c.cfg.DailySpendCap
	if limit <= 0 {
		_, err := c.spend.RecordSpend(ctx, callerID, cost)
		return err
	}

	current, err := c.spend.DailySpend(ctx, callerID)
	if err != nil {
		return fmt.Errorf("textclass: read daily spend: %w", err)
	}
	if current+cost > limit {
		return fmt.Errorf("%w: caller %s", ErrSpendLimitExceeded, callerID)
	}

	total, err := c.spend.RecordSpend(ctx, callerID, cost)
	if err != nil {
		return fmt.Errorf("textclass: record spend: %w", err)
	}
	// A concurrent admission can race past the read above; the
	// post-update total is the authoritative check.
	if total > limit {
		return fmt.Errorf("%w: caller %s", ErrSpendLimitExceeded, callerID)
	}
	return nil
}

// Run labels a full batch of rows, returning the outputs in the exact
// order of the input rows. Progress for the caller is initialized,
// advanced as rows complete, and finalized on both success and failure;
// the model's in-flight counter is decremented exactly once when the
// batch ends.
func (c *Classifier) Run(ctx context.Context, callerID string, rows []string, labels []LabelDef, model string) ([]LabeledRow, error) {
	model, mc, err := c.modelConfig(model)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New().String()
	start := time.Now()

	c.meter.OnBatch(BatchEvent{
		BatchID: batchID, CallerID: callerID, Model: model, Rows: len(rows),
	})

	if err := c.progress.Init(ctx, callerID, batchID, len(rows), PhaseProcessing); err != nil {
		return nil, fmt.Errorf("textclass: initialize progress: %w", err)
	}

	if err := c.quotas.IncInFlight(ctx, model); err != nil {
		return nil, fmt.Errorf("textclass: increment in-flight: %w", err)
	}

	out, runErr := func() ([]LabeledRow, error) {
		defer func() {
			_ = c.quotas.DecInFlight(ctx, model)
		}()

		exec := &batchExecutor{
			callerID:  callerID,
			batchID:   batchID,
			model:     model,
			rows:      rows,
			labels:    labels,
			limiter:   NewRateLimiter(model, mc.Limits, c.quotas, WithLimiterMeter(c.meter)),
			labeler:   c.labeler,
			tokenizer: c.tokenizer,
			progress:  c.progress,
			meter:     c.meter,
			workers:   c.cfg.Concurrency,
		}
		return exec.run(ctx)
	}()

	_ = c.progress.Finalize(ctx, callerID)

	c.meter.OnBatch(BatchEvent{
		BatchID: batchID, CallerID: callerID, Model: model, Rows: len(rows),
		Done: true, Duration: time.Since(start), Err: runErr,
	})

	if runErr != nil {
		return nil, runErr
	}
	return out, nil
}

// Progress returns the polling snapshot for a caller.
func (c *Classifier) Progress(ctx context.Context, callerID string) (Snapshot, error) {
	rec, err := c.progress.Get(ctx, callerID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("textclass: read progress: %w", err)
	}
	return snapshotFrom(rec, time.Now().UTC()), nil
}

// InFlight returns the number of currently admitted batches for a
// model, for load reporting.
func (c *Classifier) InFlight(ctx context.Context, model string) (int64, error) {
	model, _, err := c.modelConfig(model)
	if err != nil {
		return 0, err
	}
	q, err := c.quotas.Usage(ctx, model)
	if err != nil {
		return 0, err
	}
	return q.InFlight, nil
}

// Shutdown resets every model's in-flight counter. Called on process
// startup and shutdown so crashed batches don't leak load.
func (c *Classifier) Shutdown(ctx context.Context) error {
	return c.quotas.ResetInFlight(ctx)
}

// noopQuotaStore allows everything and persists nothing.
type noopQuotaStore struct{}

func (noopQuotaStore) Usage(_ context.Context, model string) (ModelQuota, error) {
	return ModelQuota{Model: model, Day: Today()}, nil
}
func (noopQuotaStore) AddUsage(context.Context, string, int64, int64) error { return nil }
func (noopQuotaStore) IncInFlight(context.Context, string) error            { return nil }
func (noopQuotaStore) DecInFlight(context.Context, string) error            { return nil }
func (noopQuotaStore) ResetInFlight(context.Context) error                  { return nil }

// noopProgressStore drops all writes and reads as absent.
type noopProgressStore struct{}

func (noopProgressStore) Init(context.Context, string, string, int, Phase) error   { return nil }
func (noopProgressStore) Advance(context.Context, string, int, int, Phase) error   { return nil }
func (noopProgressStore) Finalize(context.Context, string) error                   { return nil }
func (noopProgressStore) Get(_ context.Context, callerID string) (ProgressRecord, error) {
	return ProgressRecord{CallerID: callerID}, nil
}

// noopSpendStore records nothing; every caller reads as zero spend.
type noopSpendStore struct{}

func (noopSpendStore) RecordSpend(_ context.Context, _ string, amount float64) (float64, error) {
	return amount, nil
}
func (noopSpendStore) DailySpend(context.Context, string) (float64, error) { return 0, nil }
