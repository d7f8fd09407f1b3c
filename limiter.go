package textclass

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateWindow is the trailing window the per-minute limits apply to.
const rateWindow = 60 * time.Second

// RateLimiter gatekeeps every outbound labeling call for one model: an
// in-memory trailing-60-second window enforces the per-minute limits,
// and the persisted daily counters in the QuotaStore enforce the
// per-day limits. One RateLimiter serves one batch invocation; the
// QuotaStore behind it is shared by every batch for the model.
type RateLimiter struct {
	model  string
	limits ModelLimits
	quotas QuotaStore
	meter  Meter

	now func() time.Time

	mu          sync.Mutex
	reqTimes    []time.Time
	tokenEvents []tokenEvent
}

type tokenEvent struct {
	at     time.Time
	tokens int64
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithLimiterMeter sets the meter that receives wait events.
func WithLimiterMeter(m Meter) LimiterOption {
	return func(l *RateLimiter) { l.meter = m }
}

// NewRateLimiter creates a RateLimiter for one model.
func NewRateLimiter(model string, limits ModelLimits, quotas QuotaStore, opts ...LimiterOption) *RateLimiter {
	l := &RateLimiter{
		model:  model,
		limits: limits,
		quotas: quotas,
		meter:  noopMeter{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit blocks until the trailing-minute window has room for one more
// request and tokens more tokens, then records the admission in the
// window and increments the persisted daily counters.
//
// When the day's caps leave no room it fails immediately with
// ErrDailyQuotaExceeded: daily rejections never block and never bump
// the counters. A limit value of zero is the unbounded sentinel and
// always passes.
func (l *RateLimiter) Admit(ctx context.Context, tokens int64) error {
	usage, err := l.quotas.Usage(ctx, l.model)
	if err != nil {
		return fmt.Errorf("textclass: read quota: %w", err)
	}
	if l.exceedsDaily(usage, tokens) {
		return fmt.Errorf("%w: model %s", ErrDailyQuotaExceeded, l.model)
	}

	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if l.windowHasRoom(tokens) {
			l.reqTimes = append(l.reqTimes, now)
			l.tokenEvents = append(l.tokenEvents, tokenEvent{at: now, tokens: tokens})
			l.mu.Unlock()
			break
		}
		wait := l.nextWake(now)
		l.mu.Unlock()

		l.meter.OnWait(WaitEvent{Model: l.model, Tokens: tokens, Wait: wait})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := l.quotas.AddUsage(ctx, l.model, 1, tokens); err != nil {
		return fmt.Errorf("textclass: record quota usage: %w", err)
	}
	return nil
}

func (l *RateLimiter) exceedsDaily(usage ModelQuota, tokens int64) bool {
	if l.limits.RequestsPerDay > 0 && usage.Requests+1 > l.limits.RequestsPerDay {
		return true
	}
	if l.limits.TokensPerDay > 0 && usage.Tokens+tokens > l.limits.TokensPerDay {
		return true
	}
	return false
}

// prune discards window entries older than 60 seconds. Entries are
// appended in time order, so dropping a prefix suffices. Callers hold mu.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-rateWindow)

	i := 0
	for i < len(l.reqTimes) && !l.reqTimes[i].After(cutoff) {
		i++
	}
	l.reqTimes = append(l.reqTimes[:0], l.reqTimes[i:]...)

	j := 0
	for j < len(l.tokenEvents) && !l.tokenEvents[j].at.After(cutoff) {
		j++
	}
	l.tokenEvents = append(l.tokenEvents[:0], l.tokenEvents[j:]...)
}

// windowHasRoom reports whether one more request with the given token
// count fits the per-minute limits. Callers hold mu.
func (l *RateLimiter) windowHasRoom(tokens int64) bool {
	// A request bigger than the whole per-minute token budget can never
	// fit a non-empty window; admit it alone instead of deadlocking.
	if len(l.reqTimes) == 0 && len(l.tokenEvents) == 0 {
		return true
	}
	if l.limits.RequestsPerMinute > 0 && int64(len(l.reqTimes)) >= l.limits.RequestsPerMinute {
		return false
	}
	if l.limits.TokensPerMinute > 0 && l.windowTokens()+tokens > l.limits.TokensPerMinute {
		return false
	}
	return true
}

func (l *RateLimiter) windowTokens() int64 {
	var sum int64
	for _, e := range l.tokenEvents {
		sum += e.tokens
	}
	return sum
}

// nextWake returns the time until the oldest in-window entry ages out.
// The wait is a lower bound, not a guarantee: concurrent admissions may
// change the window in the meantime, so state is re-checked on wake.
// Callers hold mu.
func (l *RateLimiter) nextWake(now time.Time) time.Duration {
	cutoff := now.Add(-rateWindow)

	var wait time.Duration
	if len(l.reqTimes) > 0 {
		if d := l.reqTimes[0].Sub(cutoff); d > wait {
			wait = d
		}
	}
	if len(l.tokenEvents) > 0 {
		if d := l.tokenEvents[0].at.Sub(cutoff); d > wait {
			wait = d
		}
	}
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait
}
