// Package mock provides a configurable in-memory Labeler for tests.
package mock

import (
	"context"
	"sync/atomic"
	"time"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

// Labeler is a fake Labeler with configurable latency and failures.
type Labeler struct {
	latency   time.Duration
	err       error
	failAfter int64
	respond   func(text string, labels []textclass.LabelDef, model string) string

	calls atomic.Int64
}

var _ textclass.Labeler = (*Labeler)(nil)

// Option configures a mock Labeler.
type Option func(*Labeler)

// WithLatency makes every call sleep for d before returning.
func WithLatency(d time.Duration) Option {
	return func(l *Labeler) { l.latency = d }
}

// WithError makes every call fail with err.
func WithError(err error) Option {
	return func(l *Labeler) { l.err = err }
}

// WithFailAfter makes calls fail with err once n calls have succeeded.
func WithFailAfter(n int, err error) Option {
	return func(l *Labeler) {
		l.failAfter = int64(n)
		l.err = err
	}
}

// WithResponseFunc sets the function that produces the label. The
// default returns the first label name, or "unlabeled" when no labels
// were provided.
func WithResponseFunc(fn func(text string, labels []textclass.LabelDef, model string) string) Option {
	return func(l *Labeler) { l.respond = fn }
}

// New creates a mock Labeler.
func New(opts ...Option) *Labeler {
	l := &Labeler{failAfter: -1}
	for _, opt := range opts {
		opt(l)
	}
	if l.respond == nil {
		l.respond = func(_ string, labels []textclass.LabelDef, _ string) string {
			if len(labels) == 0 {
				return "unlabeled"
			}
			return labels[0].Name
		}
	}
	return l
}

// Label returns the configured response after the configured latency.
func (l *Labeler) Label(ctx context.Context, text string, labels []textclass.LabelDef, model string) (string, error) {
	n := l.calls.Add(1)

	if l.latency > 0 {
		select {
		case <-time.After(l.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if l.err != nil && (l.failAfter < 0 || n > l.failAfter) {
		return "", l.err
	}
	return l.respond(text, labels, model), nil
}

// CallCount reports how many times Label has been called.
func (l *Labeler) CallCount() int64 {
	return l.calls.Load()
}
