package textclass

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubQuotaStore returns a fixed usage record and counts AddUsage calls.
type stubQuotaStore struct {
	mu       sync.Mutex
	usage    ModelQuota
	usageErr error

	addCalls    int
	addRequests int64
	addTokens   int64
}

func (s *stubQuotaStore) Usage(context.Context, string) (ModelQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage, s.usageErr
}

func (s *stubQuotaStore) AddUsage(_ context.Context, _ string, requests, tokens int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	s.addRequests += requests
	s.addTokens += tokens
	return nil
}

func (s *stubQuotaStore) IncInFlight(context.Context, string) error { return nil }
func (s *stubQuotaStore) DecInFlight(context.Context, string) error { return nil }
func (s *stubQuotaStore) ResetInFlight(context.Context) error       { return nil }

func TestAdmitRecordsUsage(t *testing.T) {
	qs := &stubQuotaStore{}
	l := NewRateLimiter("gpt-4o-mini", ModelLimits{TokensPerMinute: 1000, RequestsPerMinute: 10}, qs)

	require.NoError(t, l.Admit(context.Background(), 100))
	require.NoError(t, l.Admit(context.Background(), 200))

	assert.Equal(t, 2, qs.addCalls)
	assert.Equal(t, int64(2), qs.addRequests)
	assert.Equal(t, int64(300), qs.addTokens)
	assert.Len(t, l.reqTimes, 2)
}

func TestAdmitDailyQuotaFailsFast(t *testing.T) {
	qs := &stubQuotaStore{usage: ModelQuota{Requests: 10, Tokens: 5000}}
	l := NewRateLimiter("gpt-4o-mini", ModelLimits{RequestsPerDay: 10}, qs)

	start := time.Now()
	err := l.Admit(context.Background(), 1)
	require.ErrorIs(t, err, ErrDailyQuotaExceeded)
	assert.Less(t, time.Since(start), time.Second, "daily rejections must not block")
	assert.Equal(t, 0, qs.addCalls, "rejected admissions must not bump the counters")
}

func TestAdmitDailyTokenQuota(t *testing.T) {
	qs := &stubQuotaStore{usage: ModelQuota{Tokens: 990}}
	l := NewRateLimiter("gpt-4o-mini", ModelLimits{TokensPerDay: 1000}, qs)

	// 990 + 20 exceeds the cap.
	err := l.Admit(context.Background(), 20)
	require.ErrorIs(t, err, ErrDailyQuotaExceeded)

	// 990 + 10 exactly meets it.
	require.NoError(t, l.Admit(context.Background(), 10))
}

func TestAdmitZeroLimitsUnbounded(t *testing.T) {
	qs := &stubQuotaStore{usage: ModelQuota{Requests: 1 << 40, Tokens: 1 << 50}}
	l := NewRateLimiter("gpt-3.5-turbo", ModelLimits{}, qs)

	for i := 0; i < 100; i++ {
		require.NoError(t, l.Admit(context.Background(), 1_000_000))
	}
	assert.Equal(t, 100, qs.addCalls)
}

func TestAdmitUsageError(t *testing.T) {
	wantErr := errors.New("store down")
	qs := &stubQuotaStore{usageErr: wantErr}
	l := NewRateLimiter("gpt-4o-mini", ModelLimits{}, qs)

	err := l.Admit(context.Background(), 1)
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, qs.addCalls)
}

func TestAdmitBlocksUntilContextCancel(t *testing.T) {
	qs := &stubQuotaStore{}
	l := NewRateLimiter("gpt-4o-mini", ModelLimits{RequestsPerMinute: 1}, qs)

	require.NoError(t, l.Admit(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Admit(ctx, 1)
	}()

	select {
	case err := <-done:
		t.Fatalf("second admission returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("admission did not unblock on cancel")
	}
	assert.Equal(t, 1, qs.addCalls, "a cancelled admission must not bump the counters")
}

func TestWindowPruning(t *testing.T) {
	qs := &stubQuotaStore{}
	l := NewRateLimiter("gpt-4o-mini", ModelLimits{RequestsPerMinute: 2, TokensPerMinute: 100}, qs)

	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	clock := base
	l.now = func() time.Time { return clock }

	require.NoError(t, l.Admit(context.Background(), 40))
	clock = base.Add(10 * time.Second)
	require.NoError(t, l.Admit(context.Background(), 40))

	// Window is full on both axes.
	l.mu.Lock()
	l.prune(clock)
	assert.False(t, l.windowHasRoom(40))
	l.mu.Unlock()

	// 61s after the first admission, one slot has aged out.
	clock = base.Add(61 * time.Second)
	l.mu.Lock()
	l.prune(clock)
	assert.Len(t, l.reqTimes, 1)
	assert.True(t, l.windowHasRoom(40))
	assert.False(t, l.windowHasRoom(80), "token budget still binds")
	l.mu.Unlock()
}

func TestOversizedRequestAdmitsAlone(t *testing.T) {
	qs := &stubQuotaStore{}
	l := NewRateLimiter("gpt-4", ModelLimits{TokensPerMinute: 100}, qs)

	// A request over the whole per-minute budget still admits into an
	// empty window rather than waiting forever.
	require.NoError(t, l.Admit(context.Background(), 500))
	assert.Equal(t, 1, qs.addCalls)
}

func TestNextWake(t *testing.T) {
	qs := &stubQuotaStore{}
	l := NewRateLimiter("gpt-4o-mini", ModelLimits{RequestsPerMinute: 1}, qs)

	base := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	l.reqTimes = []time.Time{base}

	// 20s into the window the oldest entry ages out in 40s.
	assert.Equal(t, 40*time.Second, l.nextWake(base.Add(20*time.Second)))

	// Past the window the wake floor keeps the retry loop from spinning.
	assert.Equal(t, time.Millisecond, l.nextWake(base.Add(2*rateWindow)))
}
