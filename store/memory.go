// Package store provides an in-memory implementation of the engine's
// persistence interfaces, suitable for tests and single-process use.
// Cross-process deployments use the redis, postgres, or sqlite
// subpackages instead.
package store

import (
	"context"
	"sync"
	"time"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

// Memory holds all three persisted tables in process memory behind one
// mutex. Day rollover is applied lazily, the same way the persisted
// backends do it.
type Memory struct {
	mu       sync.Mutex
	quotas   map[string]*textclass.ModelQuota
	progress map[string]*textclass.ProgressRecord
	spend    map[string]*textclass.SpendRecord

	now func() time.Time
}

var (
	_ textclass.QuotaStore    = (*Memory)(nil)
	_ textclass.ProgressStore = (*Memory)(nil)
	_ textclass.SpendStore    = (*Memory)(nil)
)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		quotas:   make(map[string]*textclass.ModelQuota),
		progress: make(map[string]*textclass.ProgressRecord),
		spend:    make(map[string]*textclass.SpendRecord),
		now:      time.Now,
	}
}

func (m *Memory) today() string {
	return m.now().UTC().Format(textclass.DayFormat)
}

// quotaFor returns the record for a model with today's counters,
// resetting stale days. Callers hold mu.
func (m *Memory) quotaFor(model string) *textclass.ModelQuota {
	q, ok := m.quotas[model]
	if !ok {
		q = &textclass.ModelQuota{Model: model, Day: m.today()}
		m.quotas[model] = q
		return q
	}
	if today := m.today(); q.Day != today {
		q.Day = today
		q.Requests = 0
		q.Tokens = 0
	}
	return q
}

// Usage returns today's counters for a model.
func (m *Memory) Usage(_ context.Context, model string) (textclass.ModelQuota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.quotaFor(model), nil
}

// AddUsage adds to today's counters, resetting first on a stale day.
func (m *Memory) AddUsage(_ context.Context, model string, requests, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.quotaFor(model)
	q.Requests += requests
	q.Tokens += tokens
	return nil
}

// IncInFlight increments the model's in-flight batch count.
func (m *Memory) IncInFlight(_ context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotaFor(model).InFlight++
	return nil
}

// DecInFlight decrements the model's in-flight batch count, never
// below zero.
func (m *Memory) DecInFlight(_ context.Context, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	q := m.quotaFor(model)
	if q.InFlight > 0 {
		q.InFlight--
	}
	return nil
}

// ResetInFlight zeroes the in-flight counter for every model.
func (m *Memory) ResetInFlight(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, q := range m.quotas {
		q.InFlight = 0
	}
	return nil
}

// Init creates or resets the caller's progress record.
func (m *Memory) Init(_ context.Context, callerID, batchID string, totalRows int, phase textclass.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress[callerID] = &textclass.ProgressRecord{
		CallerID:  callerID,
		BatchID:   batchID,
		TotalRows: totalRows,
		Phase:     phase,
		Active:    true,
		UpdatedAt: m.now().UTC(),
	}
	return nil
}

// Advance sets the absolute processed count and refreshes the timestamp.
func (m *Memory) Advance(_ context.Context, callerID string, processed, total int, phase textclass.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.progress[callerID]
	if !ok {
		rec = &textclass.ProgressRecord{CallerID: callerID}
		m.progress[callerID] = rec
	}
	rec.ProcessedRows = processed
	rec.TotalRows = total
	rec.Phase = phase
	rec.Active = true
	rec.UpdatedAt = m.now().UTC()
	return nil
}

// Finalize marks the caller's record inactive. Idempotent.
func (m *Memory) Finalize(_ context.Context, callerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.progress[callerID]; ok {
		rec.Active = false
		rec.UpdatedAt = m.now().UTC()
	}
	return nil
}

// Get returns the caller's record, or a zero record when absent.
func (m *Memory) Get(_ context.Context, callerID string) (textclass.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.progress[callerID]; ok {
		return *rec, nil
	}
	return textclass.ProgressRecord{CallerID: callerID, Phase: textclass.PhaseProcessing}, nil
}

// RecordSpend adds to the caller's daily total, resetting to amount on
// a stale day, and returns the post-update total.
func (m *Memory) RecordSpend(_ context.Context, callerID string, amount float64) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := m.today()
	rec, ok := m.spend[callerID]
	if !ok || rec.Day != today {
		rec = &textclass.SpendRecord{CallerID: callerID, Day: today}
		m.spend[callerID] = rec
	}
	rec.Total += amount
	return rec.Total, nil
}

// DailySpend returns the caller's total for today.
func (m *Memory) DailySpend(_ context.Context, callerID string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.spend[callerID]
	if !ok || rec.Day != m.today() {
		return 0, nil
	}
	return rec.Total, nil
}
