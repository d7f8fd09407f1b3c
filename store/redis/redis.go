// Package redis provides Redis-backed implementations of the engine's
// persistence interfaces.
//
// State is stored in Redis hashes with atomic Lua scripts for the
// read-modify-write paths (daily rollover, spend accumulation), which
// makes the stores safe for multi-instance deployments.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	textclass "github.com/G-Pavel-H/GPT-Text-Classification-App"
)

// Store is a Redis-backed QuotaStore, ProgressStore, and SpendStore.
type Store struct {
	client    goredis.Cmdable
	keyPrefix string
}

var (
	_ textclass.QuotaStore    = (*Store)(nil)
	_ textclass.ProgressStore = (*Store)(nil)
	_ textclass.SpendStore    = (*Store)(nil)
)

// Option configures Store.
type Option func(*Store)

// WithKeyPrefix sets the Redis key prefix (default "textclass:").
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.keyPrefix = prefix }
}

// New creates a new Redis-backed store. The client must be a connected
// *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		keyPrefix: "textclass:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) quotaKey(model string) string     { return s.keyPrefix + "quota:" + model }
func (s *Store) progressKey(caller string) string { return s.keyPrefix + "progress:" + caller }
func (s *Store) spendKey(caller string) string    { return s.keyPrefix + "spend:" + caller }

// addUsageScript applies the lazy daily reset and increments the
// counters in one atomic step.
// KEYS[1] = quota hash key
// ARGV[1] = today ("2006-01-02"), ARGV[2] = requests, ARGV[3] = tokens
var addUsageScript = goredis.NewScript(`
local key = KEYS[1]
local today = ARGV[1]

local day = redis.call("HGET", key, "day")
if day ~= today then
    redis.call("HSET", key, "day", today, "requests", "0", "tokens", "0")
    redis.call("HSETNX", key, "in_flight", "0")
end

redis.call("HINCRBY", key, "requests", tonumber(ARGV[2]))
redis.call("HINCRBY", key, "tokens", tonumber(ARGV[3]))
return 1
`)

// decInFlightScript decrements in_flight without going below zero.
var decInFlightScript = goredis.NewScript(`
local v = tonumber(redis.call("HGET", KEYS[1], "in_flight") or "0")
if v > 0 then
    redis.call("HSET", KEYS[1], "in_flight", v - 1)
end
return 1
`)

// recordSpendScript applies the lazy daily reset, accumulates, and
// returns the post-update total.
// KEYS[1] = spend hash key
// ARGV[1] = today, ARGV[2] = amount
var recordSpendScript = goredis.NewScript(`
local key = KEYS[1]
local today = ARGV[1]

local day = redis.call("HGET", key, "day")
if day ~= today then
    redis.call("HSET", key, "day", today, "total", "0")
end

return redis.call("HINCRBYFLOAT", key, "total", ARGV[2])
`)

// Usage returns today's counters for a model. Stale days read as
// zeroed counters (read-only; the reset is written by AddUsage).
func (s *Store) Usage(ctx context.Context, model string) (textclass.ModelQuota, error) {
	vals, err := s.client.HMGet(ctx, s.quotaKey(model), "day", "requests", "tokens", "in_flight").Result()
	if err != nil {
		return textclass.ModelQuota{}, fmt.Errorf("textclass/redis: usage: %w", err)
	}

	q := textclass.ModelQuota{Model: model, Day: textclass.Today()}
	if vals[0] == nil {
		return q, nil
	}

	day := vals[0].(string)
	if vals[3] != nil {
		q.InFlight, _ = strconv.ParseInt(vals[3].(string), 10, 64)
	}
	if day != q.Day {
		return q, nil
	}
	if vals[1] != nil {
		q.Requests, _ = strconv.ParseInt(vals[1].(string), 10, 64)
	}
	if vals[2] != nil {
		q.Tokens, _ = strconv.ParseInt(vals[2].(string), 10, 64)
	}
	return q, nil
}

// AddUsage adds to today's counters, resetting them first when the
// stored day is stale.
func (s *Store) AddUsage(ctx context.Context, model string, requests, tokens int64) error {
	err := addUsageScript.Run(ctx, s.client,
		[]string{s.quotaKey(model)},
		textclass.Today(), requests, tokens,
	).Err()
	if err != nil {
		return fmt.Errorf("textclass/redis: add usage: %w", err)
	}
	return nil
}

// IncInFlight increments the model's in-flight batch count.
func (s *Store) IncInFlight(ctx context.Context, model string) error {
	if err := s.client.HIncrBy(ctx, s.quotaKey(model), "in_flight", 1).Err(); err != nil {
		return fmt.Errorf("textclass/redis: inc in-flight: %w", err)
	}
	return nil
}

// DecInFlight decrements the model's in-flight batch count, never
// below zero.
func (s *Store) DecInFlight(ctx context.Context, model string) error {
	if err := decInFlightScript.Run(ctx, s.client, []string{s.quotaKey(model)}).Err(); err != nil {
		return fmt.Errorf("textclass/redis: dec in-flight: %w", err)
	}
	return nil
}

// ResetInFlight zeroes the in-flight counter for every known model.
func (s *Store) ResetInFlight(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"quota:*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.HSet(ctx, iter.Val(), "in_flight", 0).Err(); err != nil {
			return fmt.Errorf("textclass/redis: reset in-flight: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("textclass/redis: reset in-flight scan: %w", err)
	}
	return nil
}

// Init creates or resets the caller's progress record.
func (s *Store) Init(ctx context.Context, callerID, batchID string, totalRows int, phase textclass.Phase) error {
	err := s.client.HSet(ctx, s.progressKey(callerID),
		"batch_id", batchID,
		"total_rows", totalRows,
		"processed_rows", 0,
		"phase", string(phase),
		"active", 1,
		"updated_at", time.Now().UTC().UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("textclass/redis: init progress: %w", err)
	}
	return nil
}

// Advance sets the absolute processed count and refreshes the timestamp.
func (s *Store) Advance(ctx context.Context, callerID string, processed, total int, phase textclass.Phase) error {
	err := s.client.HSet(ctx, s.progressKey(callerID),
		"total_rows", total,
		"processed_rows", processed,
		"phase", string(phase),
		"active", 1,
		"updated_at", time.Now().UTC().UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("textclass/redis: advance progress: %w", err)
	}
	return nil
}

// Finalize marks the caller's record inactive. Idempotent.
func (s *Store) Finalize(ctx context.Context, callerID string) error {
	err := s.client.HSet(ctx, s.progressKey(callerID),
		"active", 0,
		"updated_at", time.Now().UTC().UnixNano(),
	).Err()
	if err != nil {
		return fmt.Errorf("textclass/redis: finalize progress: %w", err)
	}
	return nil
}

// Get returns the caller's record, or a zero record when absent.
func (s *Store) Get(ctx context.Context, callerID string) (textclass.ProgressRecord, error) {
	vals, err := s.client.HGetAll(ctx, s.progressKey(callerID)).Result()
	if err != nil {
		return textclass.ProgressRecord{}, fmt.Errorf("textclass/redis: get progress: %w", err)
	}

	rec := textclass.ProgressRecord{CallerID: callerID, Phase: textclass.PhaseProcessing}
	if len(vals) == 0 {
		return rec, nil
	}

	rec.BatchID = vals["batch_id"]
	rec.TotalRows, _ = strconv.Atoi(vals["total_rows"])
	rec.ProcessedRows, _ = strconv.Atoi(vals["processed_rows"])
	if p := vals["phase"]; p != "" {
		rec.Phase = textclass.Phase(p)
	}
	rec.Active = vals["active"] == "1"
	if ns, err := strconv.ParseInt(vals["updated_at"], 10, 64); err == nil {
		rec.UpdatedAt = time.Unix(0, ns).UTC()
	}
	return rec, nil
}

// RecordSpend adds to the caller's daily total, resetting to amount on
// a stale day, and returns the post-update total.
func (s *Store) RecordSpend(ctx context.Context, callerID string, amount float64) (float64, error) {
	out, err := recordSpendScript.Run(ctx, s.client,
		[]string{s.spendKey(callerID)},
		textclass.Today(), amount,
	).Text()
	if err != nil {
		return 0, fmt.Errorf("textclass/redis: record spend: %w", err)
	}

	total, err := strconv.ParseFloat(out, 64)
	if err != nil {
		return 0, fmt.Errorf("textclass/redis: parse spend total: %w", err)
	}
	return total, nil
}

// DailySpend returns the caller's total for today.
func (s *Store) DailySpend(ctx context.Context, callerID string) (float64, error) {
	vals, err := s.client.HMGet(ctx, s.spendKey(callerID), "day", "total").Result()
	if err != nil {
		return 0, fmt.Errorf("textclass/redis: daily spend: %w", err)
	}

	if vals[0] == nil || vals[0].(string) != textclass.Today() {
		return 0, nil
	}
	total, _ := strconv.ParseFloat(vals[1].(string), 64)
	return total, nil
}
