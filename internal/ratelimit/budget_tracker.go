// Package ratelimit coordinates scrape politeness limits: a daily page
// budget per source and a per-host request rate for static fetches.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultDailyBudget = 0                   // Pages per source per day, 0 = unlimited
	DefaultKeyTTL      = 48 * time.Hour      // Covers the day window plus slack
	KeyPrefixPages     = "budget:pages:"     // budget:pages:<source>:<yyyy-mm-dd>
	KeyPrefixThrottled = "budget:throttled:" // throttle counters for monitoring
)

// PageBudgetTracker enforces a daily page-fetch budget per source using
// Redis. The budget is advisory politeness, not billing: on any Redis
// error the tracker fails open and allows the fetch.
type PageBudgetTracker struct {
	redis       redis.Cmdable
	dailyBudget int
	keyTTL      time.Duration
}

// PageBudgetTrackerConfig holds configuration for the budget tracker.
type PageBudgetTrackerConfig struct {
	// Redis is the client used for cross-process coordination. Required.
	Redis redis.Cmdable

	// DailyBudget is the page budget per source per UTC day. 0 disables
	// enforcement entirely.
	DailyBudget int

	// KeyTTL is the TTL for Redis counter keys. Default: 48h.
	KeyTTL time.Duration
}

// Validate checks if the configuration is valid.
func (c *PageBudgetTrackerConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.DailyBudget < 0 {
		return errors.New("daily budget cannot be negative")
	}
	return nil
}

// NewPageBudgetTracker creates a new tracker with the given configuration.
func NewPageBudgetTracker(cfg *PageBudgetTrackerConfig) (*PageBudgetTracker, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultKeyTTL
	}

	return &PageBudgetTracker{
		redis:       cfg.Redis,
		dailyBudget: cfg.DailyBudget,
		keyTTL:      keyTTL,
	}, nil
}

// dayKey returns the counter key for a source in the current UTC day window
func (t *PageBudgetTracker) dayKey(source string, now time.Time) string {
	return KeyPrefixPages + source + ":" + now.UTC().Format("2006-01-02")
}

// TryConsume attempts to charge one page fetch against the source's daily
// budget. It returns false only when the budget is configured and the
// atomic check-and-increment finds it exhausted.
func (t *PageBudgetTracker) TryConsume(ctx context.Context, source string) bool {
	if t.dailyBudget == 0 {
		return true
	}

	key := t.dayKey(source, time.Now())

	// Lua script makes check-and-increment atomic under concurrent jobs
	script := redis.NewScript(`
		local key = KEYS[1]
		local budget = tonumber(ARGV[1])
		local ttl = tonumber(ARGV[2])

		local used = tonumber(redis.call('GET', key) or '0')
		if used >= budget then
			return {0, used}
		end

		redis.call('INCR', key)
		redis.call('EXPIRE', key, ttl)
		return {1, used + 1}
	`)

	ttlSeconds := int(t.keyTTL.Seconds())
	if ttlSeconds < 1 {
		ttlSeconds = 1
	}

	result, err := script.Run(ctx, t.redis, []string{key}, t.dailyBudget, ttlSeconds).Int64Slice()
	if err != nil {
		// Fail open: a broken Redis must not stop scraping
		return true
	}

	allowed := result[0] == 1
	if !allowed {
		t.recordThrottle(ctx, source)
	}
	return allowed
}

// recordThrottle counts denied fetches for monitoring
func (t *PageBudgetTracker) recordThrottle(ctx context.Context, source string) {
	key := KeyPrefixThrottled + source + ":" + time.Now().UTC().Format("2006-01-02")
	pipe := t.redis.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.keyTTL)
	_, _ = pipe.Exec(ctx) // nolint:errcheck // monitoring only
}

// Usage returns pages consumed today and the configured budget for a source
func (t *PageBudgetTracker) Usage(ctx context.Context, source string) (used, budget int, err error) {
	key := t.dayKey(source, time.Now())

	val, err := t.redis.Get(ctx, key).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, t.dailyBudget, nil
		}
		return 0, t.dailyBudget, fmt.Errorf("failed to read budget usage: %w", err)
	}

	return val, t.dailyBudget, nil
}

// Remaining returns how many pages a source may still fetch today.
// Unlimited budgets report -1.
func (t *PageBudgetTracker) Remaining(ctx context.Context, source string) (int, error) {
	if t.dailyBudget == 0 {
		return -1, nil
	}

	used, budget, err := t.Usage(ctx, source)
	if err != nil {
		return 0, err
	}

	remaining := budget - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
