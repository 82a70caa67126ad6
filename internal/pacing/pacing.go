package pacing

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/logging"
)

// Pacer produces randomized delays between consecutive page fetches so
// request timing does not form a detectable pattern.
type Pacer struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPacer creates a pacer that delays uniformly within [minDelay, maxDelay]
func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Delay returns a random duration within the configured window
func (p *Pacer) Delay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	window := p.maxDelay - p.minDelay
	if window <= 0 {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.rng.Int63n(int64(window)))
}

// Wait sleeps for a random delay, honoring context cancellation
func (p *Pacer) Wait(ctx context.Context) error {
	select {
	case <-time.After(p.Delay()):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryConfig configures retry behavior for page fetches
type RetryConfig struct {
	MaxAttempts int           // Total number of attempts before giving up
	BaseDelay   time.Duration // Unit for the exponential backoff term
}

// DefaultRetryConfig returns the default retry configuration
// Pattern: 1s, 2s, 4s plus up to 1s of jitter per wait
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
	}
}

// AttemptFunc is a function that can be retried
type AttemptFunc func(ctx context.Context, attempt int) error

// Retry executes fn with exponential backoff between attempts.
// The delay before attempt n+1 is BaseDelay*2^n plus jitter in [0, 1s).
// Non-retryable errors (bot detection, validation) short-circuit, and the
// last error is returned unwrapped so callers can still categorize it.
func Retry(ctx context.Context, config *RetryConfig, fn AttemptFunc) error {
	logger := logging.FromContext(ctx)

	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 0 {
				logger.WithField("attempts", attempt+1).Info("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !errors.IsRetryable(err) {
			logger.WithError(err).Warn("Operation failed with non-retryable error")
			return err
		}

		if attempt >= config.MaxAttempts-1 {
			break
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(config.BaseDelay, attempt)

		logger.WithFields(map[string]interface{}{
			"attempt":     attempt + 1,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay.String(),
			"error":       err.Error(),
		}).Warn("Operation failed, retrying with exponential backoff")

		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.WithFields(map[string]interface{}{
		"attempts": config.MaxAttempts,
		"error":    lastErr.Error(),
	}).Error("Operation failed after max retry attempts")

	return lastErr
}

// backoffDelay computes BaseDelay*2^attempt plus jitter in [0, 1s)
func backoffDelay(base time.Duration, attempt int) time.Duration {
	backoff := float64(base) * math.Pow(2, float64(attempt))
	jitter := rand.Float64() * float64(time.Second)
	return time.Duration(backoff + jitter)
}
