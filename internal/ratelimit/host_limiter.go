package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter caps the static-fetch request rate per remote host. Browser
// renders pace themselves through the scraper's delay window; this guards
// the plain HTTP path, which can otherwise burst.
type HostLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limit rate.Limit
	burst int
}

// NewHostLimiter creates a limiter allowing rps requests per second to
// each distinct host. rps <= 0 disables limiting.
func NewHostLimiter(rps float64) *HostLimiter {
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(rps),
		burst:    1,
	}
}

// getLimiter returns the rate limiter for a specific host
func (hl *HostLimiter) getLimiter(host string) *rate.Limiter {
	hl.mu.RLock()
	limiter, exists := hl.limiters[host]
	hl.mu.RUnlock()

	if exists {
		return limiter
	}

	hl.mu.Lock()
	defer hl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := hl.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(hl.limit, hl.burst)
	hl.limiters[host] = limiter

	return limiter
}

// Wait blocks until the host's limiter permits a request or the context
// is cancelled
func (hl *HostLimiter) Wait(ctx context.Context, host string) error {
	if hl.limit <= 0 {
		return nil
	}
	return hl.getLimiter(host).Wait(ctx)
}

// Allow reports whether a request to the host may proceed immediately
func (hl *HostLimiter) Allow(host string) bool {
	if hl.limit <= 0 {
		return true
	}
	return hl.getLimiter(host).Allow()
}
