// Package rates resolves the EUR/USD exchange rate used by the cross-region
// price comparison.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/car-scanner/internal/circuitbreaker"
	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/storage"
)

// Client fetches the EUR/USD rate with a Redis cache in front of the rate
// API and a configured fallback behind it. EURUSD never fails: a cache
// miss plus an unreachable API degrades to the fallback rate, which is
// good enough for an indicative arbitrage comparison.
type Client struct {
	http     *http.Client
	apiURL   string
	fallback float64
	cacheTTL time.Duration
	cache    *storage.CacheService
	breaker  *circuitbreaker.CircuitBreaker
	log      *logging.Logger
}

// NewClient creates a rate client. cache may be nil, in which case every
// call goes to the API.
func NewClient(cfg config.RatesConfig, cache *storage.CacheService, log *logging.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		apiURL:   cfg.APIURL,
		fallback: cfg.EURUSDFallback,
		cacheTTL: cfg.CacheTTL,
		cache:    cache,
		breaker:  circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("rates-api")),
		log:      log.WithField("component", "rates"),
	}
}

// rateResponse is the frankfurter.app payload shape.
type rateResponse struct {
	Base  string             `json:"base"`
	Date  string             `json:"date"`
	Rates map[string]float64 `json:"rates"`
}

// EURUSD returns the current EUR/USD rate: cached value if fresh, else the
// rate API, else the configured fallback.
func (c *Client) EURUSD(ctx context.Context) float64 {
	var key string
	if c.cache != nil {
		key = c.cache.GenerateRateKey("EUR", "USD")
		var cached float64
		if hit, err := c.cache.Get(ctx, key, &cached); err == nil && hit && cached > 0 {
			return cached
		}
	}

	var rate float64
	err := c.breaker.Execute(ctx, func() error {
		fetched, err := c.fetch(ctx)
		if err != nil {
			return err
		}
		rate = fetched
		return nil
	})
	if err != nil {
		c.log.WithError(err).WithField("fallback", c.fallback).Warn("Rate fetch failed, using fallback")
		return c.fallback
	}

	if c.cache != nil {
		if err := c.cache.SetWithTTL(ctx, key, rate, c.cacheTTL); err != nil {
			c.log.WithError(err).Warn("Failed to cache exchange rate")
		}
	}

	c.log.WithField("rate", rate).Info("EUR/USD rate refreshed")
	return rate
}

func (c *Client) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("rate api returned status %d", resp.StatusCode)
	}

	var payload rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}

	rate, ok := payload.Rates["USD"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("rate response missing USD rate")
	}
	return rate, nil
}
