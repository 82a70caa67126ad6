package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/pacing"
	"github.com/car-scanner/internal/ratelimit"
)

// Fetcher performs plain HTTP page fetches for sources that render
// server-side. Requests carry a desktop browser profile, honor the
// per-host rate limiter and retry transient failures with backoff.
type Fetcher struct {
	client    *http.Client
	limiter   *ratelimit.HostLimiter
	userAgent string
	retry     *pacing.RetryConfig
}

// NewFetcher creates a fetcher from the scraper configuration.
func NewFetcher(cfg config.ScraperConfig, limiter *ratelimit.HostLimiter) *Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		limiter:   limiter,
		userAgent: cfg.UserAgent,
		retry: &pacing.RetryConfig{
			MaxAttempts: retries,
			BaseDelay:   1 * time.Second,
		},
	}
}

// Get fetches a single page and returns its body. Non-2xx statuses and
// network failures come back as transport errors so callers can classify
// them as retryable.
func (f *Fetcher) Get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.NewInvalidParameterError("url", err.Error())
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, u.Host); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.NewTransportError(u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewTransportError(u.Host, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewTransportError(u.Host, fmt.Errorf("failed to read response: %w", err))
	}
	return body, nil
}

// GetWithRetry fetches a page, retrying transient failures with the
// configured backoff. The last attempt's error is returned as-is.
func (f *Fetcher) GetWithRetry(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := pacing.Retry(ctx, f.retry, func(ctx context.Context, attempt int) error {
		b, err := f.Get(ctx, rawURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}
