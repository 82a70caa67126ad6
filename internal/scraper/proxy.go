package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/car-scanner/internal/circuitbreaker"
	"github.com/car-scanner/internal/errors"
	"github.com/car-scanner/internal/logging"
)

const (
	scraperAPIBase = "https://api.scraperapi.com"

	// Rendering timeouts upstream produce a small stub page instead of an
	// HTTP error, so anything under this size counts as a failed render.
	minRenderedSize = 5000
)

// RenderProxy fetches pages through ScraperAPI, which renders JavaScript on
// its own browser pool. Sources that block locally-run headless browsers go
// through here; a circuit breaker keeps a degraded proxy from stalling
// every search.
type RenderProxy struct {
	apiKey  string
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
	log     *logging.Logger
}

// NewRenderProxy creates a proxy client. An empty API key yields a disabled
// proxy; callers check Enabled and fall back to the local browser.
func NewRenderProxy(apiKey string, log *logging.Logger) *RenderProxy {
	return &RenderProxy{
		apiKey: apiKey,
		// Proxy-side rendering routinely takes over a minute.
		client:  &http.Client{Timeout: 120 * time.Second},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("scraperapi")),
		log:     log,
	}
}

// Enabled reports whether the proxy is configured with an API key.
func (p *RenderProxy) Enabled() bool {
	return p != nil && p.apiKey != ""
}

// FetchRendered returns fully rendered HTML for targetURL.
func (p *RenderProxy) FetchRendered(ctx context.Context, targetURL string) (string, error) {
	apiURL := fmt.Sprintf("%s/?api_key=%s&url=%s&render=true&country_code=us",
		scraperAPIBase, p.apiKey, url.QueryEscape(targetURL))

	var html string
	err := p.breaker.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return errors.NewTransportError("scraperapi", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errors.NewTransportError("scraperapi", fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.NewTransportError("scraperapi", err)
		}
		if len(body) < minRenderedSize {
			p.log.WithField("bytes", len(body)).Warn("Proxy returned undersized page, treating as failed render")
			return errors.NewRenderTimeoutError("scraperapi")
		}

		html = string(body)
		return nil
	})
	if err != nil {
		return "", err
	}
	return html, nil
}
