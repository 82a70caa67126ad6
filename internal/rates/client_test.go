package rates

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/car-scanner/internal/config"
	"github.com/car-scanner/internal/logging"
	"github.com/car-scanner/internal/storage"
)

func testLog() *logging.Logger {
	l := logging.NewLogger(logging.LevelError, logging.FormatText)
	l.SetOutput(io.Discard)
	return l
}

func testCache(t *testing.T) *storage.CacheService {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})

	return storage.NewCacheService(storage.NewRedisCacheFromClient(client), time.Hour)
}

func ratesConfig(apiURL string) config.RatesConfig {
	return config.RatesConfig{
		EURUSDFallback: 1.08,
		APIURL:         apiURL,
		CacheTTL:       time.Hour,
		Timeout:        2 * time.Second,
	}
}

func TestEURUSDFromAPI(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"amount":1.0,"base":"EUR","date":"2025-06-02","rates":{"USD":1.0923}}`))
	}))
	defer srv.Close()

	c := NewClient(ratesConfig(srv.URL), testCache(t), testLog())

	rate := c.EURUSD(context.Background())
	assert.Equal(t, 1.0923, rate)
	assert.Equal(t, 1, calls)

	// Second call is served from cache.
	rate = c.EURUSD(context.Background())
	assert.Equal(t, 1.0923, rate)
	assert.Equal(t, 1, calls)
}

func TestEURUSDFallbackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ratesConfig(srv.URL), testCache(t), testLog())

	rate := c.EURUSD(context.Background())
	assert.Equal(t, 1.08, rate)
}

func TestEURUSDFallbackOnBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"rates":{"GBP":0.85}}`))
	}))
	defer srv.Close()

	c := NewClient(ratesConfig(srv.URL), nil, testLog())

	rate := c.EURUSD(context.Background())
	assert.Equal(t, 1.08, rate)
}

func TestEURUSDWithoutCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"rates":{"USD":1.10}}`))
	}))
	defer srv.Close()

	c := NewClient(ratesConfig(srv.URL), nil, testLog())

	c.EURUSD(context.Background())
	c.EURUSD(context.Background())
	assert.Equal(t, 2, calls)
}
