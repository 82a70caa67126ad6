package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiterAllow(t *testing.T) {
	hl := NewHostLimiter(1) // 1 rps, burst 1

	if !hl.Allow("www.cars.com") {
		t.Error("first request should be allowed")
	}
	if hl.Allow("www.cars.com") {
		t.Error("second immediate request should be throttled")
	}
}

func TestHostLimiterHostsAreIndependent(t *testing.T) {
	hl := NewHostLimiter(1)

	if !hl.Allow("www.cars.com") {
		t.Error("first request to cars.com should be allowed")
	}
	if !hl.Allow("www.autoscout24.de") {
		t.Error("first request to autoscout24.de should be allowed")
	}
}

func TestHostLimiterDisabled(t *testing.T) {
	hl := NewHostLimiter(0)

	for i := 0; i < 50; i++ {
		if !hl.Allow("www.cars.com") {
			t.Fatal("disabled limiter should allow everything")
		}
	}
}

func TestHostLimiterWaitHonorsContext(t *testing.T) {
	hl := NewHostLimiter(0.001) // one request per ~17 minutes

	if err := hl.Wait(context.Background(), "www.cars.com"); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := hl.Wait(ctx, "www.cars.com"); err == nil {
		t.Error("Wait() should fail when the context deadline precedes the next token")
	}
}
