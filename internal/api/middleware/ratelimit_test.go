// Package middleware provides HTTP middleware components for the eventcanon API.
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestRateLimiterConfig returns a config with tiny limits so tests can
// exhaust buckets deterministically without waiting for refills.
func newTestRateLimiterConfig() *Config {
	return &Config{
		GlobalRPS:       100,
		ProducerRPS:     2,
		UnAuthRPS:       1,
		GlobalBurst:     100,
		ProducerBurst:   2,
		UnAuthBurst:     1,
		CleanupInterval: time.Minute,
		IdleTimeout:     time.Hour,
		MaxProducers:    10,
	}
}

// TestInMemoryRateLimiter_UnauthenticatedTier verifies the unauthenticated
// bucket is consumed for requests without a producer ID.
func TestInMemoryRateLimiter_UnauthenticatedTier(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(newTestRateLimiterConfig())
	defer rl.Close()

	if !rl.Allow("") {
		t.Fatal("first unauthenticated request should be allowed")
	}

	if rl.Allow("") {
		t.Error("second unauthenticated request should exceed burst of 1")
	}
}

// TestInMemoryRateLimiter_PerProducerTier verifies authenticated requests
// consume a per-producer bucket independent of other producers.
func TestInMemoryRateLimiter_PerProducerTier(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(newTestRateLimiterConfig())
	defer rl.Close()

	// client_A exhausts its burst of 2
	if !rl.Allow("client_A") || !rl.Allow("client_A") {
		t.Fatal("client_A should be allowed up to its burst capacity")
	}

	if rl.Allow("client_A") {
		t.Error("client_A third request should exceed burst of 2")
	}

	// client_B has an independent bucket
	if !rl.Allow("client_B") {
		t.Error("client_B should not be affected by client_A's bucket")
	}
}

// TestInMemoryRateLimiter_GlobalTier verifies the global bucket gates
// everything, including authenticated producers.
func TestInMemoryRateLimiter_GlobalTier(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := newTestRateLimiterConfig()
	cfg.GlobalRPS = 1
	cfg.GlobalBurst = 1

	rl := NewInMemoryRateLimiter(cfg)
	defer rl.Close()

	if !rl.Allow("client_A") {
		t.Fatal("first request should pass the global limit")
	}

	if rl.Allow("client_B") {
		t.Error("second request should be blocked by the global limit")
	}
}

// TestComputeBurstCapacity verifies auto-compute vs override behavior.
func TestComputeBurstCapacity(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if got := computeBurstCapacity(100, 0); got != 200 {
		t.Errorf("Expected auto-computed burst 200, got %d", got)
	}

	if got := computeBurstCapacity(100, 500); got != 500 {
		t.Errorf("Expected override burst 500, got %d", got)
	}
}

// TestInMemoryRateLimiter_Cleanup verifies idle producer limiters are removed.
func TestInMemoryRateLimiter_Cleanup(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := newTestRateLimiterConfig()
	cfg.IdleTimeout = time.Nanosecond

	rl := NewInMemoryRateLimiter(cfg)
	defer rl.Close()

	rl.Allow("client_A")

	// Let the last access fall outside the idle window, then force a cleanup.
	time.Sleep(time.Millisecond)
	rl.cleanup()

	rl.mu.RLock()
	_, exists := rl.perProducer["client_A"]
	rl.mu.RUnlock()

	if exists {
		t.Error("idle producer limiter should have been removed by cleanup")
	}
}

// TestRateLimitMiddleware_Returns429 verifies the middleware returns a
// RFC 7807 response once the limit is exceeded.
func TestRateLimitMiddleware_Returns429(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := newTestRateLimiterConfig()
	rl := NewInMemoryRateLimiter(cfg)

	defer rl.Close()

	handler := RateLimit(rl, newTestLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	// First unauthenticated request consumes the burst of 1.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected first request to pass, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/events", nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rec.Code)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("Expected problem+json content type, got %q", ct)
	}
}

// TestRateLimitMiddleware_UsesProducerContext verifies authenticated requests
// are limited per producer, not by the unauthenticated tier.
func TestRateLimitMiddleware_UsesProducerContext(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(newTestRateLimiterConfig())
	defer rl.Close()

	handler := RateLimit(rl, newTestLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	// Producer burst is 2; two authenticated requests should both pass even
	// though the unauthenticated burst is only 1.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
		ctx := SetProducerContext(req.Context(), ProducerContext{ProducerID: "client_A"})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req.WithContext(ctx))

		if rec.Code != http.StatusOK {
			t.Fatalf("authenticated request %d should pass, got %d", i+1, rec.Code)
		}
	}
}
