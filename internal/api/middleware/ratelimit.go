// Package middleware provides HTTP middleware components for the eventcanon API.
package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    int     = 2
	maxProducers               int     = 100
	defaultGlobalRPS           int     = 100
	defaultProducerRPS         int     = 50
	defaultUnAuthRPS           int     = 10
	thresholdMultiplier        float64 = 0.8
	thresholdPercentage        int     = 80
	rateLimiterCleanupInterval         = 5 * time.Minute
	rateLimiterIdleTimeout             = 1 * time.Hour
)

type (
	// RateLimiter provides rate limiting for incoming requests.
	//
	// Implementations may use in-memory token buckets (single-node deployment)
	// or distributed stores like Redis (multi-node deployment).
	RateLimiter interface {
		// Allow checks if a request should be allowed based on rate limits.
		// Returns true if allowed, false if rate limited.
		//
		// For authenticated requests, producerID identifies the producer.
		// For unauthenticated requests, producerID is empty string.
		Allow(producerID string) bool
	}

	// InMemoryRateLimiter implements RateLimiter using golang.org/x/time/rate.
	//
	// Provides three-tier rate limiting:
	// 1. Global limit (applied to all requests)
	// 2. Per-producer limit (applied to authenticated requests)
	// 3. Unauthenticated limit (applied to requests without producer ID)
	//
	// Uses token bucket algorithm with configurable burst capacity.
	// Burst capacity allows temporary bursts above the sustained rate.
	//
	// Memory cleanup runs periodically to prevent unbounded growth.
	// Producers idle longer than IdleTimeout are removed.
	InMemoryRateLimiter struct {
		global          *rate.Limiter
		perProducer     map[string]*producerLimiter
		unauthenticated *rate.Limiter
		mu              sync.RWMutex
		cleanupTicker   *time.Ticker
		done            chan struct{}

		// Configuration (stored for creating new producer limiters and cleanup)
		producerRPS     int
		producerBurst   int
		cleanupInterval time.Duration
		idleTimeout     time.Duration
		maxProducers    int
	}

	// producerLimiter tracks rate limit state for a single producer.
	// Includes last access time for memory cleanup.
	producerLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a new in-memory rate limiter with three-tier limits.
//
// Burst capacity is computed automatically as 2 × rate unless overridden in config.
// Cleanup runs periodically to prevent unbounded memory growth.
//
// Example:
//
//	rl := NewInMemoryRateLimiter(&Config{
//	    GlobalRPS:   100,
//	    ProducerRPS: 50,
//	    UnAuthRPS:   10,
//	})
//	defer rl.Close()
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	globalBurst := computeBurstCapacity(config.GlobalRPS, config.GlobalBurst)
	producerBurst := computeBurstCapacity(config.ProducerRPS, config.ProducerBurst)
	unauthBurst := computeBurstCapacity(config.UnAuthRPS, config.UnAuthBurst)

	rl := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(config.GlobalRPS), globalBurst),
		perProducer:     make(map[string]*producerLimiter),
		unauthenticated: rate.NewLimiter(rate.Limit(config.UnAuthRPS), unauthBurst),
		done:            make(chan struct{}),
		producerRPS:     config.ProducerRPS,
		producerBurst:   producerBurst,
		cleanupInterval: config.CleanupInterval,
		idleTimeout:     config.IdleTimeout,
		maxProducers:    config.MaxProducers,
	}

	// Start background cleanup goroutine
	rl.startCleanup()

	return rl
}

// computeBurstCapacity computes the burst capacity based on the rate and optional override.
//
// If burstOverride is 0, computes burst automatically as 2 × rate.
// If burstOverride > 0, uses the override value.
func computeBurstCapacity(rate, burstOverride int) int {
	if burstOverride > 0 {
		return burstOverride
	}

	return rate * burstCapacityMultiplier
}

// Allow checks if a request should be allowed based on rate limits.
// Implements the RateLimiter interface.
//
// Rate limiting is enforced in three tiers:
// 1. Global limit (all requests)
// 2. Per-producer limit (authenticated) OR unauthenticated limit
//
// Parameters:
//   - producerID: empty string for unauthenticated requests, producer ID otherwise
func (rl *InMemoryRateLimiter) Allow(producerID string) bool {
	// Tier 1: Check global limit first (fail fast)
	if !rl.global.Allow() {
		return false
	}

	// Tier 2: Check producer-specific or unauthenticated limit
	if producerID == "" {
		return rl.unauthenticated.Allow()
	}

	rl.mu.RLock()
	pl, ok := rl.perProducer[producerID]
	rl.mu.RUnlock()

	if !ok {
		// Lazy initialization: create limiter for this producer
		rl.mu.Lock()
		// Double-check after acquiring write lock (avoid race)
		if pl, ok = rl.perProducer[producerID]; !ok {
			pl = &producerLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.producerRPS), rl.producerBurst),
				lastAccess: time.Now(),
			}

			rl.perProducer[producerID] = pl

			// Operational monitoring: warn when approaching max producers limit
			currentCount := len(rl.perProducer)
			threshold := int(float64(rl.maxProducers) * thresholdMultiplier)

			if currentCount >= threshold {
				slog.Warn("rate limiter approaching max producers limit",
					"current_producers", currentCount,
					"max_producers", rl.maxProducers,
					"threshold_percent", thresholdPercentage,
					"recommendation", "investigate producer ID proliferation or increase max_producers limit")
			}
		}

		rl.mu.Unlock()
	}

	// Update last access time (for cleanup)
	pl.mu.Lock()
	pl.lastAccess = time.Now()
	pl.mu.Unlock()

	return pl.limiter.Allow()
}

// Close stops the cleanup goroutine and releases resources.
// Must be called when the InMemoryRateLimiter is no longer needed.
//
// Note: Close() is not part of the RateLimiter interface to allow
// implementations that don't require cleanup. Use type assertion if
// cleanup is needed:
//
//	if closer, ok := limiter.(io.Closer); ok {
//	    closer.Close()
//	}
func (rl *InMemoryRateLimiter) Close() error {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)

	return nil
}

// startCleanup starts a background goroutine that periodically removes
// stale producer limiters to prevent memory leaks.
func (rl *InMemoryRateLimiter) startCleanup() {
	cleanupInterval := rl.cleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = rateLimiterCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup removes producer limiters that haven't been accessed recently.
func (rl *InMemoryRateLimiter) cleanup() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for producerID, pl := range rl.perProducer {
		pl.mu.Lock()
		lastAccess := pl.lastAccess
		pl.mu.Unlock()

		if now.Sub(lastAccess) > idleTimeout {
			delete(rl.perProducer, producerID)
		}
	}
}

// RateLimit returns a middleware that enforces rate limits on incoming requests.
//
// Rate limiting is applied in three tiers:
//  1. Global limit (all requests)
//  2. Per-producer limit (authenticated requests with ProducerContext)
//  3. Unauthenticated limit (requests without ProducerContext)
//
// When a request exceeds the rate limit, the middleware returns a 429
// (Too Many Requests) response with RFC 7807 error format.
//
// The middleware must be placed after authentication middleware in the chain
// to access ProducerContext for per-producer rate limiting.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract producer ID from context (set by authentication middleware).
			// Empty string selects the unauthenticated tier.
			producerID := ""
			if producerCtx, ok := GetProducerContext(r.Context()); ok {
				producerID = producerCtx.ProducerID
			}

			if !limiter.Allow(producerID) {
				correlationID := GetCorrelationID(r.Context())

				detail := "Rate limit exceeded. Please retry after some time."
				if err := writeRFC7807Error(w, r, http.StatusTooManyRequests, detail, correlationID); err != nil {
					logger.Error("failed to write response with RFC 7807 error format",
						slog.String("correlation_id", correlationID),
						slog.String("path", r.URL.Path),
						slog.String("detail", detail),
						slog.String("error", err.Error()),
					)

					// Fallback to plain text if writeRFC7807Error fails
					http.Error(w, detail, http.StatusTooManyRequests)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
