// Package middleware provides HTTP middleware components for the eventcanon API.
package middleware

import (
	"time"

	"github.com/eventcanon-io/eventcanon/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: Applied to all requests
//   - Per-producer: Applied to authenticated requests
//   - Unauthenticated: Applied to requests without producer ID
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 × rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS   int // Default: 100
	ProducerRPS int // Default: 50
	UnAuthRPS   int // Default: 10

	// Optional burst capacity overrides (0 = compute automatically as 2 × rate)
	GlobalBurst   int // Default: 0 (computed as 2 × GlobalRPS = 200)
	ProducerBurst int // Default: 0 (computed as 2 × ProducerRPS = 100)
	UnAuthBurst   int // Default: 0 (computed as 2 × UnAuthRPS = 20)

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxProducers    int           // Default: 100
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
//
// Default burst capacity: 2 × rate (allows 2-second burst)
// Default cleanup: every 5 minutes, removes producers idle >1 hour.
func LoadConfig() *Config {
	return &Config{
		// Rate limits
		GlobalRPS:   config.GetEnvInt("EVENTCANON_GLOBAL_RPS", defaultGlobalRPS),
		ProducerRPS: config.GetEnvInt("EVENTCANON_PRODUCER_RPS", defaultProducerRPS),
		UnAuthRPS:   config.GetEnvInt("EVENTCANON_UNAUTH_RPS", defaultUnAuthRPS),

		// Burst overrides (0 = auto-compute)
		GlobalBurst:   config.GetEnvInt("EVENTCANON_GLOBAL_BURST", 0),
		ProducerBurst: config.GetEnvInt("EVENTCANON_PRODUCER_BURST", 0),
		UnAuthBurst:   config.GetEnvInt("EVENTCANON_UNAUTH_BURST", 0),

		// Cleanup configuration
		CleanupInterval: config.GetEnvDuration(
			"EVENTCANON_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout:  config.GetEnvDuration("EVENTCANON_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxProducers: config.GetEnvInt("EVENTCANON_RATE_LIMIT_MAX_PRODUCERS", maxProducers),
	}
}
