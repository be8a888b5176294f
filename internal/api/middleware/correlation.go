// Package middleware provides HTTP middleware components for the eventcanon API.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"net/http"
	"time"
)

// correlationIDSize is the number of random bytes per generated ID (16 hex chars).
const correlationIDSize = 8

// correlationIDKey is the context key for the request correlation ID.
type correlationIDKey struct{}

// CorrelationID attaches a correlation ID to every request. A caller-supplied
// X-Correlation-ID header is honored so IDs survive across service hops;
// otherwise a fresh one is generated. The ID is echoed on the response and
// stored in the request context for handlers and downstream middleware.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Correlation-ID")
			if id == "" {
				id = generateCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", id)

			ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetCorrelationID extracts the correlation ID from the request context,
// returning "unknown" when no middleware has set one.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return id
	}

	return "unknown"
}

// generateCorrelationID returns 16 hex characters from crypto/rand, falling
// back to the current timestamp if the random source is unavailable.
func generateCorrelationID() string {
	buf := make([]byte, correlationIDSize)
	if _, err := rand.Read(buf); err != nil {
		binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano())) // #nosec G115
	}

	return hex.EncodeToString(buf)
}
