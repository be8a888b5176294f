// Package middleware provides HTTP middleware components for the eventcanon API.
package middleware

import (
	"context"
	"time"
)

// producerContextKey is the context key for authenticated producer information.
// Using a struct type ensures type safety and prevents collisions with other context keys.
type producerContextKey struct{}

// ProducerContext contains authenticated producer information enriched in the
// request context. It is added by the authentication middleware after
// successful API key validation.
type ProducerContext struct {
	// ProducerID is the unique identifier for the producer (e.g., "client_A")
	ProducerID string

	// Name is the human-readable producer name for logging and display
	Name string

	// Permissions are the authorization scopes granted to this producer
	Permissions []string

	// KeyID is the API key ID used for authentication (for audit logging)
	KeyID string

	// AuthTime is the timestamp when authentication occurred (for latency tracking)
	AuthTime time.Time
}

// GetProducerContext extracts producer context from the request context.
// Returns (context, true) if authenticated, (empty, false) if not found.
//
// Example usage:
//
//	producerCtx, authenticated := middleware.GetProducerContext(r.Context())
//	if !authenticated {
//	    // Handle unauthenticated request
//	    return
//	}
func GetProducerContext(ctx context.Context) (ProducerContext, bool) {
	producerCtx, ok := ctx.Value(producerContextKey{}).(ProducerContext)

	return producerCtx, ok
}

// SetProducerContext adds producer context to the request context.
// Returns a new context with the producer context attached.
//
// This function is used by the authentication middleware to enrich the
// request context after successful API key validation.
func SetProducerContext(ctx context.Context, producerCtx ProducerContext) context.Context {
	return context.WithValue(ctx, producerContextKey{}, producerCtx)
}
