package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Recovery converts handler panics into a logged 500 problem response so a
// single bad request cannot take the server down.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					correlationID := GetCorrelationID(r.Context())

					logger.Error("HTTP request panic recovered",
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
						slog.String("correlation_id", correlationID),
						slog.Any("panic", rec),
						slog.String("stack_trace", string(debug.Stack())),
					)

					err := writeRFC7807Error(w, r, http.StatusInternalServerError,
						"An unexpected error occurred while processing the request", correlationID)
					if err != nil {
						logger.Error("Failed to encode panic response",
							slog.Any("error", err),
							slog.String("correlation_id", correlationID),
						)
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
