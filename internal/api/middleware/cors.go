package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig provides CORS settings to the middleware without importing the
// api package. The concrete type lives in internal/api/config.go.
type CORSConfig interface {
	GetAllowedOrigins() []string
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
	GetMaxAge() int
}

// CORS applies Cross-Origin Resource Sharing headers and short-circuits
// OPTIONS preflight requests with 204.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applyCORSHeaders(w, r, config)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func applyCORSHeaders(w http.ResponseWriter, r *http.Request, config CORSConfig) {
	header := w.Header()

	if origin := resolveAllowedOrigin(r, config.GetAllowedOrigins()); origin != "" {
		header.Set("Access-Control-Allow-Origin", origin)
	}

	if methods := config.GetAllowedMethods(); len(methods) > 0 {
		header.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	}

	if headers := config.GetAllowedHeaders(); len(headers) > 0 {
		header.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))
	}

	if maxAge := config.GetMaxAge(); maxAge > 0 {
		header.Set("Access-Control-Max-Age", strconv.Itoa(maxAge))
	}
}

// resolveAllowedOrigin returns the Allow-Origin value for this request:
// "*" when the wildcard is configured, the request's own Origin when it is
// on the allow list, and "" otherwise.
func resolveAllowedOrigin(r *http.Request, allowedOrigins []string) string {
	if len(allowedOrigins) == 0 {
		return ""
	}

	if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
		return "*"
	}

	origin := r.Header.Get("Origin")
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return origin
		}
	}

	return ""
}
