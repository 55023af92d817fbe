package httpmw

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS answers preflight requests and decorates responses for the given
// origins. It returns nil when origins is empty so Chain skips it.
// apiKeyHeader is added to the allowed request headers.
func CORS(origins []string, apiKeyHeader string) Middleware {
	if len(origins) == 0 {
		return nil
	}
	allowed := []string{"Accept", "Content-Type", "X-Request-Id"}
	if apiKeyHeader != "" {
		allowed = append(allowed, apiKeyHeader)
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		AllowedHeaders:   allowed,
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	})
}
