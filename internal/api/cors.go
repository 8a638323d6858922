package api

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/middleware"
)

// CORSOptions returns the cross-origin policy for the given browser origins.
func CORSOptions(origins []string, apiKeyHeader string) cors.Options {
	if apiKeyHeader == "" {
		apiKeyHeader = auth.DefaultAPIKeyHeader
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", apiKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders: []string{
			middleware.RequestIDHeader,
			"WWW-Authenticate",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// WithCORS wraps handler with the CORS policy. No origins leaves handler untouched.
func WithCORS(handler http.Handler, origins []string, apiKeyHeader string) http.Handler {
	if len(origins) == 0 {
		return handler
	}
	return cors.Handler(CORSOptions(origins, apiKeyHeader))(handler)
}
