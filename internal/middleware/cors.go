package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS returns a middleware allowing the given origins. "*" allows any.
// Preflight requests are answered here and never reach the router.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-Id"},
		MaxAge:         300,
	})
}
