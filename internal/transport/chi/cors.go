package chi

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// DevOrigins are always allowed so local frontends work without config.
var DevOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:3000",
}

// AllowedOrigins returns DevOrigins plus the trimmed, non-empty extras.
func AllowedOrigins(extra []string) []string {
	out := append([]string(nil), DevOrigins...)
	for _, o := range extra {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// CORSMiddleware allows credentialed requests from origins.
func CORSMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", AdminTokenHeader},
		ExposedHeaders:   []string{"X-Request-ID", "X-Embedding-Tokens"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
