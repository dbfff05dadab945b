package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// CORS header values sent on every relay response.
const (
	corsAllowMethods = "GET, POST, OPTIONS"
	corsAllowHeaders = "X-Requested-With, X-HTTP-Method-Override, Content-Type, Accept, Authorization, label"
	corsMaxAge       = "86400"
)

// CORSConfig configures CORS.
type CORSConfig struct {
	// AllowedOrigins; the first entry is used when the request has no Origin.
	AllowedOrigins []string
	// Strict reflects only origins listed in AllowedOrigins. Other origins get
	// the first allowed origin instead.
	Strict bool
}

// CORS writes the relay's CORS headers on every response and answers any
// OPTIONS request with an empty 200.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	fallback := ""
	if len(cfg.AllowedOrigins) > 0 {
		fallback = cfg.AllowedOrigins[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" || (cfg.Strict && !slices.Contains(cfg.AllowedOrigins, origin)) {
				origin = fallback
			}

			h := w.Header()
			if origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", corsMaxAge)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
