package middleware

import (
	"net/http"
	"slices"
	"strings"
)

const (
	corsMethods = "GET, POST, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-API-Key"
)

// CORS answers preflight requests and sets CORS headers for the allowed
// origins. An empty list or a "*" entry allows every origin. Origins are
// compared case-insensitively.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	lowered := make([]string, len(allowedOrigins))
	for i, o := range allowedOrigins {
		lowered[i] = strings.ToLower(strings.TrimSpace(o))
	}
	allowAll := len(lowered) == 0 || slices.Contains(lowered, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				w.Header().Add("Vary", "Origin")
				if allowAll || slices.Contains(lowered, strings.ToLower(origin)) {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Max-Age", "86400")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
