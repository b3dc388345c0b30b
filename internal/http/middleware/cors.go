package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Content-Type, Authorization"
	corsAllowedMethods = "GET, POST, OPTIONS"
)

// CORS allows a single site origin. The origin header is sent on every
// response so browsers on the site can read results; credentials are never
// allowed. OPTIONS requests are answered here with 204.
func CORS(origin string) func(http.Handler) http.Handler {
	origin = strings.TrimRight(strings.TrimSpace(origin), "/")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				h.Set("Access-Control-Allow-Methods", corsAllowedMethods)
				h.Set("Access-Control-Max-Age", "600")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Content-Length", "0")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
