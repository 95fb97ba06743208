package delivery

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyHeader carries the shared secret on every protected request.
const APIKeyHeader = "x-api-key"

// AuthMiddleware rejects requests whose x-api-key header does not match the
// shared secret, before any pipeline logic runs.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
