package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware requires a matching bearer token on every request. The
// comparison is constant-time.
func AuthMiddleware(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}
			presented := strings.TrimPrefix(header, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				http.Error(w, "Invalid bearer token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
