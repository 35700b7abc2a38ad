package auth

import (
	"crypto/subtle"
	"net/http"
)

// APIKeyMiddleware returns HTTP middleware that enforces API key
// authentication on every request it wraps.
//
// Behaviour:
//   - If mode != "apikey", all requests are allowed (pass-through).
//   - Otherwise the value of header is compared to key in constant time.
//   - An empty key rejects everything, so a missing secret never opens
//     the endpoint.
//   - A missing or incorrect key returns 401 with a JSON error body.
func APIKeyMiddleware(mode, header, key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if mode != "apikey" {
			return next
		}
		want := []byte(key)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(header))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `APIKey header="`+header+`"`)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid api key"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
