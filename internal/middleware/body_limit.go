package middleware

import "net/http"

// DefaultMaxBodyBytes caps diagnose payloads, which carry every uploaded file.
const DefaultMaxBodyBytes = 16 << 20

// MaxBodySize limits request bodies to max bytes. Reading past the limit
// fails with *http.MaxBytesError, which handlers map to 413.
func MaxBodySize(max int64) func(http.Handler) http.Handler {
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}
