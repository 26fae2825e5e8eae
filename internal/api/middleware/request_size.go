package middleware

import (
	"net/http"
)

// MaxFormBody bounds page form submissions. The largest form, organizer
// interest, stays well under it.
const MaxFormBody int64 = 64 << 10

// LimitBody caps request bodies at maxBytes. A declared Content-Length over
// the cap is refused with 413 before the handler runs; bodies without one
// are cut off by http.MaxBytesReader and the handler sees a read error.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Connection", "close")
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
