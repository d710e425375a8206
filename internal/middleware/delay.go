package middleware

import (
	"math/rand/v2"
	"net/http"
	"time"
)

// RandomDelay waits a uniformly random duration in [min, max] before calling
// next. A cancelled request stops waiting and is not forwarded.
func RandomDelay(min, max time.Duration) func(http.Handler) http.Handler {
	if max < min {
		min, max = max, min
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := min
			if span := max - min; span > 0 {
				d += time.Duration(rand.Int64N(int64(span) + 1))
			}
			if d > 0 {
				timer := time.NewTimer(d)
				select {
				case <-r.Context().Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
