package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/respond"
)

const msgTooManyRequests = "Too many requests, please try again later"

// FailureLimiter is an in-memory sliding window limiter that only counts
// requests answered with an error status (>= 400).
type FailureLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	window   time.Duration
	maxReqs  int
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

// NewFailureLimiter creates a new limiter and starts its cleanup goroutine
func NewFailureLimiter(window time.Duration, maxReqs int) *FailureLimiter {
	l := &FailureLimiter{
		requests: make(map[string][]time.Time),
		window:   window,
		maxReqs:  maxReqs,
		now:      time.Now,
		done:     make(chan struct{}),
	}

	go l.cleanup(time.Hour)

	return l
}

// Stop ends the cleanup goroutine
func (l *FailureLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// acquire reserves a slot for key. The returned stamp identifies the slot for release.
func (l *FailureLimiter) acquire(key string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	filtered := l.live(key, now.Add(-l.window))
	if len(filtered) >= l.maxReqs {
		l.requests[key] = filtered
		return time.Time{}, false
	}

	l.requests[key] = append(filtered, now)
	return now, true
}

// release gives back a slot taken by acquire
func (l *FailureLimiter) release(key string, stamp time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reqs := l.requests[key]
	for i := len(reqs) - 1; i >= 0; i-- {
		if reqs[i].Equal(stamp) {
			l.requests[key] = append(reqs[:i], reqs[i+1:]...)
			break
		}
	}
	if len(l.requests[key]) == 0 {
		delete(l.requests, key)
	}
}

func (l *FailureLimiter) live(key string, cutoff time.Time) []time.Time {
	reqs := l.requests[key]
	filtered := make([]time.Time, 0, len(reqs)+1)
	for _, t := range reqs {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// cleanup periodically removes expired entries
func (l *FailureLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			cutoff := l.now().Add(-l.window)
			for key := range l.requests {
				if filtered := l.live(key, cutoff); len(filtered) == 0 {
					delete(l.requests, key)
				} else {
					l.requests[key] = filtered
				}
			}
			l.mu.Unlock()
		}
	}
}

// Middleware limits failed requests per key. A request that ends with a
// status below 400 does not consume the budget.
func (l *FailureLimiter) Middleware(keyFunc func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			stamp, ok := l.acquire(key)
			if !ok {
				onLimit(w, r)
				return
			}

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < http.StatusBadRequest {
				l.release(key, stamp)
			}
		})
	}
}

// GetIPKey extracts the client IP for rate limiting
func GetIPKey(r *http.Request) string {
	return "ip:" + ClientIP(r)
}

// LimitExceeded writes the 429 envelope and logs the offending client
func LimitExceeded(logger *slog.Logger, m *metrics.Metrics, stage string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.Reject(stage)
		logger.WarnContext(r.Context(), "rate limit exceeded",
			"stage", stage, "ip", ClientIP(r), "path", r.URL.Path, "user_agent", r.UserAgent())
		respond.Fail(w, http.StatusTooManyRequests, msgTooManyRequests)
	}
}

// RateLimitByIP counts every request per client IP in a sliding window
func RateLimitByIP(max int, window time.Duration, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return httprate.Limit(max, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(LimitExceeded(logger, m, metrics.StageRateLimit)),
	)
}
