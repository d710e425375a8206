package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/server/internal/metrics"
)

func newTestLimiter(t *testing.T, window time.Duration, max int) (*FailureLimiter, *time.Time) {
	t.Helper()
	l := NewFailureLimiter(window, max)
	t.Cleanup(l.Stop)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func statusHandler(status *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(*status)
	})
}

func TestFailureLimiter_CountsOnlyFailures(t *testing.T) {
	m := metrics.New()
	l, now := newTestLimiter(t, 15*time.Minute, 5)
	status := http.StatusUnauthorized
	handler := l.Middleware(GetIPKey, LimitExceeded(discardLogger, m, metrics.StageLoginLimit))(statusHandler(&status))

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newRequest(http.MethodPost, "/auth/login", ""))
		return rec
	}

	status = http.StatusOK
	for range 10 {
		require.Equal(t, http.StatusOK, serve().Code)
	}

	status = http.StatusUnauthorized
	for range 5 {
		require.Equal(t, http.StatusUnauthorized, serve().Code)
	}

	rec := serve()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests, please try again later", decodeEnvelope(t, rec).Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(metrics.StageLoginLimit)))

	// a correct password is refused too while the key is limited
	status = http.StatusOK
	assert.Equal(t, http.StatusTooManyRequests, serve().Code)

	*now = now.Add(15 * time.Minute)
	assert.Equal(t, http.StatusOK, serve().Code)
}

func TestFailureLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 1)
	status := http.StatusUnauthorized
	handler := l.Middleware(GetIPKey, LimitExceeded(discardLogger, nil, metrics.StageLoginLimit))(statusHandler(&status))

	first := newRequest(http.MethodPost, "/auth/login", "")
	first.RemoteAddr = "198.51.100.1:1000"
	second := newRequest(http.MethodPost, "/auth/login", "")
	second.RemoteAddr = "198.51.100.2:1000"

	for _, req := range []*http.Request{first, second} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestFailureLimiter_Concurrent(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 5)
	handler := l.Middleware(GetIPKey, LimitExceeded(discardLogger, nil, metrics.StageLoginLimit))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		limited int
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, newRequest(http.MethodPost, "/auth/login", ""))
			if rec.Code == http.StatusTooManyRequests {
				mu.Lock()
				limited++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 15, limited)
}

func TestRateLimitByIP(t *testing.T) {
	m := metrics.New()
	next := &okHandler{}
	handler := RateLimitByIP(2, time.Minute, discardLogger, m)(next)

	for range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, newRequest(http.MethodPost, "/auth/register", ""))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newRequest(http.MethodPost, "/auth/register", ""))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, "Too many requests, please try again later", env.Message)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(metrics.StageRateLimit)))
}
