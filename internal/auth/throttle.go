package auth

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultMaxLoginAttempts = 5
	defaultLockoutWindow    = 15 * time.Minute
)

type attemptEntry struct {
	count int
	last  time.Time
}

// LoginThrottle counts failed logins per client key. Once a key reaches the maximum it stays
// blocked until the lockout window has passed since its last failure.
//
// Entries expire from the cache one window after their last failure, which bounds memory
// without changing the blocking decision.
type LoginThrottle struct {
	mu          sync.Mutex
	entries     *cache.Cache
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewLoginThrottle creates a throttle. Non-positive arguments fall back to 5 attempts / 15 minutes.
func NewLoginThrottle(maxAttempts int, window time.Duration) *LoginThrottle {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxLoginAttempts
	}
	if window <= 0 {
		window = defaultLockoutWindow
	}
	return &LoginThrottle{
		entries:     cache.New(window, window),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

// live returns the entry for key if its window is still open. Callers hold mu.
func (t *LoginThrottle) live(key string, now time.Time) (attemptEntry, bool) {
	v, ok := t.entries.Get(key)
	if !ok {
		return attemptEntry{}, false
	}
	e := v.(attemptEntry)
	if now.Sub(e.last) >= t.window {
		return attemptEntry{}, false
	}
	return e, true
}

// RecordFailure counts a failed attempt for key and returns the new count
func (t *LoginThrottle) RecordFailure(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	e, ok := t.live(key, now)
	if !ok {
		e = attemptEntry{}
	}
	e.count++
	e.last = now
	t.entries.Set(key, e, cache.DefaultExpiration)
	return e.count
}

// IsBlocked reports whether key has used up its attempts within the lockout window
func (t *LoginThrottle) IsBlocked(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.live(key, t.now())
	return ok && e.count >= t.maxAttempts
}

// Attempts returns the failure count for key in its current window
func (t *LoginThrottle) Attempts(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, _ := t.live(key, t.now())
	return e.count
}

// Reset clears the counter for key
func (t *LoginThrottle) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Delete(key)
}
