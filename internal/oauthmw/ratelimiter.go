package oauthmw

import (
	"sync"
	"time"

	"github.com/discoveryd/discoveryd/pkg/logging"
)

// attemptLimiter throttles introspection calls per client IP: a
// sliding window of timestamps per key, recorded once per attempt.
type attemptLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	attempts    map[string][]time.Time
}

func newAttemptLimiter(maxAttempts int, window time.Duration) *attemptLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{maxAttempts: maxAttempts, window: window, attempts: make(map[string][]time.Time)}
}

// allow records an attempt for key and reports whether the caller is
// still under the rate limit.
func (l *attemptLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-l.window)
	var recent []time.Time
	for _, t := range l.attempts[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.maxAttempts {
		l.attempts[key] = recent
		logging.Warn("OAuth", "rate limit exceeded for client %s (%d attempts in %v)", key, len(recent), l.window)
		return false
	}

	recent = append(recent, now)
	l.attempts[key] = recent
	return true
}
