package notify

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// userLimiter throttles push fallback per user. Idle entries are evicted
// lazily on access rather than by a background loop.
type userLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	maxAge  time.Duration
	now     func() time.Time
	lastGC  time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(perMinute int, now func() time.Time) *userLimiter {
	burst := perMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		entries: map[string]*limiterEntry{},
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		maxAge:  10 * time.Minute,
		now:     now,
	}
}

func (l *userLimiter) Allow(userID string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastGC) > l.maxAge {
		cutoff := now.Add(-l.maxAge)
		for k, e := range l.entries {
			if e.lastSeen.Before(cutoff) {
				delete(l.entries, k)
			}
		}
		l.lastGC = now
	}

	e, ok := l.entries[userID]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[userID] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *userLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
