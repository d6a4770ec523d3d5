package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per key (usually a client IP).
// Each bucket refills Attempts tokens per Window and holds at most Attempts.
type KeyedLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*entry
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	nowTime   func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed bool
	// Limit is the bucket size
	Limit int
	// Remaining is the number of whole tokens left after this call
	Remaining int
	// RetryAfter is how long until the next request would be allowed
	RetryAfter time.Duration
}

type LimiterOption func(*KeyedLimiter)

// WithLimiterClock overrides the limiter's clock
func WithLimiterClock(nowTime func() time.Time) LimiterOption {
	return func(l *KeyedLimiter) {
		l.nowTime = nowTime
	}
}

// NewKeyedLimiter allows attempts requests per window for each key. Buckets
// idle for longer than ttl are dropped; a zero ttl keeps them for one window.
func NewKeyedLimiter(attempts int, window, ttl time.Duration, opts ...LimiterOption) *KeyedLimiter {
	if attempts < 1 {
		attempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	if ttl <= 0 {
		ttl = window
	}
	l := &KeyedLimiter{
		limiters: make(map[string]*entry),
		limit:    rate.Every(window / time.Duration(attempts)),
		burst:    attempts,
		ttl:      ttl,
		nowTime:  time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.nowTime()
	return l
}

// Allow takes one token from key's bucket if one is available
func (l *KeyedLimiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowTime()
	l.sweep(now)

	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now

	d := Decision{Limit: l.burst}
	res := e.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		d.RetryAfter = delay
		return d
	}
	d.Allowed = true
	d.Remaining = int(math.Max(0, math.Floor(e.limiter.TokensAt(now))))
	return d
}

// Len returns the number of tracked keys
func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// sweep drops idle buckets at most once per ttl. Caller holds mu.
func (l *KeyedLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.ttl {
		return
	}
	l.lastSweep = now
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.ttl {
			delete(l.limiters, key)
		}
	}
}
