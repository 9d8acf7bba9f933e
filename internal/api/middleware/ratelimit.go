package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGlobalRPS  = 100
	defaultCallerRPS  = 20
	burstMultiplier   = 2
	cleanupInterval   = 5 * time.Minute
	idleLimiterExpiry = time.Hour
	maxTrackedCallers = 100
)

// RateLimiter is the interface the rate-limit middleware depends on,
// allowing alternate implementations (e.g. a Redis-backed limiter) in
// deployments that run more than one API process.
type RateLimiter interface {
	Allow(callerID string) bool
}

type callerLimiter struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

// InMemoryRateLimiter enforces a global request budget plus a per-caller
// budget, keyed by the admin key id middleware.Auth stamps onto the
// request context. Unauthenticated requests share a single "anonymous"
// bucket. Idle per-caller buckets are swept periodically so the map
// doesn't grow unbounded under key rotation.
type InMemoryRateLimiter struct {
	mu        sync.Mutex
	global    *rate.Limiter
	callers   map[string]*callerLimiter
	callerRPS rate.Limit
	burst     int

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewInMemoryRateLimiter constructs a rate limiter and starts its
// background idle-bucket sweeper. Call Stop to release the goroutine.
func NewInMemoryRateLimiter(globalRPS, callerRPS int) *InMemoryRateLimiter {
	if globalRPS <= 0 {
		globalRPS = defaultGlobalRPS
	}

	if callerRPS <= 0 {
		callerRPS = defaultCallerRPS
	}

	l := &InMemoryRateLimiter{
		global:    rate.NewLimiter(rate.Limit(globalRPS), globalRPS*burstMultiplier),
		callers:   make(map[string]*callerLimiter),
		callerRPS: rate.Limit(callerRPS),
		burst:     callerRPS * burstMultiplier,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	go l.sweepLoop()

	return l
}

// Allow reports whether a request from callerID should proceed, consuming
// one token from both the global and per-caller buckets.
func (l *InMemoryRateLimiter) Allow(callerID string) bool {
	if !l.global.Allow() {
		return false
	}

	if callerID == "" {
		callerID = "anonymous"
	}

	l.mu.Lock()
	cl, ok := l.callers[callerID]
	if !ok {
		if len(l.callers) >= maxTrackedCallers {
			l.evictOldestLocked()
		}

		cl = &callerLimiter{limiter: rate.NewLimiter(l.callerRPS, l.burst)}
		l.callers[callerID] = cl
	}
	cl.lastSeenAt = time.Now()
	l.mu.Unlock()

	return cl.limiter.Allow()
}

// evictOldestLocked drops the least-recently-seen caller bucket. Callers
// must hold l.mu.
func (l *InMemoryRateLimiter) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time

	for id, cl := range l.callers {
		if oldestID == "" || cl.lastSeenAt.Before(oldestAt) {
			oldestID = id
			oldestAt = cl.lastSeenAt
		}
	}

	delete(l.callers, oldestID)
}

func (l *InMemoryRateLimiter) sweepLoop() {
	defer close(l.doneCh)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *InMemoryRateLimiter) sweep() {
	cutoff := time.Now().Add(-idleLimiterExpiry)

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, cl := range l.callers {
		if cl.lastSeenAt.Before(cutoff) {
			delete(l.callers, id)
		}
	}
}

// Close halts the background sweeper. Safe to call more than once.
// Implements io.Closer so Server.shutdown can close it generically.
func (l *InMemoryRateLimiter) Close() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
	<-l.doneCh

	return nil
}

// RateLimit creates a middleware that rejects requests exceeding the
// configured budget with 429 Too Many Requests.
func RateLimit(limiter RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerID := GetCallerID(r.Context())

			if !limiter.Allow(callerID) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"type":"https://dcsp.io/problems/429","title":"Too Many Requests","status":429,"detail":"rate limit exceeded"}`))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
