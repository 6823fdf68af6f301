package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter is a simple token bucket keyed by client IP
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket // per-IP buckets
	max     int                // tokens per window
	per     time.Duration      // window size
	sweepAt time.Time          // next stale-bucket sweep
}

type bucket struct {
	ts     time.Time // window start
	tokens int       // remaining tokens
}

// New creates a new IP-based limiter allowing max requests per window
func New(max int, per time.Duration) *Limiter {
	return &Limiter{
		buckets: map[string]*bucket{},
		max:     max,
		per:     per,
		sweepAt: time.Now().Add(10 * per),
	}
}

// Middleware enforces the rate limit before calling the next handler
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip, _, _ := net.SplitHostPort(req.RemoteAddr)

		l.mu.Lock()
		l.sweepLocked()
		b := l.buckets[ip]
		if b == nil || time.Since(b.ts) > l.per {
			// Start a new window
			b = &bucket{ts: time.Now(), tokens: l.max}
			l.buckets[ip] = b
		}

		if b.tokens <= 0 {
			l.mu.Unlock()
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}

		b.tokens--
		l.mu.Unlock()

		next.ServeHTTP(w, req)
	})
}

// sweepLocked drops buckets whose window ended long ago so the map does not
// grow with every IP ever seen. Caller holds the mutex.
func (l *Limiter) sweepLocked() {
	now := time.Now()
	if now.Before(l.sweepAt) {
		return
	}
	for ip, b := range l.buckets {
		if now.Sub(b.ts) > 2*l.per {
			delete(l.buckets, ip)
		}
	}
	l.sweepAt = now.Add(10 * l.per)
}
