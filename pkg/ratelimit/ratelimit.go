package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter is a simple fixed-window counter keyed by client IP
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket // per-IP buckets
	max     int                // requests per window
	per     time.Duration      // window size
	swept   time.Time          // last stale-bucket sweep
}

type bucket struct {
	ts     time.Time // window start
	tokens int       // remaining requests
}

// New creates a new IP-based limiter allowing max requests per window
func New(max int, per time.Duration) *Limiter {
	return &Limiter{buckets: map[string]*bucket{}, max: max, per: per, swept: time.Now()}
}

// Middleware enforces the rate limit before calling the next handler
func (r *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip, _, _ := net.SplitHostPort(req.RemoteAddr)

		r.mu.Lock()
		r.sweep()
		b := r.buckets[ip]
		if b == nil || time.Since(b.ts) > r.per {
			// Start a new window
			b = &bucket{ts: time.Now(), tokens: r.max}
			r.buckets[ip] = b
		}

		if b.tokens <= 0 {
			r.mu.Unlock()
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}

		b.tokens--
		r.mu.Unlock()

		next.ServeHTTP(w, req)
	})
}

// sweep drops buckets whose window ended, at most once per window.
// Callers must hold the lock.
func (r *Limiter) sweep() {
	now := time.Now()
	if now.Sub(r.swept) < r.per {
		return
	}
	r.swept = now
	for ip, b := range r.buckets {
		if now.Sub(b.ts) > r.per {
			delete(r.buckets, ip)
		}
	}
}
