package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a client may stay silent before its limiter is dropped.
const idleAfter = 10 * time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token bucket. perMinute requests refill evenly
// across the minute; a client may burst up to perMinute at once.
type RateLimiter struct {
	perMinute int
	limit     rate.Limit
	now       func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastPrune time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests per IP.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &RateLimiter{
		perMinute: perMinute,
		limit:     rate.Limit(float64(perMinute) / 60.0),
		now:       time.Now,
		clients:   make(map[string]*client),
	}
}

// Allow consumes a token for key.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiterFor(key).AllowN(rl.now(), 1)
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastPrune) > idleAfter {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > idleAfter {
				delete(rl.clients, k)
			}
		}
		rl.lastPrune = now
	}

	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.perMinute)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// retryAfter is the wait until one token refills, rounded up to a second.
func (rl *RateLimiter) retryAfter() int {
	return int(math.Ceil(60.0 / float64(rl.perMinute)))
}

// Middleware rejects requests over the limit with 429. Clients are keyed by
// RemoteAddr, which TrustedRealIP has already resolved.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}

		if !rl.Allow(ip) {
			slog.Warn("rate limit exceeded",
				"ip", ip,
				"path", r.URL.Path,
			)
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perMinute))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded","code":"RATE001"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
