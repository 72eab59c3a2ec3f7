package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/clinic-ops-platform/pkg/logging"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per IP with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow spends one token from ip's bucket.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Evict drops clients idle for longer than maxIdle and reports how many.
func (rl *RateLimiter) Evict(maxIdle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-maxIdle)
	n := 0
	for ip, c := range rl.clients {
		if c.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
			n++
		}
	}
	return n
}

// RunEviction evicts idle clients every five minutes until ctx is done.
func (rl *RateLimiter) RunEviction(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Evict(10 * time.Minute)
		}
	}
}

// RateLimit rejects requests over the per-IP budget with 429. It reads
// X-Real-Ip, which chi's RealIP middleware fills in.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.Header.Get("X-Real-Ip")
			if ip == "" {
				ip = r.RemoteAddr
			}
			if !limiter.Allow(ip) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteLimiter caps booking writes per clinic in a fixed Redis window so
// every API replica shares one counter.
type WriteLimiter struct {
	redis  *redis.Client
	max    int
	window time.Duration
	logger *logging.Logger
}

// NewWriteLimiter returns nil when redis is not configured or max is not positive.
func NewWriteLimiter(client *redis.Client, max int, window time.Duration, logger *logging.Logger) *WriteLimiter {
	if client == nil || max <= 0 {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WriteLimiter{redis: client, max: max, window: window, logger: logger}
}

// Allow counts one write for orgID. Redis failures fail open.
func (l *WriteLimiter) Allow(ctx context.Context, orgID string) (bool, error) {
	if l == nil {
		return true, nil
	}
	key := fmt.Sprintf("ratelimit:writes:%s", strings.TrimSpace(orgID))
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, fmt.Errorf("ratelimit: incr: %w", err)
	}
	if count == 1 {
		l.redis.Expire(ctx, key, l.window)
	}
	return count <= int64(l.max), nil
}

// LimitWrites applies the limiter to non-GET requests carrying X-Org-Id.
func LimitWrites(l *WriteLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := strings.TrimSpace(r.Header.Get("X-Org-Id"))
			if l == nil || orgID == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			ok, err := l.Allow(r.Context(), orgID)
			if err != nil {
				l.logger.Error("write limiter unavailable", "org_id", orgID, "error", err)
			}
			if !ok {
				l.logger.Warn("clinic write rate exceeded", "org_id", orgID, "max", l.max)
				http.Error(w, `{"error": "too many booking writes, retry shortly"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
