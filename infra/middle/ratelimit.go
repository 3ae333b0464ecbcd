package middle

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mstgnz/kazapay/infra/logger"
	"github.com/mstgnz/kazapay/infra/metrics"
	"github.com/mstgnz/kazapay/infra/response"
)

// CounterStore increments the counter for key and returns the count inside the
// current window. A window that has elapsed starts again at 1.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
}

type visitor struct {
	count     int
	lastReset time.Time
}

// MemoryCounterStore keeps counters in process memory. Expired entries are
// swept while incrementing, so no background goroutine is needed.
type MemoryCounterStore struct {
	visitors  map[string]*visitor
	mu        sync.Mutex
	now       func() time.Time
	lastSweep time.Time
}

// NewMemoryCounterStore creates an empty in-memory store
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Increment implements CounterStore
func (s *MemoryCounterStore) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweep(now, window)

	v, exists := s.visitors[key]
	if !exists || now.Sub(v.lastReset) >= window {
		s.visitors[key] = &visitor{count: 1, lastReset: now}
		return 1, nil
	}

	v.count++
	return v.count, nil
}

// Len reports how many keys are tracked
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

func (s *MemoryCounterStore) sweep(now time.Time, window time.Duration) {
	if now.Sub(s.lastSweep) < window {
		return
	}
	s.lastSweep = now
	for key, v := range s.visitors {
		if now.Sub(v.lastReset) > window*2 {
			delete(s.visitors, key)
		}
	}
}

// RateLimiter allows at most limit requests per key inside window
type RateLimiter struct {
	store  CounterStore
	limit  int
	window time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(store CounterStore, limit int, window time.Duration) *RateLimiter {
	if store == nil {
		store = NewMemoryCounterStore()
	}
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
	}
}

// Allow checks if the request is allowed. A failing store lets the request
// through, the limiter is best-effort.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	count, err := rl.store.Increment(ctx, key, rl.window)
	if err != nil {
		logger.Warn("Rate limit store unavailable, allowing request", logger.LogContext{
			Fields: map[string]any{"key": key, "error": err.Error()},
		})
		return true
	}
	return count <= rl.limit
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(rl *RateLimiter, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(r.Context(), ClientAddress(r, trustProxy)) {
				metrics.RecordRateLimited()
				response.Error(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientAddress returns the address used as the rate limit key. Forwarding
// headers are only honoured behind a trusted proxy, otherwise any caller could
// rotate them to dodge the limit.
func ClientAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		return GetClientIP(r)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	if host == "::1" {
		return "127.0.0.1"
	}
	return host
}

// GetClientIP extracts the client IP behind a single trusted proxy. The proxy
// appends the peer it saw to X-Forwarded-For, so the rightmost valid entry is
// the one the caller cannot forge. Entries to its left are caller supplied.
func GetClientIP(r *http.Request) string {
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		if ip := net.ParseIP(strings.TrimSpace(hops[i])); ip != nil {
			return ip.String()
		}
	}

	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}

	return ClientAddress(r, false)
}
