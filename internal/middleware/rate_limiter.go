package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kanojo/studio/internal/logging"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter controls how frequently a caller may perform an action.
type RateLimiter interface {
	Allow(key string) bool
}

// IPRateLimiter tracks request rates per key (typically scope plus client
// IP) and forgets keys that stay idle longer than its ttl.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	ttl      time.Duration
	now      func() time.Time
}

// NewIPRateLimiter allows up to requests events per window per key, plus burst.
func NewIPRateLimiter(requests int, window time.Duration, burst int, ttl time.Duration) *IPRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Second
	}
	if burst <= 0 {
		burst = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(window / time.Duration(requests)),
		burst:    burst,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Allow reports whether key may proceed now and consumes a token if so.
func (l *IPRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	v := l.visitorLocked(key, now)
	l.gcLocked(now)
	l.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Len reports how many keys are tracked.
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *IPRateLimiter) visitorLocked(key string, now time.Time) *visitor {
	if v, ok := l.visitors[key]; ok {
		v.lastSeen = now
		return v
	}

	v := &visitor{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.visitors[key] = v
	return v
}

func (l *IPRateLimiter) gcLocked(now time.Time) {
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.ttl {
			delete(l.visitors, key)
		}
	}
}

// WithNowFunc allows tests to override the time source.
func (l *IPRateLimiter) WithNowFunc(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Limit rejects requests over the limiter's budget with 429. Keys are the
// scope joined with the client IP as resolved through proxies, so scopes do
// not share budgets.
func Limit(limiter RateLimiter, scope string, proxies TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := proxies.ClientIP(r)
			if limiter == nil || limiter.Allow(RateLimitKey(ip, scope)) {
				next.ServeHTTP(w, r)
				return
			}

			logging.FromContext(r.Context()).Warn("rate limit exceeded", "scope", scope, "client_ip", ip)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
		})
	}
}

// RateLimitKey builds the limiter key for a client IP within scope.
func RateLimitKey(ip, scope string) string {
	if scope == "" {
		return ip
	}
	return fmt.Sprintf("%s:%s", scope, ip)
}
