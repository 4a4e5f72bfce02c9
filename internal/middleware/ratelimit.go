package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RealIP is the host part of the connection's address. Forwarding headers
// only count once TrustProxy has rewritten RemoteAddr.
func RealIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// forwardedIP is the first X-Forwarded-For hop, then X-Real-IP.
func forwardedIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return strings.TrimSpace(r.Header.Get("X-Real-IP"))
}

// TrustProxy replaces RemoteAddr with the client address a reverse proxy
// reports. Install it only when every request arrives through that proxy:
// otherwise clients choose their own address.
func TrustProxy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := forwardedIP(r); ip != "" {
			r.RemoteAddr = net.JoinHostPort(ip, "0")
		}
		next.ServeHTTP(w, r)
	})
}

// ClientRoute keys a request by client IP and path, so each sign-in endpoint
// has its own budget.
func ClientRoute(r *http.Request) string {
	return RealIP(r) + " " + r.URL.Path
}

// Limit allows Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

type window struct {
	count int
	ends  time.Time
}

// RateLimiter counts requests per key in fixed windows. Windows stay in
// memory until Cleanup drops the finished ones.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow counts one request for key. When the limit is spent it returns false
// and the time left until the window ends.
func (rl *RateLimiter) Allow(key string, limit Limit) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.ends) {
		rl.windows[key] = &window{count: 1, ends: now.Add(limit.Window)}
		return true, 0
	}
	if w.count >= limit.Requests {
		return false, w.ends.Sub(now)
	}
	w.count++
	return true, 0
}

// Cleanup drops finished windows.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, w := range rl.windows {
		if !now.Before(w.ends) {
			delete(rl.windows, key)
		}
	}
}

// Len returns the number of tracked windows.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.windows)
}

// RateLimit answers 429 with Retry-After once a key spends its limit.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.Allow(keyFunc(r), limit)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeMessage(w, http.StatusTooManyRequests, "too many requests, try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
