package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vaultchain/observability"
)

// RateLimit bounds the request rate of a single client.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	limit    RateLimit
	mu       sync.Mutex
	visitors map[string]*rateEntry
	idleTTL  time.Duration
	clockNow func() time.Time
}

func NewRateLimiter(limit RateLimit) *RateLimiter {
	return &RateLimiter{
		limit:    limit,
		visitors: make(map[string]*rateEntry),
		idleTTL:  5 * time.Minute,
		clockNow: time.Now,
	}
}

// Middleware rejects requests over the client's budget with 429.
func (r *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if r.limit.RequestsPerMinute <= 0 {
			next.ServeHTTP(w, req)
			return
		}
		if !r.allow(clientID(req)) {
			observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
			writeError(w, http.StatusTooManyRequests, "RateLimited", http.StatusText(http.StatusTooManyRequests))
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (r *RateLimiter) allow(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	r.sweep(now)
	entry, ok := r.visitors[id]
	if !ok {
		perSecond := r.limit.RequestsPerMinute / 60.0
		burst := r.limit.Burst
		if burst <= 0 {
			burst = 1
		}
		entry = &rateEntry{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
		r.visitors[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// sweep drops idle clients. Callers hold r.mu.
func (r *RateLimiter) sweep(now time.Time) {
	for id, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > r.idleTTL {
			delete(r.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
			return parsed.String()
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
