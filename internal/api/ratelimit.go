package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterSweepInterval bounds how often the bucket map is scanned for
	// stale entries.
	limiterSweepInterval = 5 * time.Minute
	// limiterIdleEviction is how long an IP must stay quiet before its
	// bucket is dropped.
	limiterIdleEviction = 10 * time.Minute
)

// rateLimiter hands each client IP its own token bucket. Stale buckets are
// swept inline from allow, so there is no background goroutine to manage.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	lastSweep time.Time
}

// bucket pairs an IP's limiter with the last time it was seen.
type bucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// newRateLimiter creates a limiter refilling perSec tokens per second with
// the given burst capacity per IP.
func newRateLimiter(perSec float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:   make(map[string]*bucket),
		limit:     rate.Limit(perSec),
		burst:     burst,
		lastSweep: time.Now(),
	}
}

// allow reports whether a request from ip may proceed, consuming one token.
// An unseen IP starts with a full bucket.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastSweep) > limiterSweepInterval {
		rl.sweep(now)
	}

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[ip] = b
	}
	b.lastSeen = now
	return b.tokens.Allow()
}

// sweep drops buckets idle past the eviction threshold. Caller holds mu.
func (rl *rateLimiter) sweep(now time.Time) {
	for ip, b := range rl.buckets {
		if now.Sub(b.lastSeen) > limiterIdleEviction {
			delete(rl.buckets, ip)
		}
	}
	rl.lastSweep = now
}

// rateLimitMiddleware rejects requests from IPs that have exhausted their
// token budget with 429 and a Retry-After hint.
func rateLimitMiddleware(rl *rateLimiter, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !rl.allow(ip) {
				logger.Warn("rate limit exceeded",
					"ip", ip,
					"path", r.URL.Path,
					"method", r.Method,
				)
				w.Header().Set("Retry-After", "1")
				writeDetail(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP derives the limiter key for a request.
//
// Proxy headers are honored only when trustProxy is set: X-Real-IP first
// (single value, written by the proxy), then the first entry of
// X-Forwarded-For. Either value must parse as an IP; anything else is
// ignored so clients cannot mint arbitrary limiter keys. Without a trusted
// proxy the key is always RemoteAddr with the port stripped.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := headerIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := headerIP(first); ip != "" {
				return ip
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// headerIP returns the canonical form of a header-supplied IP, or "" when it
// does not parse.
func headerIP(raw string) string {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil {
		return ""
	}
	return ip.String()
}
