package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-docrequest/internal/metrics"
	"go-docrequest/internal/pipeline"
	"go-docrequest/internal/ratelimit"
)

// KeyFunc derives the rate window scope for a request.
type KeyFunc func(r *http.Request) string

// PrincipalOrIPKey scopes authenticated callers by identity and everyone
// else by client address.
func PrincipalOrIPKey(r *http.Request) string {
	if p, ok := PrincipalFromContext(r.Context()); ok {
		return p.String()
	}

	return "ip:" + ClientIP(r)
}

// RateLimit consults the counter before calling next. Counter failures are
// logged and the request is let through.
func RateLimit(counter ratelimit.Counter, key KeyFunc, m *metrics.Registry) pipeline.HTTPInterceptor {
	if key == nil {
		key = PrincipalOrIPKey
	}

	return func(r *http.Request, next pipeline.HTTPHandler) pipeline.Response {
		scope := key(r)
		decision, err := counter.CheckAndIncrement(r.Context(), scope)
		if err != nil {
			m.IncRateLimitError()
			slog.Warn("rate window unavailable, allowing request", "scope", scope, "error", err)
			return next(r)
		}

		m.IncRateLimit(decision.Allowed)
		limit := strconv.Itoa(decision.Limit)
		remaining := strconv.Itoa(decision.Remaining)

		if !decision.Allowed {
			return reject(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests").
				WithHeader("Retry-After", strconv.Itoa(decision.RetryAfter(time.Now()))).
				WithHeader("X-RateLimit-Limit", limit).
				WithHeader("X-RateLimit-Remaining", remaining)
		}

		return next(r).
			WithHeader("X-RateLimit-Limit", limit).
			WithHeader("X-RateLimit-Remaining", remaining)
	}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginThrottle is a per client address token bucket for credential
// endpoints, separate from the write counter.
type LoginThrottle struct {
	rpm     int
	mu      sync.Mutex
	clients map[string]*clientBucket
}

func NewLoginThrottle(rpm int) *LoginThrottle {
	if rpm <= 0 {
		rpm = 10
	}

	return &LoginThrottle{rpm: rpm, clients: map[string]*clientBucket{}}
}

func (t *LoginThrottle) Interceptor() pipeline.HTTPInterceptor {
	return func(r *http.Request, next pipeline.HTTPHandler) pipeline.Response {
		if !t.bucket(ClientIP(r)).Allow() {
			return reject(http.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts").
				WithHeader("Retry-After", strconv.Itoa(int((time.Minute/time.Duration(t.rpm)).Seconds())+1))
		}

		return next(r)
	}
}

func (t *LoginThrottle) bucket(clientIP string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if existing, ok := t.clients[clientIP]; ok {
		existing.lastSeen = now
		return existing.limiter
	}

	created := &clientBucket{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(t.rpm)), t.rpm),
		lastSeen: now,
	}
	t.clients[clientIP] = created
	t.gcLocked(now)

	return created.limiter
}

func (t *LoginThrottle) gcLocked(now time.Time) {
	if len(t.clients) < 1000 {
		return
	}

	cutoff := now.Add(-10 * time.Minute)
	for ip, b := range t.clients {
		if b.lastSeen.Before(cutoff) {
			delete(t.clients, ip)
		}
	}
}

// ClientIP is the peer address. Forwarding headers only count after RealIP
// has rewritten RemoteAddr for a trusted proxy.
func ClientIP(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(remote); err == nil && host != "" {
		return host
	}
	if remote == "" {
		return "unknown"
	}

	return remote
}
