package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-identity-service/internal/http/response"
	"go-identity-service/internal/observability"
	"go-identity-service/internal/security"
)

// RateLimitPolicy combines a burst token bucket with a sustained
// sliding-window cap. Zero values are normalized to safe defaults.
type RateLimitPolicy struct {
	SustainedLimit    int
	SustainedWindow   time.Duration
	BurstCapacity     int
	BurstRefillPerSec float64
}

// Decision is a limiter's verdict for one request.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error)
}

// FailureMode picks what happens when the limiter backend errors: auth
// endpoints fail closed, general API traffic fails open.
type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

func normalizePolicy(p RateLimitPolicy) RateLimitPolicy {
	if p.SustainedLimit <= 0 {
		p.SustainedLimit = 60
	}
	if p.SustainedWindow <= 0 {
		p.SustainedWindow = time.Minute
	}
	if p.BurstCapacity <= 0 {
		p.BurstCapacity = p.SustainedLimit
	}
	if p.BurstRefillPerSec <= 0 {
		p.BurstRefillPerSec = float64(p.SustainedLimit) / p.SustainedWindow.Seconds()
	}
	return p
}

// localTokenBucketLimiter keeps one rate.Limiter per key. It is the
// single-instance fallback when no Redis client is configured.
type localTokenBucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	cleanup time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalTokenBucketLimiter() Limiter {
	return &localTokenBucketLimiter{
		buckets: make(map[string]*localBucket),
		cleanup: time.Now().Add(time.Minute),
	}
}

func (l *localTokenBucketLimiter) Allow(_ context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = normalizePolicy(policy)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > 2*policy.SustainedWindow {
				delete(l.buckets, k)
			}
		}
		l.cleanup = now.Add(policy.SustainedWindow)
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(rate.Limit(policy.BurstRefillPerSec), policy.BurstCapacity)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if !b.limiter.Allow() {
		reservation := b.limiter.Reserve()
		retryAfter := reservation.Delay()
		reservation.Cancel()
		if retryAfter <= 0 {
			retryAfter = time.Second
		}
		return Decision{RetryAfter: retryAfter, ResetAt: now.Add(retryAfter)}, nil
	}
	return Decision{
		Allowed:   true,
		Remaining: int(b.limiter.Tokens()),
		ResetAt:   now.Add(policy.SustainedWindow),
	}, nil
}

// RateLimiter is the HTTP middleware wrapping a Limiter.
type RateLimiter struct {
	limiter Limiter
	policy  RateLimitPolicy
	mode    FailureMode
	scope   string
	keyFunc func(r *http.Request) string
	bypass  BypassEvaluator
	logger  *slog.Logger
}

func NewRateLimiter(limiter Limiter, policy RateLimitPolicy, mode FailureMode, scope string, keyFunc func(r *http.Request) string, bypass BypassEvaluator, logger *slog.Logger) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	if keyFunc == nil {
		keyFunc = clientIPKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		limiter: limiter,
		policy:  normalizePolicy(policy),
		mode:    mode,
		scope:   scope,
		keyFunc: keyFunc,
		bypass:  bypass,
		logger:  logger,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.bypass != nil {
				if ok, _ := rl.bypass(r); ok {
					next.ServeHTTP(w, r)
					return
				}
			}

			key := rl.keyFunc(r)
			if key == "" {
				key = clientIPKey(r)
			}

			decision, err := rl.limiter.Allow(r.Context(), rl.scope+":"+key, rl.policy)
			if err != nil {
				if rl.mode == FailOpen {
					rl.logger.Warn("rate limiter backend unavailable, allowing request",
						"scope", rl.scope,
						"error", err.Error(),
					)
					next.ServeHTTP(w, r)
					return
				}
				rl.reject(w, r, rl.policy.SustainedWindow)
				return
			}
			if !decision.Allowed {
				rl.reject(w, r, decision.RetryAfter)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	observability.RecordRateLimitRejection(rl.scope)
	w.Header().Set("Retry-After", retryAfterHeader(retryAfter))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

// SessionOrIPKeyFunc keys authenticated traffic by session id so one
// user behind a NAT cannot starve their neighbors, and falls back to
// the client IP for anonymous requests. The token is only decoded, not
// validated: a forged id still yields a stable key.
func SessionOrIPKeyFunc(cookieName string) func(r *http.Request) string {
	return func(r *http.Request) string {
		raw := security.GetCookie(r, cookieName)
		if raw == "" {
			raw = bearerToken(r)
		}
		if raw == "" {
			return clientIPKey(r)
		}
		id, _, ok := security.DecodeToken(raw)
		if !ok {
			return clientIPKey(r)
		}
		return "sess:" + id
	}
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func clientIPKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func retryAfterHeader(d time.Duration) string {
	seconds := int(d.Round(time.Second).Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}
