package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sandeepkv93/social-realtime-backend/internal/fingerprint"
	"github.com/sandeepkv93/social-realtime-backend/internal/http/response"
	"github.com/sandeepkv93/social-realtime-backend/internal/observability"
)

type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Remaining  int
	ResetAt    time.Time
}

type RateLimitPolicy struct {
	Limit  int
	Window time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, policy RateLimitPolicy) (Decision, error)
}

type FailureMode string

const (
	FailOpen   FailureMode = "fail_open"
	FailClosed FailureMode = "fail_closed"
)

type RateLimiter struct {
	limiter Limiter
	policy  RateLimitPolicy
	mode    FailureMode
	scope   string
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewDistributedRateLimiter(NewLocalWindowLimiter(), limit, window, FailClosed, "local")
}

// NewDistributedRateLimiter applies policy per client address. The mode
// decides what happens when the shared backend cannot answer.
func NewDistributedRateLimiter(limiter Limiter, limit int, window time.Duration, mode FailureMode, scope string) *RateLimiter {
	if scope == "" {
		scope = "api"
	}
	return &RateLimiter{
		limiter: limiter,
		policy:  normalizePolicy(RateLimitPolicy{Limit: limit, Window: window}),
		mode:    mode,
		scope:   scope,
	}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.admit(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// admit reports whether the request may proceed. A rejected request has
// already been answered with 429.
func (rl *RateLimiter) admit(w http.ResponseWriter, r *http.Request) bool {
	ctx := r.Context()
	decision, err := rl.limiter.Allow(ctx, rl.scope+":"+clientIPKey(r), rl.policy)
	switch {
	case err != nil && rl.mode == FailOpen:
		observability.RecordRateLimitDecision(ctx, rl.scope, "backend_error", string(rl.mode), "ip")
		slog.WarnContext(ctx, "rate limiter backend unavailable, allowing request", "scope", rl.scope, "error", err.Error())
		return true
	case err != nil:
		observability.RecordRateLimitDecision(ctx, rl.scope, "backend_error", string(rl.mode), "ip")
		rl.reject(w, r, Decision{RetryAfter: rl.policy.Window, ResetAt: time.Now().Add(rl.policy.Window)})
		return false
	case !decision.Allowed:
		observability.RecordRateLimitDecision(ctx, rl.scope, "deny", string(rl.mode), "ip")
		rl.reject(w, r, decision)
		return false
	}
	observability.RecordRateLimitDecision(ctx, rl.scope, "allow", string(rl.mode), "ip")
	writeRateLimitHeaders(w.Header(), rl.policy.Limit, decision.Remaining, decision.ResetAt)
	return true
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, d Decision) {
	writeRateLimitHeaders(w.Header(), rl.policy.Limit, 0, d.ResetAt)
	w.Header().Set("Retry-After", retryAfterHeader(d.RetryAfter))
	response.Error(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
}

// localWindowLimiter is a per-process sliding window log.
type localWindowLimiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	cleanup time.Time
	now     func() time.Time
}

func NewLocalWindowLimiter() Limiter {
	return &localWindowLimiter{
		hits:    make(map[string][]time.Time),
		cleanup: time.Now().Add(time.Minute),
		now:     time.Now,
	}
}

func (l *localWindowLimiter) Allow(_ context.Context, key string, policy RateLimitPolicy) (Decision, error) {
	policy = normalizePolicy(policy)
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-policy.Window)
	if now.After(l.cleanup) {
		for k, hits := range l.hits {
			if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
				delete(l.hits, k)
			}
		}
		l.cleanup = now.Add(policy.Window)
	}

	hits := l.hits[key]
	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(cutoff) {
			kept = append(kept, hit)
		}
	}
	if len(kept) >= policy.Limit {
		l.hits[key] = kept
		retry := kept[0].Add(policy.Window).Sub(now)
		if retry <= 0 {
			retry = time.Second
		}
		return Decision{Allowed: false, RetryAfter: retry, ResetAt: now.Add(retry)}, nil
	}
	kept = append(kept, now)
	l.hits[key] = kept
	return Decision{
		Allowed:   true,
		Remaining: policy.Limit - len(kept),
		ResetAt:   kept[0].Add(policy.Window),
	}, nil
}

func clientIPKey(r *http.Request) string {
	if ip := fingerprint.ClientIP(r); ip != "" {
		return ip
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

func writeRateLimitHeaders(h http.Header, limit int, remaining int, resetAt time.Time) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(max(limit, 0)))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	if resetAt.IsZero() {
		resetAt = time.Now().Add(time.Second)
	}
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

func normalizePolicy(policy RateLimitPolicy) RateLimitPolicy {
	if policy.Limit <= 0 {
		policy.Limit = 1
	}
	if policy.Window <= 0 {
		policy.Window = time.Minute
	}
	return policy
}
