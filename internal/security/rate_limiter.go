package security

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
)

const rateLimitPrefix = "rl:"

// Policy is a token bucket of Limit requests refilled over Window
type Policy struct {
	Pattern string
	Limit   int
	Window  time.Duration
}

// DefaultRoutePolicies is consulted in order; the first pattern contained
// in the request path wins
var DefaultRoutePolicies = []Policy{
	{Pattern: "/auth/mobile/login", Limit: 5, Window: 5 * time.Minute},
	{Pattern: "/auth/login", Limit: 5, Window: 5 * time.Minute},
	{Pattern: "/auth/register", Limit: 3, Window: 10 * time.Minute},
	{Pattern: "/auth/complete-registration", Limit: 3, Window: 10 * time.Minute},
	{Pattern: "/auth/verify", Limit: 10, Window: 5 * time.Minute},
	{Pattern: "/auth/resend", Limit: 2, Window: 10 * time.Minute},
	{Pattern: "/umx", Limit: 20, Window: time.Minute},
	{Pattern: "/admin", Limit: 10, Window: 5 * time.Minute},
	{Pattern: "/config", Limit: 5, Window: 5 * time.Minute},
}

// DefaultMethodPolicies apply when no route pattern matches
var DefaultMethodPolicies = map[string]Policy{
	http.MethodPost:   {Limit: 30, Window: time.Minute},
	http.MethodPut:    {Limit: 20, Window: time.Minute},
	http.MethodPatch:  {Limit: 20, Window: time.Minute},
	http.MethodDelete: {Limit: 10, Window: time.Minute},
	http.MethodGet:    {Limit: 100, Window: time.Minute},
}

// RateLimitConfig holds the routing table and fallbacks
type RateLimitConfig struct {
	Routes   []Policy
	Methods  map[string]Policy
	Fallback Policy
}

// DefaultRateLimitConfig returns the built-in table
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Routes:   DefaultRoutePolicies,
		Methods:  DefaultMethodPolicies,
		Fallback: Policy{Limit: 100, Window: time.Minute},
	}
}

// RateLimiter is a token bucket keyed by (IP, user-agent hash, route)
type RateLimiter struct {
	store     Store
	allowlist *Allowlist
	cfg       RateLimitConfig
	clock     clock.Clock
	logger    *slog.Logger
}

// NewRateLimiter creates a RateLimiter
func NewRateLimiter(store Store, allowlist *Allowlist, cfg RateLimitConfig, clk clock.Clock, logger *slog.Logger) *RateLimiter {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{store: store, allowlist: allowlist, cfg: cfg, clock: clk, logger: logger}
}

// Name implements Guard
func (l *RateLimiter) Name() string { return "rate_limit" }

// PolicyFor resolves the policy and bucket route for a request
func (l *RateLimiter) PolicyFor(method, path string) (Policy, string) {
	lower := strings.ToLower(path)
	for _, p := range l.cfg.Routes {
		if strings.Contains(lower, p.Pattern) {
			return p, p.Pattern
		}
	}
	if p, ok := l.cfg.Methods[strings.ToUpper(method)]; ok {
		return p, strings.ToUpper(method) + " " + lower
	}
	return l.cfg.Fallback, strings.ToUpper(method) + " " + lower
}

// Check implements Guard
func (l *RateLimiter) Check(ctx context.Context, req *Request) Decision {
	if l.allowlist.Contains(req.Addr) {
		return allow()
	}

	policy, route := l.PolicyFor(req.Method, req.Path)
	if policy.Limit <= 0 || policy.Window <= 0 {
		return allow()
	}

	key := rateLimitPrefix + req.IP() + "|" + userAgentHash(req.UserAgent) + "|" + route
	now := l.clock.Now()
	capacity := float64(policy.Limit)
	rate := capacity / policy.Window.Seconds()

	var allowed bool
	rec, err := l.store.Update(ctx, key, policy.Window, func(rec *Record, exists bool) bool {
		if !exists {
			*rec = Record{FirstAttempt: now, LastAttempt: now, Tokens: capacity}
		} else {
			elapsed := now.Sub(rec.LastAttempt).Seconds()
			if elapsed > 0 {
				rec.Tokens = math.Min(capacity, rec.Tokens+elapsed*rate)
			}
			rec.LastAttempt = now
		}
		rec.Count++
		allowed = rec.Tokens >= 1
		if allowed {
			rec.Tokens--
		}
		return true
	})
	if err != nil {
		l.logger.Error("Rate limit lookup failed, allowing request",
			slog.String("ip", req.IP()),
			slog.String("route", route),
			slog.String("error", err.Error()),
		)
		return allow()
	}

	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(policy.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(int(math.Floor(rec.Tokens))),
	}
	if allowed {
		return Decision{Verdict: Allow, Headers: headers}
	}

	wait := time.Duration((1 - rec.Tokens) / rate * float64(time.Second))
	return Decision{
		Verdict:    Reject,
		Status:     http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "Limite de requisições excedido. Tente novamente mais tarde.",
		Reason:     "rate limit exceeded on " + route,
		Severity:   SeverityMedium,
		RetryAfter: wait,
		Headers:    headers,
	}
}

func userAgentHash(ua string) string {
	h := fnv.New32a()
	h.Write([]byte(ua))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}
