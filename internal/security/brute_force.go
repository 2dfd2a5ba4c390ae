package security

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
)

const bruteForcePrefix = "bf:"

// BruteForceConfig tunes per-(IP, route) throttling of sensitive endpoints
type BruteForceConfig struct {
	// Routes are the sensitive path suffixes, e.g. "/auth/login"
	Routes         []string
	Window         time.Duration
	MaxAttempts    int
	BlockDuration  time.Duration
	DelayThreshold int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	// Retention bounds how long an idle record is kept
	Retention time.Duration
}

// DefaultBruteForceConfig covers the credential and code endpoints
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		Routes: []string{
			"/auth/register",
			"/auth/login",
			"/auth/verify",
			"/auth/resend",
			"/auth/complete-registration",
			"/auth/mobile/login",
		},
		Window:         15 * time.Minute,
		MaxAttempts:    5,
		BlockDuration:  30 * time.Minute,
		DelayThreshold: 2,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Retention:      24 * time.Hour,
	}
}

// SleepFunc suspends the calling goroutine, returning early when ctx ends
type SleepFunc func(ctx context.Context, d time.Duration) error

// BruteForceGuard slows repeated attempts on a sensitive route with an
// exponential in-band delay and blocks the (IP, route) pair at the limit.
type BruteForceGuard struct {
	store     Store
	allowlist *Allowlist
	cfg       BruteForceConfig
	clock     clock.Clock
	sleep     SleepFunc
	logger    *slog.Logger
}

// NewBruteForceGuard creates a BruteForceGuard. A nil sleep uses a timer.
func NewBruteForceGuard(store Store, allowlist *Allowlist, cfg BruteForceConfig, clk clock.Clock, sleep SleepFunc, logger *slog.Logger) *BruteForceGuard {
	if clk == nil {
		clk = clock.Real{}
	}
	if sleep == nil {
		sleep = SleepContext
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BruteForceGuard{store: store, allowlist: allowlist, cfg: cfg, clock: clk, sleep: sleep, logger: logger}
}

// Name implements Guard
func (g *BruteForceGuard) Name() string { return "brute_force" }

// route returns the sensitive route matched by path, or ""
func (g *BruteForceGuard) route(path string) string {
	path = strings.ToLower(strings.TrimRight(path, "/"))
	for _, r := range g.cfg.Routes {
		if strings.HasSuffix(path, r) {
			return r
		}
	}
	return ""
}

// Delay returns the in-band delay applied to the n-th attempt in a window
func (g *BruteForceGuard) Delay(n int) time.Duration {
	if n <= g.cfg.DelayThreshold {
		return 0
	}
	d := g.cfg.BaseDelay
	for i := g.cfg.DelayThreshold + 1; i < n; i++ {
		d *= 2
		if d >= g.cfg.MaxDelay {
			return g.cfg.MaxDelay
		}
	}
	if d > g.cfg.MaxDelay {
		return g.cfg.MaxDelay
	}
	return d
}

// Check implements Guard
func (g *BruteForceGuard) Check(ctx context.Context, req *Request) Decision {
	route := g.route(req.Path)
	if route == "" || g.allowlist.Contains(req.Addr) {
		return allow()
	}

	key := bruteForcePrefix + req.IP() + "|" + route
	now := g.clock.Now()
	var blockedUntil time.Time

	rec, err := g.store.Update(ctx, key, g.cfg.Retention, func(rec *Record, exists bool) bool {
		blockedUntil = time.Time{}
		if exists && rec.Blocked {
			if now.Before(rec.BlockExpiry) {
				blockedUntil = rec.BlockExpiry
				return true
			}
			exists = false
		}
		if !exists || now.Sub(rec.FirstAttempt) > g.cfg.Window {
			*rec = Record{FirstAttempt: now}
		}
		rec.Count++
		rec.LastAttempt = now
		if rec.Count >= g.cfg.MaxAttempts {
			rec.Blocked = true
			rec.BlockExpiry = now.Add(g.cfg.BlockDuration)
		}
		return true
	})
	if err != nil {
		g.logger.Error("Brute force lookup failed, allowing request",
			slog.String("ip", req.IP()),
			slog.String("route", route),
			slog.String("error", err.Error()),
		)
		return allow()
	}

	if !blockedUntil.IsZero() {
		return Decision{
			Verdict:    Reject,
			Status:     http.StatusTooManyRequests,
			Code:       CodeTooManyAttempts,
			Message:    "Muitas tentativas. Tente novamente mais tarde.",
			Reason:     "brute force block on " + route,
			Severity:   SeverityHigh,
			RetryAfter: blockedUntil.Sub(now),
		}
	}

	if delay := g.Delay(rec.Count); delay > 0 {
		if err := g.sleep(ctx, delay); err != nil {
			return Decision{
				Verdict:  Reject,
				Status:   http.StatusRequestTimeout,
				Code:     CodeRequestCancelled,
				Message:  "Requisição cancelada.",
				Reason:   "client abandoned request during brute force delay",
				Severity: SeverityLow,
			}
		}
	}

	if rec.Blocked {
		return Decision{
			Verdict:    Reject,
			Status:     http.StatusTooManyRequests,
			Code:       CodeTooManyAttempts,
			Message:    "Muitas tentativas. Tente novamente mais tarde.",
			Reason:     "brute force block started on " + route,
			Severity:   SeverityHigh,
			RetryAfter: g.cfg.BlockDuration,
		}
	}
	if rec.Count > g.cfg.DelayThreshold {
		return Decision{
			Verdict:  Flag,
			Reason:   "progressive delay applied on " + route,
			Severity: SeverityLow,
		}
	}
	return allow()
}

// Unblock clears the (ip, route) record, or every route of ip when route is empty
func (g *BruteForceGuard) Unblock(ctx context.Context, ip, route string) (int, error) {
	prefix := bruteForcePrefix + ipKey(ParseClientIP(ip)) + "|"
	if route != "" {
		r := g.route(route)
		if r == "" {
			r = strings.ToLower(route)
		}
		if err := g.store.Delete(ctx, prefix+r); err != nil {
			return 0, err
		}
		return 1, nil
	}

	var keys []string
	if err := g.store.Scan(ctx, prefix, func(key string, rec Record) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := g.store.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// BruteForceStats summarises tracked (IP, route) pairs
type BruteForceStats struct {
	Tracked int            `json:"tracked"`
	Blocked int            `json:"blocked"`
	Entries []BlockedEntry `json:"entries"`
}

// Stats reports tracked and blocked (IP, route) pairs
func (g *BruteForceGuard) Stats(ctx context.Context) (*BruteForceStats, error) {
	now := g.clock.Now()
	stats := &BruteForceStats{Entries: []BlockedEntry{}}
	err := g.store.Scan(ctx, bruteForcePrefix, func(key string, rec Record) bool {
		stats.Tracked++
		if rec.Blocked && now.Before(rec.BlockExpiry) {
			stats.Blocked++
			ip, route, _ := strings.Cut(strings.TrimPrefix(key, bruteForcePrefix), "|")
			stats.Entries = append(stats.Entries, BlockedEntry{
				IP:           ip,
				Route:        route,
				Attempts:     rec.Count,
				BlockedUntil: rec.BlockExpiry,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(stats.Entries, func(i, j int) bool {
		if stats.Entries[i].IP != stats.Entries[j].IP {
			return stats.Entries[i].IP < stats.Entries[j].IP
		}
		return stats.Entries[i].Route < stats.Entries[j].Route
	})
	return stats, nil
}

// SleepContext waits for d or until ctx is done. Only the calling
// goroutine is suspended.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
