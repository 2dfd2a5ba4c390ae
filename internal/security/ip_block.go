package security

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/welldanyogia/umx-auth/backend/internal/clock"
	"github.com/welldanyogia/umx-auth/backend/internal/metrics"
)

const ipBlockPrefix = "ipblock:"

// IPBlockConfig tunes the per-IP failure tracker
type IPBlockConfig struct {
	MaxFailures   int
	Window        time.Duration
	BlockDuration time.Duration
}

// DefaultIPBlockConfig blocks for 15 minutes after 5 failures within an hour
func DefaultIPBlockConfig() IPBlockConfig {
	return IPBlockConfig{
		MaxFailures:   5,
		Window:        60 * time.Minute,
		BlockDuration: 15 * time.Minute,
	}
}

// IPBlockGuard enforces blocks for IPs with repeated authentication failures.
// Failures are recorded by the auth service; Check only reads and expires state.
type IPBlockGuard struct {
	store     Store
	allowlist *Allowlist
	cfg       IPBlockConfig
	clock     clock.Clock
	logger    *slog.Logger
}

// NewIPBlockGuard creates an IPBlockGuard
func NewIPBlockGuard(store Store, allowlist *Allowlist, cfg IPBlockConfig, clk clock.Clock, logger *slog.Logger) *IPBlockGuard {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IPBlockGuard{store: store, allowlist: allowlist, cfg: cfg, clock: clk, logger: logger}
}

// Name implements Guard
func (g *IPBlockGuard) Name() string { return "ip_block" }

func (g *IPBlockGuard) ttl() time.Duration {
	if g.cfg.BlockDuration > g.cfg.Window {
		return g.cfg.BlockDuration
	}
	return g.cfg.Window
}

// Check implements Guard
func (g *IPBlockGuard) Check(ctx context.Context, req *Request) Decision {
	if g.allowlist.Contains(req.Addr) {
		return allow()
	}

	key := ipBlockPrefix + req.IP()
	rec, ok, err := g.store.Get(ctx, key)
	if err != nil {
		g.logger.Error("IP block lookup failed, allowing request", slog.String("ip", req.IP()), slog.String("error", err.Error()))
		return allow()
	}
	if !ok || !rec.Blocked {
		return allow()
	}

	now := g.clock.Now()
	if !now.Before(rec.BlockExpiry) {
		if err := g.store.Delete(ctx, key); err != nil {
			g.logger.Warn("Failed to clear expired IP block", slog.String("ip", req.IP()), slog.String("error", err.Error()))
		}
		return allow()
	}

	return Decision{
		Verdict:    Reject,
		Status:     http.StatusForbidden,
		Code:       CodeIPBlocked,
		Message:    "IP bloqueado temporariamente devido a múltiplas tentativas falhas.",
		Reason:     "ip blocked after repeated authentication failures",
		Severity:   SeverityMedium,
		RetryAfter: rec.BlockExpiry.Sub(now),
	}
}

// RecordFailure counts an authentication failure for ip and starts a block
// once the threshold is reached. Allowlisted IPs are never recorded.
func (g *IPBlockGuard) RecordFailure(ctx context.Context, ip, reason string) error {
	addr := ParseClientIP(ip)
	if g.allowlist.Contains(addr) {
		return nil
	}
	key := ipBlockPrefix + ipKey(addr)
	now := g.clock.Now()

	rec, err := g.store.Update(ctx, key, g.ttl(), func(rec *Record, exists bool) bool {
		if exists && rec.Blocked && !now.Before(rec.BlockExpiry) {
			exists = false
		}
		if !exists || (!rec.Blocked && now.Sub(rec.FirstAttempt) > g.cfg.Window) {
			*rec = Record{FirstAttempt: now}
		}
		rec.Count++
		rec.LastAttempt = now
		if rec.Count >= g.cfg.MaxFailures {
			rec.Blocked = true
			rec.BlockExpiry = now.Add(g.cfg.BlockDuration)
		}
		return true
	})
	if err != nil {
		return err
	}

	if rec.Blocked && rec.Count == g.cfg.MaxFailures {
		metrics.IPBlocksTotal.Inc()
		g.logger.Warn("IP blocked after repeated authentication failures",
			slog.String("ip", ip),
			slog.Int("failures", rec.Count),
			slog.String("reason", reason),
			slog.Time("blocked_until", rec.BlockExpiry),
			slog.String("severity", string(SeverityHigh)),
		)
	}
	return nil
}

// ClearFailures forgets an IP's failure count after a successful login.
// An active block is left in place.
func (g *IPBlockGuard) ClearFailures(ctx context.Context, ip string) error {
	addr := ParseClientIP(ip)
	if g.allowlist.Contains(addr) {
		return nil
	}
	now := g.clock.Now()
	_, err := g.store.Update(ctx, ipBlockPrefix+ipKey(addr), g.ttl(), func(rec *Record, exists bool) bool {
		return exists && rec.Blocked && now.Before(rec.BlockExpiry)
	})
	return err
}

// Unblock lifts any block and failure count for ip
func (g *IPBlockGuard) Unblock(ctx context.Context, ip string) error {
	return g.store.Delete(ctx, ipBlockPrefix+ipKey(ParseClientIP(ip)))
}

// BlockedEntry describes one blocked key
type BlockedEntry struct {
	IP           string    `json:"ip"`
	Route        string    `json:"route,omitempty"`
	Attempts     int       `json:"attempts"`
	BlockedUntil time.Time `json:"blocked_until"`
}

// IPBlockStats summarises the tracker
type IPBlockStats struct {
	TrackedIPs int            `json:"tracked_ips"`
	BlockedIPs int            `json:"blocked_ips"`
	Blocked    []BlockedEntry `json:"blocked"`
}

// Stats reports tracked and currently blocked IPs
func (g *IPBlockGuard) Stats(ctx context.Context) (*IPBlockStats, error) {
	now := g.clock.Now()
	stats := &IPBlockStats{Blocked: []BlockedEntry{}}
	err := g.store.Scan(ctx, ipBlockPrefix, func(key string, rec Record) bool {
		stats.TrackedIPs++
		if rec.Blocked && now.Before(rec.BlockExpiry) {
			stats.BlockedIPs++
			stats.Blocked = append(stats.Blocked, BlockedEntry{
				IP:           strings.TrimPrefix(key, ipBlockPrefix),
				Attempts:     rec.Count,
				BlockedUntil: rec.BlockExpiry,
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(stats.Blocked, func(i, j int) bool { return stats.Blocked[i].IP < stats.Blocked[j].IP })
	return stats, nil
}
