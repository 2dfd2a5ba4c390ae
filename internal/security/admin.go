package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidIP is returned when an unblock target is not an IP address
var ErrInvalidIP = errors.New("invalid ip address")

// Admin exposes block inspection and release for operators
type Admin struct {
	ipBlock    *IPBlockGuard
	bruteForce *BruteForceGuard
	logger     *slog.Logger
}

// NewAdmin creates an Admin over the stateful guards
func NewAdmin(ipBlock *IPBlockGuard, bruteForce *BruteForceGuard, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{ipBlock: ipBlock, bruteForce: bruteForce, logger: logger}
}

// Stats is the combined view of both trackers
type Stats struct {
	BlockedIPs        int            `json:"blocked_ips"`
	TrackedIPs        int            `json:"tracked_ips"`
	BruteForceBlocked int            `json:"brute_force_blocked"`
	BruteForceTracked int            `json:"brute_force_tracked"`
	IPBlocks          []BlockedEntry `json:"ip_blocks"`
	BruteForceBlocks  []BlockedEntry `json:"brute_force_blocks"`
}

// Stats reports counters from both trackers
func (a *Admin) Stats(ctx context.Context) (*Stats, error) {
	ipStats, err := a.ipBlock.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ip block stats: %w", err)
	}
	bfStats, err := a.bruteForce.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read brute force stats: %w", err)
	}
	return &Stats{
		BlockedIPs:        ipStats.BlockedIPs,
		TrackedIPs:        ipStats.TrackedIPs,
		BruteForceBlocked: bfStats.Blocked,
		BruteForceTracked: bfStats.Tracked,
		IPBlocks:          ipStats.Blocked,
		BruteForceBlocks:  bfStats.Entries,
	}, nil
}

// UnblockResult reports what Unblock released
type UnblockResult struct {
	IP                string `json:"ip"`
	Route             string `json:"route,omitempty"`
	BruteForceCleared int    `json:"brute_force_cleared"`
}

// Unblock releases ip from the IP blocker and its brute force records.
// A non-empty route limits the brute force release to that route.
func (a *Admin) Unblock(ctx context.Context, ip, route string) (*UnblockResult, error) {
	if !ParseClientIP(ip).IsValid() {
		return nil, ErrInvalidIP
	}
	if err := a.ipBlock.Unblock(ctx, ip); err != nil {
		return nil, fmt.Errorf("failed to release ip block: %w", err)
	}
	n, err := a.bruteForce.Unblock(ctx, ip, route)
	if err != nil {
		return nil, fmt.Errorf("failed to release brute force block: %w", err)
	}
	a.logger.Warn("Security block released by admin",
		slog.String("ip", ip),
		slog.String("route", route),
		slog.Int("brute_force_cleared", n),
	)
	return &UnblockResult{IP: ip, Route: route, BruteForceCleared: n}, nil
}
