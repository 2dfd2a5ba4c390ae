package security

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
)

// DefaultAllowlist is the baseline of trusted networks: loopback and private ranges
var DefaultAllowlist = []string{
	"127.0.0.0/8",
	"::1/128",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"fc00::/7",
}

// Allowlist matches client addresses against trusted CIDRs
type Allowlist struct {
	prefixes []netip.Prefix
}

// NewAllowlist builds the baseline plus extra CIDRs or bare addresses
func NewAllowlist(extra []string) (*Allowlist, error) {
	a := &Allowlist{}
	for _, cidr := range append(append([]string{}, DefaultAllowlist...), extra...) {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		if !strings.Contains(cidr, "/") {
			addr, err := netip.ParseAddr(cidr)
			if err != nil {
				return nil, fmt.Errorf("invalid allowlist entry %q: %w", cidr, err)
			}
			addr = addr.Unmap()
			a.prefixes = append(a.prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist entry %q: %w", cidr, err)
		}
		a.prefixes = append(a.prefixes, prefix.Masked())
	}
	return a, nil
}

// Contains reports whether addr is trusted. Invalid addresses never are.
func (a *Allowlist) Contains(addr netip.Addr) bool {
	if a == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParseClientIP extracts the address from a RemoteAddr-style "host:port" or bare host
func ParseClientIP(remoteAddr string) netip.Addr {
	host := strings.TrimSpace(remoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// ipKey normalises an address for use in store keys
func ipKey(addr netip.Addr) string {
	if addr.IsValid() {
		return addr.String()
	}
	return "unknown"
}
