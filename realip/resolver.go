package realip

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// Unknown is returned when no header yields a syntactically valid address.
const Unknown = "unknown"

const (
	headerForwardedFor = "X-Forwarded-For"
	headerRealIP       = "X-Real-IP"
	headerCFConnecting = "CF-Connecting-IP"
)

// Config holds the trusted-proxy allow list. When TrustedProxies is empty the
// resolver falls back to treating private, loopback, and link-local ranges as
// trusted, which matches how cloud load balancers and ingress proxies appear
// in the forwarded chain.
type Config struct {
	TrustedProxies []string
}

// Resolver resolves the client IP for a request. The zero value uses the
// private-range heuristic; use New to install an explicit CIDR allow list.
type Resolver struct {
	trusted []netip.Prefix
}

// New builds a Resolver from cfg. Entries in TrustedProxies may be CIDRs
// ("10.0.0.0/8") or single addresses ("203.0.113.7").
func New(cfg Config) (*Resolver, error) {
	r := &Resolver{}
	for _, entry := range cfg.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			r.trusted = append(r.trusted, prefix)
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy entry %q", entry)
		}
		r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return r, nil
}

// Resolve extracts the client IP from h. Priority: X-Forwarded-For with the
// trust walk, then X-Real-IP, then CF-Connecting-IP, then Unknown. Malformed
// candidates are discarded, never trusted.
func (r *Resolver) Resolve(h http.Header) string {
	if ip := r.resolveForwardedFor(h.Get(headerForwardedFor)); ip != "" {
		return ip
	}
	if addr, ok := parseAddr(h.Get(headerRealIP)); ok {
		return addr.String()
	}
	if addr, ok := parseAddr(h.Get(headerCFConnecting)); ok {
		return addr.String()
	}
	return Unknown
}

// resolveForwardedFor walks the comma-separated chain (client-first ordering)
// from the rightmost entry toward the leftmost, skipping trusted proxies; the
// first untrusted address is the client. The walk only means something when
// the rightmost entry was appended by a proxy we trust: an untrusted rightmost
// entry means no hop in the chain is vouched for, so the leftmost valid entry
// is returned, as it also is when every entry is trusted.
func (r *Resolver) resolveForwardedFor(value string) string {
	if value == "" {
		return ""
	}

	var valid []netip.Addr
	for _, part := range strings.Split(value, ",") {
		if addr, ok := parseAddr(part); ok {
			valid = append(valid, addr)
		}
	}
	if len(valid) == 0 {
		return ""
	}

	last := len(valid) - 1
	if !r.isTrustedProxy(valid[last]) {
		return valid[0].String()
	}
	for i := last - 1; i >= 0; i-- {
		if !r.isTrustedProxy(valid[i]) {
			return valid[i].String()
		}
	}
	return valid[0].String()
}

func (r *Resolver) isTrustedProxy(addr netip.Addr) bool {
	if r == nil || len(r.trusted) == 0 {
		return addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast()
	}
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func parseAddr(raw string) (netip.Addr, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return netip.Addr{}, false
	}
	// Some proxies append a port ("1.2.3.4:5678", "[::1]:80").
	if addrPort, err := netip.ParseAddrPort(raw); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
