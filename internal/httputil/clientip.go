package httputil

import (
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address used to key per-client limits.
//
// With trustProxy set, the leftmost X-Forwarded-For entry and then X-Real-IP
// are consulted; values that do not parse as an IP address are ignored.
// Otherwise, and as the fallback, the host part of RemoteAddr is used.
// IPv4-mapped IPv6 addresses are reported in their IPv4 form so a dual-stack
// listener does not split one client across two keys.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		if addr, ok := parseHostIP(first); ok {
			return addr.String()
		}
		if addr, ok := parseHostIP(r.Header.Get("X-Real-IP")); ok {
			return addr.String()
		}
	}
	if addr, ok := parseHostIP(r.RemoteAddr); ok {
		return addr.String()
	}
	return r.RemoteAddr
}

// parseHostIP accepts a bare address or an address with a port.
func parseHostIP(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	addr, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
