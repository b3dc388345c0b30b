package admission

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientKey turns a client address into a limiter key. IPv4 addresses are
// used as is; IPv6 addresses collapse to their /64 network, so one
// subscriber's whole allocation shares a budget.
func ClientKey(addr string) string {
	addr = strings.TrimSpace(addr)
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return addr
	}
	ip = ip.Unmap().WithZone("")
	if ip.Is4() {
		return ip.String()
	}
	prefix, err := ip.Prefix(64)
	if err != nil {
		return ip.String()
	}
	return prefix.String()
}

// ClientIP resolves the originating client address. With trustedProxies > 0
// it takes the X-Forwarded-For entry appended by the outermost trusted hop;
// entries further left are client-controlled and ignored.
func ClientIP(r *http.Request, trustedProxies int) string {
	if trustedProxies > 0 {
		if xff := strings.Join(r.Header.Values("X-Forwarded-For"), ","); strings.TrimSpace(xff) != "" {
			parts := strings.Split(xff, ",")
			idx := len(parts) - trustedProxies
			if idx < 0 {
				idx = 0
			}
			if candidate := stripPort(strings.TrimSpace(parts[idx])); candidate != "" {
				return candidate
			}
		}
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
