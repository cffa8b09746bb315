package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the client address of r.
//
// X-Forwarded-For and X-Real-IP are only consulted when trustProxy is set.
// trustedProxyCount is the number of proxies we control at the right end of
// X-Forwarded-For; 0 is treated as 1.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := clientIPFromForwardedFor(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// clientIPFromForwardedFor picks the entry just left of the trusted proxies.
//
//	X-Forwarded-For: "client, proxy2, proxy1" with trustedProxyCount=2 -> "client"
func clientIPFromForwardedFor(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	if trustedProxyCount <= 0 {
		trustedProxyCount = 1
	}

	idx := len(ips) - trustedProxyCount - 1
	if idx < 0 {
		idx = 0
	}

	ip := strings.TrimSpace(ips[idx])
	if net.ParseIP(ip) == nil {
		return ""
	}
	return ip
}
