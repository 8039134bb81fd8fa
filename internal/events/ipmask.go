package events

import (
	"net"
	"strings"
)

// MaskIP partially redacts an IP address for non-privileged viewers.
// IPv4 keeps the first three octets ("203.0.113.42" -> "203.0.113.***");
// IPv6 keeps the first four groups. Unparseable input is fully redacted.
func MaskIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "***"
	}
	if v4 := parsed.To4(); v4 != nil {
		parts := strings.Split(v4.String(), ".")
		return strings.Join(parts[:3], ".") + ".***"
	}
	groups := strings.Split(parsed.String(), ":")
	if len(groups) > 4 {
		groups = groups[:4]
	}
	return strings.Join(groups, ":") + ":***"
}
