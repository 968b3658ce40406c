package security

import (
	"net"
)

// SourceFilter validates source IPs before parsing packets. Per RFC 6762
// §2, mDNS is link-local scope: source IPs must be link-local (IPv4
// 169.254.0.0/16 per RFC 3927, or IPv6 fe80::/10) or in the same subnet as
// the receiving interface.
type SourceFilter struct {
	iface      net.Interface // Receiving interface
	ifaceAddrs []net.IPNet   // Cached interface addresses (avoids syscall per packet)
}

// NewSourceFilter creates a new source filter for the given interface,
// caching its addresses to avoid a syscall on every packet's validation.
func NewSourceFilter(iface net.Interface) (*SourceFilter, error) {
	addrs, err := iface.Addrs()
	if err != nil {
		// IsValid() falls back to the link-local-only check.
		return &SourceFilter{
			iface:      iface,
			ifaceAddrs: []net.IPNet{},
		}, nil
	}

	var ipnets []net.IPNet
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok {
			ipnets = append(ipnets, *ipnet)
		}
	}

	return &SourceFilter{
		iface:      iface,
		ifaceAddrs: ipnets,
	}, nil
}

// IsValid checks if the source IP is valid for mDNS: link-local, or in the
// same subnet as the receiving interface. Both IPv4 and IPv6 sources are
// checked.
func (sf *SourceFilter) IsValid(srcIP net.IP) bool {
	if ip4 := srcIP.To4(); ip4 != nil {
		if ip4[0] == 169 && ip4[1] == 254 {
			return true // RFC 3927 link-local address
		}
	} else if srcIP.IsLinkLocalUnicast() {
		return true // IPv6 fe80::/10
	}

	for _, ipnet := range sf.ifaceAddrs {
		if ipnet.Contains(srcIP) {
			return true
		}
	}

	return false
}

// isPrivate returns true if the IP is in a private address range
// (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16).
func isPrivate(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}

	if ip4[0] == 10 {
		return true
	}
	if ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31 {
		return true
	}
	if ip4[0] == 192 && ip4[1] == 168 {
		return true
	}

	return false
}
