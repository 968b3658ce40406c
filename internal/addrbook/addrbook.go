// Package addrbook holds the fixed mDNS network constants (RFC 6762 §3) and
// the ReplyAddress model AgentHost uses to decide which sockets an
// accumulated outbound message must be flushed to (spec component
// AddressBook).
package addrbook

import "net"

// Port is the UDP port mDNS always uses, for both queries and responses.
const Port = 5353

// MulticastIPv4 and MulticastIPv6 are the reserved link-local multicast
// groups mDNS traffic is addressed to (RFC 6762 §3).
var (
	MulticastIPv4 = net.IPv4(224, 0, 0, 251)
	MulticastIPv6 = net.ParseIP("ff02::fb")
)

// MulticastTTL is the IP TTL / hop-limit every mDNS datagram must carry
// (RFC 6762 §11): a receiver discards any mDNS packet not carrying this
// value, since it could only have reached the local link by misconfigured
// routing.
const MulticastTTL = 255

// Media classifies a network interface by transport so AgentHost can decide
// whether a resource record should be advertised only over wired links, only
// over wireless links, or both (spec §4.1, a resource's "medium affinity").
type Media int

const (
	// MediaAny carries no restriction: the resource goes out every interface.
	MediaAny Media = iota
	MediaWired
	MediaWireless
)

// ClassifyInterface makes a best-effort guess at an interface's Media based
// on its name, following the same family of platform naming conventions the
// interface filter already reasons about.
func ClassifyInterface(iface net.Interface) Media {
	name := iface.Name
	switch {
	case hasAnyPrefix(name, "wlan", "wl", "wifi", "airport", "en0"):
		// en0 is the common macOS Wi-Fi interface name on laptops; it is a
		// heuristic, not a guarantee, since Ethernet docks can also claim it.
		return MediaWireless
	case hasAnyPrefix(name, "eth", "en", "eno", "enp", "ens"):
		return MediaWired
	default:
		return MediaAny
	}
}

func hasAnyPrefix(name string, prefixes ...string) bool {
	for _, p := range prefixes {
		if len(name) >= len(p) && name[:len(p)] == p {
			return true
		}
	}
	return false
}

// ReplyAddress identifies one destination AgentHost's outbound accumulation
// map is keyed by: a specific interface, an IP family, and whether the
// reply must go unicast to a single querier rather than to the multicast
// group.
type ReplyAddress struct {
	InterfaceIndex int
	V6             bool
	// Unicast, when non-nil, is the single destination to reply to (RFC
	// 6762 §5.4 unicast-response questions, or legacy non-5353 queriers).
	// When nil, the reply goes to the multicast group on InterfaceIndex.
	Unicast *net.UDPAddr
}

// MulticastGroup returns the destination address for a non-unicast
// ReplyAddress: the mDNS multicast group for the address's IP family, on
// port 5353.
func (r ReplyAddress) MulticastGroup() *net.UDPAddr {
	ip := MulticastIPv4
	if r.V6 {
		ip = MulticastIPv6
	}
	return &net.UDPAddr{IP: ip, Port: Port}
}

// Destination returns the address a message keyed by r should actually be
// sent to: the unicast address if one was recorded, otherwise the
// multicast group.
func (r ReplyAddress) Destination() *net.UDPAddr {
	if r.Unicast != nil {
		return r.Unicast
	}
	return r.MulticastGroup()
}
