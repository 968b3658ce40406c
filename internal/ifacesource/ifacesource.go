// Package ifacesource discovers the network interfaces AgentHost should
// attach a Transceiver to: every up, multicast-capable, non-loopback
// interface, excluding the VPN and container bridge interfaces that never
// carry genuine link-local mDNS peers (spec component InterfaceSource).
package ifacesource

import "net"

// Source enumerates the interfaces AgentHost should track. A real Source
// reads net.Interfaces(); hosttest supplies a fixed list for deterministic
// tests.
type Source interface {
	Interfaces() ([]net.Interface, error)
}

// Default returns the interfaces mDNS should multicast on: up, multicast
// capable, not loopback, and not a VPN tunnel or container bridge that
// would never carry a genuine link-local peer.
type Default struct{}

// Interfaces implements Source.
func (Default) Interfaces() ([]net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	filtered := make([]net.Interface, 0, len(all))
	for _, iface := range all {
		if !Eligible(iface) {
			continue
		}
		filtered = append(filtered, iface)
	}
	return filtered, nil
}

// Eligible reports whether iface is a candidate mDNS interface: up,
// multicast-capable, not loopback, and not a VPN tunnel or container
// bridge.
func Eligible(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	if iface.Flags&net.FlagMulticast == 0 {
		return false
	}
	if iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	if isVPN(iface.Name) || isContainerBridge(iface.Name) {
		return false
	}
	return true
}

// isVPN reports whether name matches a common tunnel-interface naming
// convention: macOS utun, Linux tun/ppp, and the popular WireGuard and
// Tailscale overlay names. None of these carry genuine link-local mDNS
// peers, since traffic on them is already routed.
func isVPN(name string) bool {
	for _, prefix := range []string{"utun", "tun", "ppp", "wg", "tailscale", "wireguard"} {
		if hasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isContainerBridge reports whether name matches a Docker-style virtual
// bridge or veth pair: these sit between a container and the host's real
// link, not on the link itself.
func isContainerBridge(name string) bool {
	if name == "docker0" {
		return true
	}
	for _, prefix := range []string{"veth", "br-"} {
		if hasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func hasPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}
