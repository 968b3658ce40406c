package ifacesource

import (
	"net"
	"testing"
)

func upMulticastIface(name string) net.Interface {
	return net.Interface{Name: name, Flags: net.FlagUp | net.FlagMulticast}
}

func TestEligible(t *testing.T) {
	tests := []struct {
		iface net.Interface
		want  bool
	}{
		{upMulticastIface("en0"), true},
		{upMulticastIface("eth0"), true},
		{net.Interface{Name: "eth0", Flags: net.FlagMulticast}, false}, // down
		{net.Interface{Name: "eth0", Flags: net.FlagUp}, false},        // no multicast
		{net.Interface{Name: "lo0", Flags: net.FlagUp | net.FlagMulticast | net.FlagLoopback}, false},
		{upMulticastIface("utun0"), false},
		{upMulticastIface("tailscale0"), false},
		{upMulticastIface("wg0"), false},
		{upMulticastIface("docker0"), false},
		{upMulticastIface("veth1234"), false},
		{upMulticastIface("br-abcdef"), false},
	}
	for _, tt := range tests {
		if got := Eligible(tt.iface); got != tt.want {
			t.Errorf("Eligible(%q, flags=%v) = %v, want %v", tt.iface.Name, tt.iface.Flags, got, tt.want)
		}
	}
}

