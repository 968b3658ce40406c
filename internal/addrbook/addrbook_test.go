package addrbook

import (
	"net"
	"testing"
)

func TestClassifyInterface(t *testing.T) {
	cases := []struct {
		name string
		want Media
	}{
		{"wlan0", MediaWireless},
		{"en0", MediaWireless},
		{"eth0", MediaWired},
		{"enp3s0", MediaWired},
		{"docker0", MediaAny},
	}
	for _, c := range cases {
		got := ClassifyInterface(net.Interface{Name: c.name})
		if got != c.want {
			t.Errorf("ClassifyInterface(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestReplyAddressDestinationMulticast(t *testing.T) {
	r := ReplyAddress{InterfaceIndex: 2}
	dst := r.Destination()
	if !dst.IP.Equal(MulticastIPv4) || dst.Port != Port {
		t.Errorf("Destination() = %v, want multicast v4 group on port %d", dst, Port)
	}

	r6 := ReplyAddress{InterfaceIndex: 2, V6: true}
	dst6 := r6.Destination()
	if !dst6.IP.Equal(MulticastIPv6) {
		t.Errorf("Destination() = %v, want multicast v6 group", dst6)
	}
}

func TestReplyAddressDestinationUnicast(t *testing.T) {
	unicast := &net.UDPAddr{IP: net.IPv4(192, 168, 1, 50), Port: 5353}
	r := ReplyAddress{InterfaceIndex: 1, Unicast: unicast}
	if r.Destination() != unicast {
		t.Errorf("Destination() did not return the recorded unicast address")
	}
}
