package transceiver

import (
	"net"
	"testing"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// net.Interface{Name: ...} with no Index has no OS addresses behind it, so
// these tests only exercise the no-address fallback path. The replacement
// path has no test in this repository.
func TestFixupAddressesLeavesPlaceholderWhenNoAddress(t *testing.T) {
	msg := &wire.Message{
		Answers: []wire.ResourceRecord{
			wire.NewAddressPlaceholder(wire.NewName("fuchsia.local."), false, wire.LongTTL),
		},
	}

	iface := net.Interface{Name: "nonexistent0"}
	fixupAddresses(msg, iface, false)

	if !msg.Answers[0].IsAddressPlaceholder() {
		t.Errorf("expected placeholder to survive fixup when no address is resolvable")
	}
}

func TestPickAddressNoAddrsReturnsFalse(t *testing.T) {
	iface := net.Interface{Name: "nonexistent0"}
	if _, ok := pickAddress(iface, false); ok {
		t.Errorf("expected pickAddress to fail for an interface with no resolvable addresses")
	}
}
