package agent

import (
	"testing"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

func driveInstanceProber(h *fakeHost, p Agent, ready *string, steps int) {
	tm := h.now
	for i := 0; i < steps && *ready == ""; i++ {
		tm = tm.Add(probeInterval)
		h.advanceTo(tm, p)
	}
}

func TestInstanceProber_SucceedsAndAnnouncesSRV(t *testing.T) {
	h := newFakeHost("host")
	var ready string
	p := NewInstanceProber("Printer", "_ipp._tcp.local.", 631, func(s string) { ready = s }, nil)

	p.Start(h)
	h.advanceTo(h.now, p)
	if got := len(h.allAuthorities(h.addr())); got != 1 {
		t.Fatalf("probe 1: got %d authority records, want 1", got)
	}

	driveInstanceProber(h, p, &ready, 50)
	if ready != "Printer" {
		t.Fatalf("onReady instance = %q, want %q", ready, "Printer")
	}
	if got := p.FullName().String(); got != "Printer._ipp._tcp.local." {
		t.Fatalf("FullName = %q, want %q", got, "Printer._ipp._tcp.local.")
	}
}

func TestInstanceProber_RenamesOnSRVConflict(t *testing.T) {
	h := newFakeHost("host")
	var ready string
	p := NewInstanceProber("Printer", "_ipp._tcp.local.", 631, func(s string) { ready = s }, nil)
	p.Start(h)
	h.advanceTo(h.now, p)

	conflict := &wire.Message{
		Header: wire.Header{Flags: wire.FlagResponse},
		Answers: []wire.ResourceRecord{
			wire.NewRecord(wire.NewName("Printer._ipp._tcp.local."), true, wire.ShortTTL,
				wire.SRV{Port: 631, Target: wire.NewName("other.local")}),
		},
	}
	p.HandleMessage(h, conflict, 1, false, nil)
	if got := p.FullName().String(); got != "Printer (2)._ipp._tcp.local." {
		t.Fatalf("renamed FullName = %q, want %q", got, "Printer (2)._ipp._tcp.local.")
	}

	driveInstanceProber(h, p, &ready, 50)
	if ready != "Printer (2)" {
		t.Fatalf("onReady instance = %q, want %q", ready, "Printer (2)")
	}
}
