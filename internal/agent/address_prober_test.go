package agent

import (
	"net"
	"testing"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// driveProber advances h's clock in small steps, firing p's timers, until
// either ready becomes non-empty or the step budget is exhausted.
func driveProber(h *fakeHost, p Agent, ready *wire.Name, steps int) {
	tm := h.now
	for i := 0; i < steps && *ready == ""; i++ {
		tm = tm.Add(probeInterval)
		h.advanceTo(tm, p)
	}
}

func TestAddressProber_SucceedsAfterThreeUncontestedProbes(t *testing.T) {
	h := newFakeHost("host")
	var ready wire.Name
	var failed error
	p := NewAddressProber("host", func(n wire.Name) { ready = n }, func(err error) { failed = err })

	p.Start(h)
	h.advanceTo(h.now, p)
	if got := len(h.allAuthorities(h.addr())); got != 1 {
		t.Fatalf("probe 1: got %d authority records, want 1", got)
	}

	driveProber(h, p, &ready, 50)

	if ready.String() != "host.local." {
		t.Fatalf("onReady name = %q, want %q", ready, "host.local.")
	}
	if failed != nil {
		t.Fatalf("unexpected failure: %v", failed)
	}
}

func TestAddressProber_RenamesOnConflict(t *testing.T) {
	h := newFakeHost("host")
	var ready wire.Name
	p := NewAddressProber("host", func(n wire.Name) { ready = n }, nil)
	p.Start(h)
	h.advanceTo(h.now, p)

	conflict := &wire.Message{
		Header:  wire.Header{Flags: wire.FlagResponse},
		Answers: []wire.ResourceRecord{wire.NewRecord(wire.NewName("host.local"), true, wire.LongTTL, wire.A{Addr: net.IPv4(10, 0, 0, 9)})},
	}
	p.HandleMessage(h, conflict, 1, false, nil)

	if got := p.Name(); got.String() != "host2.local." {
		t.Fatalf("renamed name = %q, want %q", got, "host2.local.")
	}

	driveProber(h, p, &ready, 50)
	if ready.String() != "host2.local." {
		t.Fatalf("onReady name = %q, want %q", ready, "host2.local.")
	}
}

func TestAddressProber_StopSendsGoodbyeOnlyWhenActive(t *testing.T) {
	h := newFakeHost("host")
	p := NewAddressProber("host", nil, nil)
	p.Start(h)

	h.reset()
	p.Stop(h)
	if got := len(h.allAnswers(h.addr())); got != 0 {
		t.Fatalf("Stop while probing enqueued %d answers, want 0", got)
	}

	h2 := newFakeHost("host2")
	var ready2 wire.Name
	p2 := NewAddressProber("host2", func(n wire.Name) { ready2 = n }, nil)
	p2.Start(h2)
	h2.advanceTo(h2.now, p2)
	driveProber(h2, p2, &ready2, 50)
	if ready2 == "" {
		t.Fatal("prober never became active")
	}

	h2.reset()
	p2.Stop(h2)
	answers := h2.allAnswers(h2.addr())
	if len(answers) != 1 || answers[0].TTL != 0 {
		t.Fatalf("Stop while active = %+v, want one ttl=0 goodbye", answers)
	}
}

