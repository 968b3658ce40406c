package agent

import (
	"net"
	"testing"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

func TestHostNameResolver_ResolvesOnFirstAnswer(t *testing.T) {
	h := newFakeHost("me")
	var gotAddrs []net.IP
	var gotErr error
	name := wire.NewName("printer.local")
	r := NewHostNameResolver(name, func(addrs []net.IP, err error) {
		gotAddrs = addrs
		gotErr = err
	})

	r.Start(h)
	h.advanceTo(h.now, r)
	if got := len(h.out[h.addr()].questions); got != 2 {
		t.Fatalf("got %d questions on start, want 2 (A + AAAA)", got)
	}

	resp := &wire.Message{
		Header:  wire.Header{Flags: wire.FlagResponse},
		Answers: []wire.ResourceRecord{wire.NewRecord(name, true, wire.LongTTL, wire.A{Addr: net.IPv4(10, 0, 0, 5)})},
	}
	r.HandleMessage(h, resp, 1, false, nil)
	h.advanceTo(h.now.Add(resolveRetryInterval), r)

	if gotErr != nil {
		t.Fatalf("unexpected error: %v", gotErr)
	}
	if len(gotAddrs) != 1 || !gotAddrs[0].Equal(net.IPv4(10, 0, 0, 5)) {
		t.Fatalf("got addrs %v, want [10.0.0.5]", gotAddrs)
	}
}

func TestHostNameResolver_TimesOutWithNoResponse(t *testing.T) {
	h := newFakeHost("me")
	var gotErr error
	var called bool
	name := wire.NewName("ghost.local")
	r := NewHostNameResolver(name, func(addrs []net.IP, err error) {
		called = true
		gotErr = err
	})

	r.Start(h)
	tm := h.now
	for i := 0; i < resolveAttempts+1; i++ {
		tm = tm.Add(resolveRetryInterval)
		h.advanceTo(tm, r)
	}

	if !called {
		t.Fatal("onResult was never called")
	}
	if gotErr == nil {
		t.Fatal("expected a timeout error, got nil")
	}
}

func TestHostNameResolver_StopCancelsPendingTimer(t *testing.T) {
	h := newFakeHost("me")
	r := NewHostNameResolver(wire.NewName("x.local"), func([]net.IP, error) {})
	r.Start(h)
	r.Stop(h)
	if _, pending := h.timers[hostResolverTimerID]; pending {
		t.Fatal("timer still pending after Stop")
	}
}
