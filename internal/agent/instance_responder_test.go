package agent

import (
	"net"
	"testing"
	"time"

	"github.com/fuchsia-oss/mdnscore/internal/addrbook"
	"github.com/fuchsia-oss/mdnscore/internal/nameutil"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

func newReadyInstanceResponder() *InstanceResponder {
	r := NewInstanceResponder(PublishedInstance{
		Instance: "Printer",
		Service:  "_ipp._tcp.local.",
		Subtypes: []string{"print"},
		Port:     631,
		TXT:      []string{"txtvers=1"},
	})
	r.MarkReady("Printer")
	return r
}

func TestInstanceResponder_AnswersServiceEnumeration(t *testing.T) {
	h := newFakeHost("host")
	r := newReadyInstanceResponder()

	q := &wire.Message{Questions: []wire.Question{{Name: nameutil.ServicesEnumerationName, Type: wire.TypePTR}}}
	r.HandleMessage(h, q, 1, false, nil)

	answers := h.allAnswers(h.addr())
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(answers))
	}
	ptr, ok := answers[0].Data.(wire.PTR)
	if !ok || ptr.Target.String() != "_ipp._tcp.local." {
		t.Fatalf("answer = %+v, want PTR to _ipp._tcp.local.", answers[0])
	}
}

func TestInstanceResponder_AnswersServiceQueryWithSRVAndTXT(t *testing.T) {
	h := newFakeHost("host")
	r := newReadyInstanceResponder()

	q := &wire.Message{Questions: []wire.Question{{Name: wire.NewName("_ipp._tcp.local."), Type: wire.TypePTR}}}
	r.HandleMessage(h, q, 1, false, nil)

	answers := h.allAnswers(h.addr())
	additionals := h.out[h.addr()].additionals
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1 (PTR)", len(answers))
	}
	if len(additionals) != 2 {
		t.Fatalf("got %d additionals, want 2 (SRV + TXT)", len(additionals))
	}
	foundSRV, foundTXT := false, false
	for _, rec := range additionals {
		switch rec.Data.(type) {
		case wire.SRV:
			foundSRV = true
		case wire.TXT:
			foundTXT = true
		}
	}
	if !foundSRV || !foundTXT {
		t.Fatalf("missing SRV or TXT additional: SRV=%v TXT=%v", foundSRV, foundTXT)
	}
}

func TestInstanceResponder_IgnoresQueriesBeforeReady(t *testing.T) {
	h := newFakeHost("host")
	r := NewInstanceResponder(PublishedInstance{Instance: "Printer", Service: "_ipp._tcp.local.", Port: 631})
	q := &wire.Message{Questions: []wire.Question{{Name: wire.NewName("_ipp._tcp.local."), Type: wire.TypePTR}}}
	r.HandleMessage(h, q, 1, false, nil)
	if got := len(h.allAnswers(h.addr())); got != 0 {
		t.Fatalf("got %d answers before MarkReady, want 0", got)
	}
}

func TestInstanceResponder_StopSendsGoodbyePTR(t *testing.T) {
	h := newFakeHost("host")
	r := newReadyInstanceResponder()
	r.Stop(h)
	answers := h.allAnswers(h.addr())
	if len(answers) != 1 || answers[0].TTL != 0 {
		t.Fatalf("Stop answers = %+v, want one ttl=0 PTR goodbye", answers)
	}
}

func TestInstanceResponder_AnnouncementSequenceDoublesUpToFourSeconds(t *testing.T) {
	h := newFakeHost("host")
	r := newReadyInstanceResponder()
	r.Start(h)
	h.advanceTo(h.now, r)

	if got := len(h.allAnswers(h.addr())); got != 1 {
		t.Fatalf("announcement at t=0: got %d answers, want 1", got)
	}

	wantDelays := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	at := h.now
	for i, d := range wantDelays {
		h.reset()
		at = at.Add(d)
		h.advanceTo(at, r)
		if got := len(h.allAnswers(h.addr())); got != 1 {
			t.Fatalf("announcement %d at +%v: got %d answers, want 1", i+1, d, got)
		}
	}

	// No further announcement should fire after the fourth.
	h.reset()
	h.advanceTo(at.Add(10*time.Second), r)
	if got := len(h.allAnswers(h.addr())); got != 0 {
		t.Fatalf("got %d answers after announcement sequence ended, want 0", got)
	}
}

func TestInstanceResponder_MulticastThrottleCoalesces(t *testing.T) {
	h := newFakeHost("host")
	r := newReadyInstanceResponder()

	q := &wire.Message{Questions: []wire.Question{{Name: wire.NewName("_ipp._tcp.local."), Type: wire.TypePTR}}}

	// First multicast question answers immediately.
	r.HandleMessage(h, q, 1, false, nil)
	if got := len(h.allAnswers(h.addr())); got != 1 {
		t.Fatalf("first question: got %d answers, want 1", got)
	}
	h.reset()

	// A second multicast question inside the 1s window is coalesced: no
	// immediate answer, but a send timer gets scheduled.
	h.advanceTo(h.now.Add(200*time.Millisecond), r)
	r.HandleMessage(h, q, 1, false, nil)
	if got := len(h.allAnswers(h.addr())); got != 0 {
		t.Fatalf("coalesced question: got %d immediate answers, want 0", got)
	}
	if len(h.timers) == 0 {
		t.Fatalf("expected a throttled send timer to be scheduled")
	}

	// Once the throttle window elapses, the coalesced answer fires exactly
	// once.
	h.advanceTo(h.now.Add(time.Second), r)
	if got := len(h.allAnswers(h.addr())); got != 1 {
		t.Fatalf("after throttle window: got %d answers, want 1", got)
	}
}

func TestInstanceResponder_UnicastRepliesNeverThrottled(t *testing.T) {
	h := newFakeHost("host")
	r := newReadyInstanceResponder()

	source := &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 51234}
	q := &wire.Message{Questions: []wire.Question{{Name: wire.NewName("_ipp._tcp.local."), Type: wire.TypePTR}}}

	r.HandleMessage(h, q, 1, false, source)
	r.HandleMessage(h, q, 1, false, source)
	r.HandleMessage(h, q, 1, false, source)

	addr := addrbook.ReplyAddress{InterfaceIndex: 1, V6: false, Unicast: source}
	if got := len(h.allAnswers(addr)); got != 3 {
		t.Fatalf("got %d unicast answers across 3 questions, want 3 (never throttled)", got)
	}
}

