package agent

import (
	"testing"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

func TestAddressResponder_IgnoresQueriesBeforeReady(t *testing.T) {
	h := newFakeHost("host")
	r := NewAddressResponder()
	q := &wire.Message{Questions: []wire.Question{{Name: h.LocalHostName(), Type: wire.TypeA}}}
	r.HandleMessage(h, q, 1, false, nil)
	if got := len(h.allAnswers(h.addr())); got != 0 {
		t.Fatalf("got %d answers before MarkReady, want 0", got)
	}
}

func TestAddressResponder_AnswersANYWithBothFamilies(t *testing.T) {
	h := newFakeHost("host")
	r := NewAddressResponder()
	r.MarkReady()

	q := &wire.Message{Questions: []wire.Question{{Name: h.LocalHostName(), Type: wire.TypeANY}}}
	r.HandleMessage(h, q, 1, false, nil)

	answers := h.allAnswers(h.addr())
	if len(answers) != 2 {
		t.Fatalf("got %d answers, want 2 (A + AAAA placeholders)", len(answers))
	}
	sawA, sawAAAA := false, false
	for _, rec := range answers {
		if !rec.IsAddressPlaceholder() {
			t.Fatalf("answer %+v is not a placeholder", rec)
		}
		switch rec.Type {
		case wire.TypeA:
			sawA = true
		case wire.TypeAAAA:
			sawAAAA = true
		}
	}
	if !sawA || !sawAAAA {
		t.Fatalf("missing A or AAAA placeholder: A=%v AAAA=%v", sawA, sawAAAA)
	}
}

func TestAddressResponder_IgnoresUnrelatedName(t *testing.T) {
	h := newFakeHost("host")
	r := NewAddressResponder()
	r.MarkReady()
	q := &wire.Message{Questions: []wire.Question{{Name: wire.NewName("other.local"), Type: wire.TypeA}}}
	r.HandleMessage(h, q, 1, false, nil)
	if got := len(h.allAnswers(h.addr())); got != 0 {
		t.Fatalf("got %d answers for unrelated name, want 0", got)
	}
}
