package wire

import (
	"net"
	"testing"
)

func sampleMessage() *Message {
	m := &Message{
		Header: Header{ID: 0},
	}
	m.SetResponse()
	m.Answers = []ResourceRecord{
		NewRecord(NewName("_test._tcp.local."), false, ShortTTL, PTR{Target: NewName("demo._test._tcp.local.")}),
	}
	m.Additionals = []ResourceRecord{
		NewRecord(NewName("demo._test._tcp.local."), true, ShortTTL, SRV{Priority: 0, Weight: 0, Port: 2525, Target: NewName("fuchsia.local.")}),
		NewRecord(NewName("demo._test._tcp.local."), true, ShortTTL, TXT{Strings: []string{""}}),
		NewRecord(NewName("fuchsia.local."), true, LongTTL, A{Addr: net.IPv4(192, 168, 1, 5)}),
	}
	return m
}

func TestRoundTrip(t *testing.T) {
	m := sampleMessage()
	b, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(got.Answers) != len(m.Answers) || len(got.Additionals) != len(m.Additionals) {
		t.Fatalf("section length mismatch: got %d/%d want %d/%d",
			len(got.Answers), len(got.Additionals), len(m.Answers), len(m.Additionals))
	}
	for i := range m.Answers {
		if !got.Answers[i].Equal(m.Answers[i]) {
			t.Errorf("answer %d: got %+v want %+v", i, got.Answers[i], m.Answers[i])
		}
	}
	for i := range m.Additionals {
		if !got.Additionals[i].Equal(m.Additionals[i]) {
			t.Errorf("additional %d: got %+v want %+v", i, got.Additionals[i], m.Additionals[i])
		}
	}
	if got.IsQuery() != m.IsQuery() {
		t.Errorf("query flag mismatch: got %v want %v", got.IsQuery(), m.IsQuery())
	}
}

func TestNameEqualityIsCaseInsensitive(t *testing.T) {
	a := NewName("Host.Local.")
	b := NewName("host.local.")
	if !a.Equal(b) {
		t.Errorf("expected %q to equal %q", a, b)
	}
	if a.foldedKey() != b.foldedKey() {
		t.Errorf("folded keys differ: %q vs %q", a.foldedKey(), b.foldedKey())
	}
}

func TestResourceRecordEqualAndHash(t *testing.T) {
	r1 := NewRecord(NewName("fuchsia.local."), true, LongTTL, A{Addr: net.IPv4(10, 0, 0, 1)})
	r2 := NewRecord(NewName("Fuchsia.Local."), true, LongTTL, A{Addr: net.IPv4(10, 0, 0, 1)})
	if !r1.Equal(r2) {
		t.Fatalf("expected records to be equal")
	}
	if r1.Hash() != r2.Hash() {
		t.Fatalf("expected equal records to hash the same")
	}

	r3 := NewRecord(NewName("fuchsia.local."), true, LongTTL, A{Addr: net.IPv4(10, 0, 0, 2)})
	if r1.Equal(r3) {
		t.Fatalf("expected records with different addresses to differ")
	}
}

func TestAddressPlaceholderFixupTarget(t *testing.T) {
	p := NewAddressPlaceholder(NewName("fuchsia.local."), false, LongTTL)
	if !p.IsAddressPlaceholder() {
		t.Fatalf("expected placeholder record")
	}
	if p.Type != TypeA {
		t.Fatalf("expected TypeA, got %d", p.Type)
	}
}
