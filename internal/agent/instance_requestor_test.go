package agent

import (
	"net"
	"testing"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

type recordingSubscriber struct {
	discovered []DiscoveredInstance
	changed    []DiscoveredInstance
	lost       []DiscoveredInstance
}

func (s *recordingSubscriber) InstanceDiscovered(inst DiscoveredInstance) {
	s.discovered = append(s.discovered, inst)
}
func (s *recordingSubscriber) InstanceChanged(inst DiscoveredInstance) {
	s.changed = append(s.changed, inst)
}
func (s *recordingSubscriber) InstanceLost(inst DiscoveredInstance) {
	s.lost = append(s.lost, inst)
}

func ptrAnswer(service, instance string, ttl uint32) wire.ResourceRecord {
	return wire.NewRecord(wire.NewName(service), true, ttl, wire.PTR{Target: wire.NewName(instance)})
}

func srvAnswer(instance, target string, port uint16, ttl uint32) wire.ResourceRecord {
	return wire.NewRecord(wire.NewName(instance), true, ttl, wire.SRV{Port: port, Target: wire.NewName(target)})
}

func txtAnswer(instance string, strs []string, ttl uint32) wire.ResourceRecord {
	return wire.NewRecord(wire.NewName(instance), true, ttl, wire.TXT{Strings: strs})
}

func aAnswer(target string, ip net.IP, ttl uint32) wire.ResourceRecord {
	return wire.NewRecord(wire.NewName(target), true, ttl, wire.A{Addr: ip})
}

func TestInstanceRequestor_DiscoversInstanceOnceFullyResolved(t *testing.T) {
	h := newFakeHost("me")
	sub := &recordingSubscriber{}
	r := NewInstanceRequestor("_ipp._tcp.local.", nil)
	r.AddSubscriber(sub)
	r.Start(h)

	msg := &wire.Message{
		Header: wire.Header{Flags: wire.FlagResponse},
		Answers: []wire.ResourceRecord{
			ptrAnswer("_ipp._tcp.local.", "Printer._ipp._tcp.local.", wire.ShortTTL),
			srvAnswer("Printer._ipp._tcp.local.", "printer.local.", 631, wire.ShortTTL),
			txtAnswer("Printer._ipp._tcp.local.", []string{"txtvers=1"}, wire.ShortTTL),
			aAnswer("printer.local.", net.IPv4(10, 0, 0, 7), wire.LongTTL),
		},
	}
	r.HandleMessage(h, msg, 1, false, nil)

	if len(sub.discovered) != 1 {
		t.Fatalf("got %d InstanceDiscovered calls, want 1", len(sub.discovered))
	}
	got := sub.discovered[0]
	if got.Instance != "Printer" || got.Target != "printer.local." || got.Port != 631 {
		t.Fatalf("discovered = %+v, unexpected fields", got)
	}
	if got.V4 == nil || !got.V4.Equal(net.IPv4(10, 0, 0, 7)) {
		t.Fatalf("discovered.V4 = %v, want 10.0.0.7", got.V4)
	}
	if len(sub.changed) != 0 {
		t.Fatalf("got %d InstanceChanged calls before any change, want 0", len(sub.changed))
	}
}

func TestInstanceRequestor_NoDiscoveryWithoutAddress(t *testing.T) {
	h := newFakeHost("me")
	sub := &recordingSubscriber{}
	r := NewInstanceRequestor("_ipp._tcp.local.", nil)
	r.AddSubscriber(sub)
	r.Start(h)

	msg := &wire.Message{
		Answers: []wire.ResourceRecord{
			ptrAnswer("_ipp._tcp.local.", "Printer._ipp._tcp.local.", wire.ShortTTL),
			srvAnswer("Printer._ipp._tcp.local.", "printer.local.", 631, wire.ShortTTL),
		},
	}
	r.HandleMessage(h, msg, 1, false, nil)
	if len(sub.discovered) != 0 {
		t.Fatalf("got %d InstanceDiscovered calls without an address, want 0", len(sub.discovered))
	}
}

func TestInstanceRequestor_ChangedOnPortUpdate(t *testing.T) {
	h := newFakeHost("me")
	sub := &recordingSubscriber{}
	r := NewInstanceRequestor("_ipp._tcp.local.", nil)
	r.AddSubscriber(sub)
	r.Start(h)

	base := []wire.ResourceRecord{
		ptrAnswer("_ipp._tcp.local.", "Printer._ipp._tcp.local.", wire.ShortTTL),
		srvAnswer("Printer._ipp._tcp.local.", "printer.local.", 631, wire.ShortTTL),
		aAnswer("printer.local.", net.IPv4(10, 0, 0, 7), wire.LongTTL),
	}
	r.HandleMessage(h, &wire.Message{Answers: base}, 1, false, nil)

	updated := []wire.ResourceRecord{
		srvAnswer("Printer._ipp._tcp.local.", "printer.local.", 9100, wire.ShortTTL),
	}
	r.HandleMessage(h, &wire.Message{Answers: updated}, 1, false, nil)

	if len(sub.changed) != 1 {
		t.Fatalf("got %d InstanceChanged calls, want 1", len(sub.changed))
	}
	if sub.changed[0].Port != 9100 {
		t.Fatalf("changed port = %d, want 9100", sub.changed[0].Port)
	}
}

func TestInstanceRequestor_LostOnPTRExpiry(t *testing.T) {
	h := newFakeHost("me")
	sub := &recordingSubscriber{}
	r := NewInstanceRequestor("_ipp._tcp.local.", nil)
	r.AddSubscriber(sub)
	r.Start(h)

	r.HandleMessage(h, &wire.Message{Answers: []wire.ResourceRecord{
		ptrAnswer("_ipp._tcp.local.", "Printer._ipp._tcp.local.", wire.ShortTTL),
		srvAnswer("Printer._ipp._tcp.local.", "printer.local.", 631, wire.ShortTTL),
		aAnswer("printer.local.", net.IPv4(10, 0, 0, 7), wire.LongTTL),
	}}, 1, false, nil)

	if len(sub.discovered) != 1 {
		t.Fatalf("setup: got %d discovered, want 1", len(sub.discovered))
	}

	r.HandleMessage(h, &wire.Message{Answers: []wire.ResourceRecord{
		ptrAnswer("_ipp._tcp.local.", "Printer._ipp._tcp.local.", 0),
	}}, 1, false, nil)

	if len(sub.lost) != 1 {
		t.Fatalf("got %d InstanceLost calls, want 1", len(sub.lost))
	}
	if !sub.lost[0].Removed {
		t.Fatal("lost instance should have Removed=true")
	}
}

func TestInstanceRequestor_RemoveSubscriberFiresOnEmpty(t *testing.T) {
	h := newFakeHost("me")
	var emptied bool
	r := NewInstanceRequestor("_ipp._tcp.local.", func() { emptied = true })
	sub := &recordingSubscriber{}
	r.AddSubscriber(sub)
	r.Start(h)

	r.RemoveSubscriber(sub)
	if !emptied {
		t.Fatal("onEmpty did not fire after last subscriber removed")
	}
}

func TestInstanceRequestor_AddSubscriberSynthesizesKnownInstances(t *testing.T) {
	h := newFakeHost("me")
	first := &recordingSubscriber{}
	r := NewInstanceRequestor("_ipp._tcp.local.", nil)
	r.AddSubscriber(first)
	r.Start(h)

	r.HandleMessage(h, &wire.Message{Answers: []wire.ResourceRecord{
		ptrAnswer("_ipp._tcp.local.", "Printer._ipp._tcp.local.", wire.ShortTTL),
		srvAnswer("Printer._ipp._tcp.local.", "printer.local.", 631, wire.ShortTTL),
		aAnswer("printer.local.", net.IPv4(10, 0, 0, 7), wire.LongTTL),
	}}, 1, false, nil)

	late := &recordingSubscriber{}
	r.AddSubscriber(late)
	if len(late.discovered) != 1 {
		t.Fatalf("late subscriber got %d synthesized discoveries, want 1", len(late.discovered))
	}
}
