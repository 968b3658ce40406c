package agent

import (
	"net"
	"sort"
	"time"

	"github.com/fuchsia-oss/mdnscore/internal/addrbook"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// outbound captures everything enqueued for a single ReplyAddress during a
// dispatch round, mirroring the accumulation map AgentHost keeps for real.
type outbound struct {
	questions   []wire.Question
	answers     []wire.ResourceRecord
	authorities []wire.ResourceRecord
	additionals []wire.ResourceRecord
}

// fakeHost is a minimal, single-threaded stand-in for AgentHost: a manual
// clock, a map of pending timers, and an outbound accumulation map keyed by
// ReplyAddress, just enough for an Agent under test to run its full
// lifecycle without any networking.
type fakeHost struct {
	now        time.Time
	localName  wire.Name
	interfaces []net.Interface
	replyAddrs []addrbook.ReplyAddress

	timers map[TimerID]time.Time
	out    map[addrbook.ReplyAddress]*outbound
}

func newFakeHost(localName string) *fakeHost {
	return &fakeHost{
		now:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		localName: wire.NewName(localName),
		replyAddrs: []addrbook.ReplyAddress{
			{InterfaceIndex: 1, V6: false},
		},
		timers: make(map[TimerID]time.Time),
		out:    make(map[addrbook.ReplyAddress]*outbound),
	}
}

func (h *fakeHost) Now() time.Time              { return h.now }
func (h *fakeHost) LocalHostName() wire.Name     { return h.localName }
func (h *fakeHost) Interfaces() []net.Interface  { return h.interfaces }
func (h *fakeHost) AllReplyAddresses() []addrbook.ReplyAddress {
	return h.replyAddrs
}

func (h *fakeHost) ScheduleAt(id TimerID, t time.Time) {
	h.timers[id] = t
}

func (h *fakeHost) CancelTimer(id TimerID) {
	delete(h.timers, id)
}

func (h *fakeHost) bucket(addr addrbook.ReplyAddress) *outbound {
	b, ok := h.out[addr]
	if !ok {
		b = &outbound{}
		h.out[addr] = b
	}
	return b
}

func (h *fakeHost) Enqueue(addr addrbook.ReplyAddress, section Section, rec wire.ResourceRecord) {
	b := h.bucket(addr)
	switch section {
	case SectionAnswer:
		b.answers = append(b.answers, rec)
	case SectionAuthority:
		b.authorities = append(b.authorities, rec)
	case SectionAdditional:
		b.additionals = append(b.additionals, rec)
	}
}

func (h *fakeHost) Query(addr addrbook.ReplyAddress, q wire.Question) {
	b := h.bucket(addr)
	b.questions = append(b.questions, q)
}

// advanceTo moves the clock to t and fires, in deadline order, every timer
// now due. A handler may reschedule or cancel timers as it runs; firing
// continues until no timer remains at or before t.
func (h *fakeHost) advanceTo(t time.Time, a Agent) {
	h.now = t
	for {
		id, due, ok := h.nextTimer()
		if !ok || due.After(t) {
			return
		}
		delete(h.timers, id)
		a.HandleTimer(h, id)
	}
}

func (h *fakeHost) nextTimer() (TimerID, time.Time, bool) {
	if len(h.timers) == 0 {
		return 0, time.Time{}, false
	}
	ids := make([]TimerID, 0, len(h.timers))
	for id := range h.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return h.timers[ids[i]].Before(h.timers[ids[j]]) })
	best := ids[0]
	return best, h.timers[best], true
}

func (h *fakeHost) allAnswers(addr addrbook.ReplyAddress) []wire.ResourceRecord {
	b, ok := h.out[addr]
	if !ok {
		return nil
	}
	return b.answers
}

func (h *fakeHost) allAuthorities(addr addrbook.ReplyAddress) []wire.ResourceRecord {
	b, ok := h.out[addr]
	if !ok {
		return nil
	}
	return b.authorities
}

func (h *fakeHost) reset() {
	h.out = make(map[addrbook.ReplyAddress]*outbound)
}

func (h *fakeHost) addr() addrbook.ReplyAddress {
	return h.replyAddrs[0]
}
