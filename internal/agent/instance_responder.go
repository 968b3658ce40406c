package agent

import (
	"net"
	"time"

	"github.com/fuchsia-oss/mdnscore/internal/addrbook"
	"github.com/fuchsia-oss/mdnscore/internal/nameutil"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// announceTimerID drives InstanceResponder's own startup announcement
// sequence; throttle-related timers are allocated above throttleTimerBase so
// the two schemes can never collide.
const (
	announceTimerID   TimerID = 1
	throttleTimerBase TimerID = 1 << 16
)

// throttleCleanupDelay bounds how long a subtype's throttle bookkeeping
// survives after its last multicast, so the map doesn't grow across the
// lifetime of a long-running responder (spec §4.6, §9).
const throttleCleanupDelay = time.Minute

// throttleWindow is the minimum spacing RFC 6762 §6.2 requires between two
// multicast answers for the same record set.
const throttleWindow = time.Second

// maxSenderHints bounds how many querier addresses are accumulated per
// throttle window before being handed to the Publisher (spec §4.6: "cap
// 64").
const maxSenderHints = 64

type throttlePhase int

const (
	throttleIdle throttlePhase = iota
	throttlePending
)

// throttleEntry is the per-subtype multicast rate-limit state InstanceResponder
// keeps (spec §4.6 "throttle state": either a pending marker or the timestamp
// of the most recent multicast send), plus the querier addresses observed
// since the last Publisher call.
type throttleEntry struct {
	phase      throttlePhase
	lastSent   time.Time
	hasSent    bool
	sendTimer  TimerID
	cleanTimer TimerID
	addr       addrbook.ReplyAddress
	ptrName    wire.Name
	senders    []net.IP
}

// InstanceResponder answers PTR/SRV/TXT queries, and DNS-SD service
// enumeration queries, for a published service instance once its
// InstanceProber has finished probing (spec §4.7). It also owns the
// instance's startup announcement sequence and the per-subtype multicast
// throttle (spec §4.6), and asks a Publisher for the actual record content
// of every announcement and answer (spec §6 Publisher collaborator).
type InstanceResponder struct {
	inst      PublishedInstance
	publisher Publisher
	fullName  wire.Name
	ready     bool

	announceSent int

	throttles map[string]*throttleEntry
	nextTimer TimerID
	timerKeys map[TimerID]string // timer id -> subtype key ("" for the main type)
}

// NewInstanceResponder creates a responder for inst. Call MarkReady with
// the instance's final (possibly renamed) full name once the corresponding
// InstanceProber's onReady callback fires, before the responder is added to
// the host — Start begins the announcement sequence immediately.
func NewInstanceResponder(inst PublishedInstance) *InstanceResponder {
	return &InstanceResponder{
		inst:      inst,
		publisher: inst.ResolvePublisher(),
		throttles: make(map[string]*throttleEntry),
		timerKeys: make(map[TimerID]string),
		nextTimer: throttleTimerBase,
	}
}

// MarkReady enables the responder under the given final instance label.
func (r *InstanceResponder) MarkReady(finalInstance string) {
	r.inst.Instance = finalInstance
	r.fullName = nameutil.InstanceFullName(finalInstance, r.inst.Service)
	r.ready = true
}

// Start begins the announcement sequence (spec §4.6): one announcement now,
// then at +1s, +2s, +4s (doubling, capped at 4s).
func (r *InstanceResponder) Start(h Host) {
	if !r.ready {
		return
	}
	r.announceSent = 0
	h.ScheduleAt(announceTimerID, h.Now())
}

// Reannounce restarts the announcement sequence from its first 1s step,
// e.g. after the publication content changes.
func (r *InstanceResponder) Reannounce(h Host) {
	r.announceSent = 0
	h.ScheduleAt(announceTimerID, h.Now().Add(announceDelays[0]))
}

// SetSubtypes replaces the set of subtypes this instance answers PTR
// queries under. Any subtype present before but absent from newSubtypes is
// withdrawn with a single ttl=0 PTR goodbye, then the announcement
// sequence restarts from its first step (spec §4.6).
func (r *InstanceResponder) SetSubtypes(h Host, newSubtypes []string) {
	if r.ready {
		keep := make(map[string]struct{}, len(newSubtypes))
		for _, sub := range newSubtypes {
			keep[sub] = struct{}{}
		}
		for _, sub := range r.inst.Subtypes {
			if _, ok := keep[sub]; ok {
				continue
			}
			name := nameutil.SubtypeFullName(sub, r.inst.Service)
			for _, addr := range h.AllReplyAddresses() {
				h.Enqueue(addr, SectionAnswer, wire.NewRecord(name, false, 0, wire.PTR{Target: r.fullName}))
			}
		}
	}
	r.inst.Subtypes = newSubtypes
	r.Reannounce(h)
}

func (r *InstanceResponder) HandleTimer(h Host, id TimerID) {
	if id == announceTimerID {
		r.sendAnnouncement(h)
		r.announceSent++
		if r.announceSent > len(announceDelays) {
			return
		}
		h.ScheduleAt(announceTimerID, h.Now().Add(announceDelays[r.announceSent-1]))
		return
	}
	subtype, ok := r.timerKeys[id]
	if !ok {
		return
	}
	delete(r.timerKeys, id)
	entry := r.throttles[subtype]
	if entry == nil {
		return
	}
	switch id {
	case entry.sendTimer:
		senders := entry.senders
		entry.senders = nil
		r.sendServiceAnswer(h, entry.addr, entry.ptrName, subtype, true, senders)
		entry.phase = throttleIdle
		entry.lastSent = h.Now()
		entry.hasSent = true
		r.scheduleCleanup(h, subtype, entry)
	case entry.cleanTimer:
		if entry.phase == throttleIdle {
			delete(r.throttles, subtype)
		}
	}
}

func (r *InstanceResponder) sendAnnouncement(h Host) {
	for _, addr := range h.AllReplyAddresses() {
		r.sendServiceAnswer(h, addr, nameutil.ServiceFullName(r.inst.Service), "", false, nil)
	}
}

func (r *InstanceResponder) HandleMessage(h Host, in *wire.Message, ifaceIndex int, v6 bool, source *net.UDPAddr) {
	if !r.ready || !in.IsQuery() {
		return
	}
	serviceName := nameutil.ServiceFullName(r.inst.Service)

	for _, q := range in.Questions {
		switch {
		case q.Name.Equal(nameutil.ServicesEnumerationName) && (q.Type == wire.TypePTR || q.Type == wire.TypeANY):
			addr := replyAddressFor(h, ifaceIndex, v6, q, source)
			h.Enqueue(addr, SectionAnswer, wire.NewRecord(nameutil.ServicesEnumerationName, false, wire.ShortTTL,
				wire.PTR{Target: serviceName}))

		case q.Name.Equal(serviceName) && (q.Type == wire.TypePTR || q.Type == wire.TypeANY):
			r.answerThrottled(h, ifaceIndex, v6, q, source, serviceName, "")

		case r.subtypeOf(q.Name) != "" && (q.Type == wire.TypePTR || q.Type == wire.TypeANY):
			r.answerThrottled(h, ifaceIndex, v6, q, source, q.Name, r.subtypeOf(q.Name))

		case q.Name.Equal(r.fullName) && (q.Type == wire.TypeSRV || q.Type == wire.TypeANY):
			r.answerThrottled(h, ifaceIndex, v6, q, source, serviceName, "")

		case q.Name.Equal(r.fullName) && (q.Type == wire.TypeTXT || q.Type == wire.TypeANY):
			addr := replyAddressFor(h, ifaceIndex, v6, q, source)
			senders := senderHint(source)
			spec := r.publisher.GetPublication(true, "", senders)
			if spec == nil {
				continue
			}
			h.Enqueue(addr, SectionAnswer, r.txtRecord(spec))
		}
	}
}

// senderHint returns the single-element sender-address slice for an
// unthrottled reply, or nil if source carries no address (e.g. a
// synthetic test message).
func senderHint(source *net.UDPAddr) []net.IP {
	if source == nil {
		return nil
	}
	return []net.IP{source.IP}
}

// answerThrottled replies immediately if the reply is unicast (never
// throttled per spec §4.6); a multicast reply instead goes through the
// per-subtype throttle so the link never sees more than one multicast
// answer per second for the same subtype.
func (r *InstanceResponder) answerThrottled(h Host, ifaceIndex int, v6 bool, q wire.Question, source *net.UDPAddr, ptrName wire.Name, subtype string) {
	addr := replyAddressFor(h, ifaceIndex, v6, q, source)
	if addr.Unicast != nil {
		r.sendServiceAnswer(h, addr, ptrName, subtype, true, senderHint(source))
		return
	}
	r.scheduleMulticast(h, addr, ptrName, subtype, source)
}

func (r *InstanceResponder) scheduleMulticast(h Host, addr addrbook.ReplyAddress, ptrName wire.Name, subtype string, source *net.UDPAddr) {
	entry := r.throttles[subtype]
	if entry == nil {
		entry = &throttleEntry{}
		r.throttles[subtype] = entry
	}
	entry.addr = addr
	entry.ptrName = ptrName
	if source != nil && len(entry.senders) < maxSenderHints {
		entry.senders = append(entry.senders, source.IP)
	}

	if entry.phase == throttlePending {
		return // already scheduled; this question just rides along
	}

	now := h.Now()
	if entry.hasSent && now.Before(entry.lastSent.Add(throttleWindow)) {
		entry.phase = throttlePending
		entry.sendTimer = r.allocTimer(subtype)
		h.ScheduleAt(entry.sendTimer, entry.lastSent.Add(throttleWindow))
		return
	}

	senders := entry.senders
	entry.senders = nil
	r.sendServiceAnswer(h, addr, ptrName, subtype, true, senders)
	entry.lastSent = now
	entry.hasSent = true
	entry.phase = throttleIdle
	r.scheduleCleanup(h, subtype, entry)
}

func (r *InstanceResponder) scheduleCleanup(h Host, subtype string, entry *throttleEntry) {
	if entry.cleanTimer != 0 {
		h.CancelTimer(entry.cleanTimer)
		delete(r.timerKeys, entry.cleanTimer)
	}
	entry.cleanTimer = r.allocTimer(subtype)
	h.ScheduleAt(entry.cleanTimer, h.Now().Add(throttleCleanupDelay))
}

func (r *InstanceResponder) allocTimer(subtype string) TimerID {
	r.nextTimer++
	id := r.nextTimer
	r.timerKeys[id] = subtype
	return id
}

// sendServiceAnswer asks the Publisher for this tick's content and, unless
// it returns nil (spec §4.6: "emit nothing this tick"), enqueues the PTR
// answer plus the SRV/TXT additionals it describes.
func (r *InstanceResponder) sendServiceAnswer(h Host, addr addrbook.ReplyAddress, ptrName wire.Name, subtype string, query bool, senders []net.IP) {
	spec := r.publisher.GetPublication(query, subtype, senders)
	if spec == nil {
		return
	}
	h.Enqueue(addr, SectionAnswer, wire.NewRecord(ptrName, false, spec.PTRTTL, wire.PTR{Target: r.fullName}))
	r.addSRVAndTXT(h, addr, spec)
}

func (r *InstanceResponder) addSRVAndTXT(h Host, addr addrbook.ReplyAddress, spec *PublicationSpec) {
	h.Enqueue(addr, SectionAdditional, wire.NewRecord(r.fullName, true, spec.SRVTTL, wire.SRV{
		Priority: spec.SRVPriority, Weight: spec.SRVWeight, Port: spec.Port, Target: h.LocalHostName(),
	}))
	h.Enqueue(addr, SectionAdditional, r.txtRecord(spec))
}

func (r *InstanceResponder) txtRecord(spec *PublicationSpec) wire.ResourceRecord {
	strs := spec.Text
	if len(strs) == 0 {
		strs = []string{""}
	}
	return wire.NewRecord(r.fullName, true, spec.TXTTTL, wire.TXT{Strings: strs})
}

// subtypeOf returns the bare subtype label name matches as a subtype PTR
// query for this instance's service, or "" if it doesn't match any.
func (r *InstanceResponder) subtypeOf(name wire.Name) string {
	for _, sub := range r.inst.Subtypes {
		if name.Equal(nameutil.SubtypeFullName(sub, r.inst.Service)) {
			return sub
		}
	}
	return ""
}

// Stop withdraws the publication, giving it one last, unthrottled
// goodbye: a PTR answer plus SRV/TXT additionals all carrying ttl=0 (spec
// §4.6: "all three section TTLs forced to zero").
func (r *InstanceResponder) Stop(h Host) {
	h.CancelTimer(announceTimerID)
	for id := range r.timerKeys {
		h.CancelTimer(id)
	}
	if !r.ready {
		return
	}
	for _, addr := range h.AllReplyAddresses() {
		h.Enqueue(addr, SectionAnswer, wire.NewRecord(nameutil.ServiceFullName(r.inst.Service), false, 0, wire.PTR{Target: r.fullName}))
		h.Enqueue(addr, SectionAdditional, wire.NewRecord(r.fullName, true, 0, wire.SRV{Target: h.LocalHostName()}))
		h.Enqueue(addr, SectionAdditional, wire.NewRecord(r.fullName, true, 0, wire.TXT{Strings: []string{""}}))
	}
}
