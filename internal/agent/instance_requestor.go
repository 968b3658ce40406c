package agent

import (
	"net"
	"time"

	"github.com/fuchsia-oss/mdnscore/internal/nameutil"
	"github.com/fuchsia-oss/mdnscore/internal/renewer"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

const (
	requestorRequeryTimerID TimerID = 1
	requestorRenewTimerID   TimerID = 2
)

// requeryInitialDelay and requeryMaxDelay govern how often InstanceRequestor
// re-asks its browse question: the first re-query follows one second after
// Start, doubling thereafter up to a one-hour cap (spec §4.5). Re-queries
// continue whether or not any instances are known.
const (
	requeryInitialDelay = time.Second
	requeryMaxDelay     = time.Hour
)

// InstanceSubscriber receives discovery/change/loss notifications from an
// InstanceRequestor (spec §4.5). A subscriber attached after instances are
// already known is brought up to date with a synthesized Discovered call
// for each of them.
type InstanceSubscriber interface {
	InstanceDiscovered(inst DiscoveredInstance)
	InstanceChanged(inst DiscoveredInstance)
	InstanceLost(inst DiscoveredInstance)
}

type instanceInfo struct {
	fullName     wire.Name // original-case full name, as first observed
	instanceName string
	target       wire.Name
	priority     uint16
	weight       uint16
	port         uint16
	txt          []string
	isNew        bool
	dirty        bool
}

type targetInfo struct {
	v4    net.IP
	v6    net.IP
	keep  bool
	dirty bool
}

// InstanceRequestor discovers and maintains the set of service instances
// advertised for a service type on the link, notifying subscribers of
// discoveries, updates, and losses (spec §4.5). It owns its own
// ResourceRenewer so each discovered PTR/SRV/TXT/A/AAAA record gets
// refreshed before its TTL runs out, independent of the periodic browse
// re-query.
type InstanceRequestor struct {
	service     string
	serviceFull wire.Name

	subscribers map[InstanceSubscriber]struct{}
	onEmpty     func()

	// instances and targets are keyed by the case-folded full name (see
	// wire.Name.Fold), matching the case-insensitive comparison Equal and
	// ResourceRenewer's Key already use, so a record whose owner name
	// arrives with different casing across queries still resolves to the
	// same entry.
	instances map[wire.Name]*instanceInfo
	targets   map[wire.Name]*targetInfo

	renew        *renewer.ResourceRenewer
	requeryDelay time.Duration
}

// NewInstanceRequestor creates a browser for service. onEmpty is called
// once the subscriber set drops back to zero, so the owning host can
// remove and Stop this agent (spec: "if the set becomes empty, the
// requestor Quit-s itself").
func NewInstanceRequestor(service string, onEmpty func()) *InstanceRequestor {
	return &InstanceRequestor{
		service:      service,
		serviceFull:  nameutil.ServiceFullName(service),
		subscribers:  make(map[InstanceSubscriber]struct{}),
		instances:    make(map[wire.Name]*instanceInfo),
		targets:      make(map[wire.Name]*targetInfo),
		renew:        renewer.New(nil),
		requeryDelay: requeryInitialDelay,
		onEmpty:      onEmpty,
	}
}

// AddSubscriber attaches sub and immediately synthesizes an
// InstanceDiscovered callback for every already-known, fully-resolved
// instance, so a subscriber added late never misses what this requestor
// already knows.
func (r *InstanceRequestor) AddSubscriber(sub InstanceSubscriber) {
	r.subscribers[sub] = struct{}{}
	for _, inst := range r.instances {
		if inst.isNew {
			continue
		}
		t := r.targets[inst.target.Fold()]
		if t == nil || (t.v4 == nil && t.v6 == nil) {
			continue
		}
		sub.InstanceDiscovered(r.discoveredInstance(inst))
	}
}

// RemoveSubscriber detaches sub. If no subscribers remain, onEmpty fires so
// the host can withdraw this agent.
func (r *InstanceRequestor) RemoveSubscriber(sub InstanceSubscriber) {
	delete(r.subscribers, sub)
	if len(r.subscribers) == 0 && r.onEmpty != nil {
		r.onEmpty()
	}
}

func (r *InstanceRequestor) Start(h Host) {
	r.sendBrowseQuery(h)
	r.requeryDelay = requeryInitialDelay
	h.ScheduleAt(requestorRequeryTimerID, h.Now().Add(r.requeryDelay))
}

func (r *InstanceRequestor) sendBrowseQuery(h Host) {
	q := wire.Question{Name: r.serviceFull, Type: wire.TypePTR}
	for _, addr := range h.AllReplyAddresses() {
		h.Query(addr, q)
	}
}

func (r *InstanceRequestor) HandleTimer(h Host, id TimerID) {
	switch id {
	case requestorRequeryTimerID:
		r.sendBrowseQuery(h)
		r.requeryDelay *= 2
		if r.requeryDelay > requeryMaxDelay {
			r.requeryDelay = requeryMaxDelay
		}
		h.ScheduleAt(requestorRequeryTimerID, h.Now().Add(r.requeryDelay))
	case requestorRenewTimerID:
		r.pollRenewals(h)
	}
}

func (r *InstanceRequestor) pollRenewals(h Host) {
	now := h.Now()
	for _, ev := range r.renew.Poll(now) {
		r.handleRenewEvent(h, ev)
	}
	r.finalize(h)
	r.rescheduleRenewal(h)
}

func (r *InstanceRequestor) rescheduleRenewal(h Host) {
	deadline, ok := r.renew.NextDeadline()
	if !ok {
		h.CancelTimer(requestorRenewTimerID)
		return
	}
	h.ScheduleAt(requestorRenewTimerID, deadline)
}

func (r *InstanceRequestor) handleRenewEvent(h Host, ev renewer.Event) {
	switch ev.Key.Type {
	case wire.TypePTR:
		if ev.Expired {
			r.removeInstance(ev.Key.Name)
			return
		}
		r.sendBrowseQuery(h)
	case wire.TypeSRV:
		if ev.Expired {
			r.removeInstance(ev.Key.Name)
			return
		}
		r.queryInstance(h, ev.Key.Name, wire.TypeSRV)
	case wire.TypeTXT:
		if ev.Expired {
			if inst, ok := r.instances[ev.Key.Name]; ok {
				inst.txt = nil
				inst.dirty = true
			}
			return
		}
		r.queryInstance(h, ev.Key.Name, wire.TypeTXT)
	case wire.TypeA, wire.TypeAAAA:
		t, ok := r.targets[ev.Key.Name]
		if !ok {
			return
		}
		if ev.Expired {
			if ev.Key.Type == wire.TypeA {
				t.v4 = nil
			} else {
				t.v6 = nil
			}
			t.dirty = true
			return
		}
		r.queryTarget(h, ev.Key.Name, ev.Key.Type)
	}
}

func (r *InstanceRequestor) queryInstance(h Host, instFull wire.Name, typ uint16) {
	q := wire.Question{Name: instFull, Type: typ}
	for _, addr := range h.AllReplyAddresses() {
		h.Query(addr, q)
	}
}

func (r *InstanceRequestor) queryTarget(h Host, target wire.Name, typ uint16) {
	q := wire.Question{Name: target, Type: typ}
	for _, addr := range h.AllReplyAddresses() {
		h.Query(addr, q)
	}
}

func (r *InstanceRequestor) HandleMessage(h Host, in *wire.Message, ifaceIndex int, v6 bool, source *net.UDPAddr) {
	now := h.Now()
	for _, rec := range in.Answers {
		r.applyRecord(rec, now)
	}
	for _, rec := range in.Additionals {
		r.applyRecord(rec, now)
	}
	r.finalize(h)
	r.rescheduleRenewal(h)
}

func (r *InstanceRequestor) applyRecord(rec wire.ResourceRecord, now time.Time) {
	switch body := rec.Data.(type) {
	case wire.PTR:
		r.applyPTR(rec, body, now)
	case wire.SRV:
		r.applySRV(rec, body, now)
	case wire.TXT:
		r.applyTXT(rec, body, now)
	case wire.A:
		r.applyAddress(rec, body.Addr, false, now)
	case wire.AAAA:
		r.applyAddress(rec, body.Addr, true, now)
	}
}

func (r *InstanceRequestor) applyPTR(rec wire.ResourceRecord, body wire.PTR, now time.Time) {
	if !rec.Name.Equal(r.serviceFull) {
		return
	}
	instFull := body.Target
	key := instFull.Fold()
	if rec.TTL == 0 {
		r.removeInstance(key)
		return
	}
	if _, ok := r.instances[key]; !ok {
		name, _ := nameutil.SplitInstanceFullName(instFull, r.service)
		r.instances[key] = &instanceInfo{fullName: instFull, instanceName: name, isNew: true}
	}
	r.renew.Track(wire.NewKey(instFull, wire.TypePTR), rec.TTL, now)
}

func (r *InstanceRequestor) applySRV(rec wire.ResourceRecord, body wire.SRV, now time.Time) {
	inst, ok := r.instances[rec.Name.Fold()]
	if !ok {
		return
	}
	if rec.TTL == 0 {
		r.removeInstance(rec.Name.Fold())
		return
	}
	if inst.target != body.Target || inst.priority != body.Priority ||
		inst.weight != body.Weight || inst.port != body.Port {
		inst.target = body.Target
		inst.priority = body.Priority
		inst.weight = body.Weight
		inst.port = body.Port
		inst.dirty = true
	}
	targetKey := body.Target.Fold()
	if _, ok := r.targets[targetKey]; !ok {
		r.targets[targetKey] = &targetInfo{}
	}
	r.renew.Track(rec.KeyOf(), rec.TTL, now)
}

func (r *InstanceRequestor) applyTXT(rec wire.ResourceRecord, body wire.TXT, now time.Time) {
	inst, ok := r.instances[rec.Name.Fold()]
	if !ok {
		return
	}
	if rec.TTL == 0 {
		if len(inst.txt) != 0 {
			inst.txt = nil
			inst.dirty = true
		}
		return
	}
	if !stringsEqual(inst.txt, body.Strings) {
		inst.txt = body.Strings
		inst.dirty = true
	}
	r.renew.Track(rec.KeyOf(), rec.TTL, now)
}

func (r *InstanceRequestor) applyAddress(rec wire.ResourceRecord, addr net.IP, v6 bool, now time.Time) {
	t, ok := r.targets[rec.Name.Fold()]
	if !ok {
		return
	}
	if rec.TTL == 0 {
		if v6 {
			t.v6 = nil
		} else {
			t.v4 = nil
		}
		t.dirty = true
		return
	}
	if v6 {
		if !t.v6.Equal(addr) {
			t.v6 = addr
			t.dirty = true
		}
	} else {
		if !t.v4.Equal(addr) {
			t.v4 = addr
			t.dirty = true
		}
	}
	r.renew.Track(rec.KeyOf(), rec.TTL, now)
}

// removeInstance drops the instance keyed by key (a folded full name),
// notifying subscribers of its loss if it had previously been announced as
// discovered.
func (r *InstanceRequestor) removeInstance(key wire.Name) {
	inst, ok := r.instances[key]
	if !ok {
		return
	}
	delete(r.instances, key)
	r.renew.Forget(wire.NewKey(inst.fullName, wire.TypePTR))
	r.renew.Forget(wire.NewKey(inst.fullName, wire.TypeSRV))
	r.renew.Forget(wire.NewKey(inst.fullName, wire.TypeTXT))
	if inst.isNew {
		return
	}
	di := r.discoveredInstance(inst)
	di.Removed = true
	for sub := range r.subscribers {
		sub.InstanceLost(di)
	}
}

// finalize walks every known instance once per inbound message (or once
// per renewal poll), firing Discovered/Changed notifications and garbage
// collecting targets no surviving instance references (spec §4.5
// EndOfMessage).
func (r *InstanceRequestor) finalize(h Host) {
	for _, t := range r.targets {
		t.keep = false
	}
	for _, inst := range r.instances {
		t := r.targets[inst.target.Fold()]
		if t != nil {
			t.keep = true
		}
		if t == nil || (t.v4 == nil && t.v6 == nil) {
			continue
		}
		di := r.discoveredInstance(inst)
		switch {
		case inst.isNew:
			inst.isNew = false
			for sub := range r.subscribers {
				sub.InstanceDiscovered(di)
			}
		case inst.dirty || t.dirty:
			for sub := range r.subscribers {
				sub.InstanceChanged(di)
			}
		}
		inst.dirty = false
	}
	for name, t := range r.targets {
		if !t.keep {
			delete(r.targets, name)
			continue
		}
		t.dirty = false
	}
}

func (r *InstanceRequestor) discoveredInstance(inst *instanceInfo) DiscoveredInstance {
	di := DiscoveredInstance{
		FullName: inst.fullName.String(),
		Instance: inst.instanceName,
		Service:  r.service,
		Target:   inst.target.String(),
		Port:     inst.port,
		TXT:      inst.txt,
	}
	if t, ok := r.targets[inst.target.Fold()]; ok {
		di.V4 = t.v4
		di.V6 = t.v6
	}
	return di
}

func (r *InstanceRequestor) Stop(h Host) {
	h.CancelTimer(requestorRequeryTimerID)
	h.CancelTimer(requestorRenewTimerID)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
