// Package host implements AgentHost: the single dispatch loop that owns
// every agent's lifecycle, timers, and outbound message accumulation, and
// exposes the operations a caller drives an mDNS engine through — Start,
// Stop, ResolveHostName, SubscribeToService, PublishServiceInstance (spec
// component AgentHost, spec §4.1/§5).
//
// Every agent method call happens on one goroutine. Public methods on Host
// are safe to call from any goroutine: each one hands a closure to the
// dispatch loop over a channel and waits for it to run, so the agents
// themselves never need locks of their own (spec §5, single-threaded
// cooperative concurrency).
package host

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fuchsia-oss/mdnscore/internal/addrbook"
	"github.com/fuchsia-oss/mdnscore/internal/agent"
	"github.com/fuchsia-oss/mdnscore/internal/ifacesource"
	"github.com/fuchsia-oss/mdnscore/internal/transceiver"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// Transport is the subset of *transceiver.Transceiver AgentHost needs. It
// exists so hosttest can supply a fake transport in tests without opening
// real sockets; *transceiver.Transceiver satisfies it without any explicit
// declaration.
type Transport interface {
	AddInterface(iface net.Interface) error
	RemoveInterface(index int)
	Interfaces() []net.Interface
	Send(addr addrbook.ReplyAddress, msg *wire.Message) error
	Inbound() <-chan transceiver.Inbound
	Close() error
}

type lifecycleState int

const (
	stateNotStarted lifecycleState = iota
	stateProbing
	stateActive
)

type agentID uint64

type hostError string

func (e hostError) Error() string { return string(e) }

const (
	errNotActive        hostError = "agent host is not active yet"
	errAlreadyPublished hostError = "already published locally"
	errNotPublished     hostError = "not published"
)

// outboundMsg accumulates one destination's worth of questions and records
// across every agent touched during one dispatch round, so they go out as
// a single DNS message (spec §4.1).
type outboundMsg struct {
	questions   []wire.Question
	answers     []wire.ResourceRecord
	authorities []wire.ResourceRecord
	additionals []wire.ResourceRecord
}

type publishedEntry struct {
	proberID    agentID
	responderID agentID
}

type requestorEntry struct {
	id  agentID
	req *agent.InstanceRequestor
}

// Host is the concrete AgentHost: it owns the agent registry, the timer
// queue, and the per-destination outbound accumulation, and drives all
// three from one goroutine.
type Host struct {
	transport Transport
	ifaceSrc  ifacesource.Source
	log       *zap.Logger
	clock     func() time.Time

	cmds chan func()
	done chan struct{}
	wg   sync.WaitGroup

	// Everything below is touched only on the dispatch goroutine.
	state     lifecycleState
	localBase string
	localName wire.Name

	addrResponder *agent.AddressResponder

	agents      map[agentID]agent.Agent
	nextAgentID agentID

	distributeDepth int
	pendingRemovals []agentID

	timerGen  map[timerKey]uint64
	timerHeap timerHeap

	outbound map[addrbook.ReplyAddress]*outboundMsg

	published  map[string]*publishedEntry
	requestors map[string]*requestorEntry
}

// Option configures a Host at construction time.
type Option func(*Host)

// WithLogger sets the logger Host uses for its own diagnostics (errors from
// agents flow back only through their result callbacks, never through the
// log).
func WithLogger(log *zap.Logger) Option {
	return func(h *Host) {
		if log != nil {
			h.log = log
		}
	}
}

// WithClock overrides Host's notion of "now", for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		if now != nil {
			h.clock = now
		}
	}
}

// New creates a Host and starts its dispatch goroutine. transport and
// ifaceSrc are the host's only collaborators with the outside world: a real
// caller passes a *transceiver.Transceiver and ifacesource.Default{};
// hosttest supplies fakes of both for unit tests.
func New(transport Transport, ifaceSrc ifacesource.Source, opts ...Option) *Host {
	h := &Host{
		transport:  transport,
		ifaceSrc:   ifaceSrc,
		log:        zap.NewNop(),
		clock:      time.Now,
		cmds:       make(chan func()),
		done:       make(chan struct{}),
		agents:     make(map[agentID]agent.Agent),
		timerGen:   make(map[timerKey]uint64),
		outbound:   make(map[addrbook.ReplyAddress]*outboundMsg),
		published:  make(map[string]*publishedEntry),
		requestors: make(map[string]*requestorEntry),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Host) now() time.Time { return h.clock() }

// run is the dispatch loop: the only goroutine that ever touches an agent
// or Host's internal state.
func (h *Host) run() {
	defer h.wg.Done()
	for {
		timer, timerC := h.armTimer()
		select {
		case <-h.done:
			stopTimer(timer)
			return
		case cmd := <-h.cmds:
			stopTimer(timer)
			cmd()
			h.flush()
		case in, ok := <-h.transport.Inbound():
			stopTimer(timer)
			if ok {
				h.handleInbound(in)
				h.flush()
			}
		case <-timerC:
			h.fireDueTimers(h.now())
			h.flush()
		}
	}
}

func (h *Host) armTimer() (*time.Timer, <-chan time.Time) {
	deadline, ok := h.nextDeadline()
	if !ok {
		return nil, nil
	}
	d := deadline.Sub(h.now())
	if d < 0 {
		d = 0
	}
	t := time.NewTimer(d)
	return t, t.C
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// send runs fn on the dispatch goroutine and blocks until it finishes,
// letting any public method read Host's internal state safely even though
// it's called from an arbitrary goroutine.
func (h *Host) send(fn func()) {
	result := make(chan struct{})
	select {
	case h.cmds <- func() { fn(); close(result) }:
	case <-h.done:
		return
	}
	select {
	case <-result:
	case <-h.done:
	}
}

// enterDistribution/exitDistribution bracket every point at which Host
// calls into one or more agents. While depth > 0, a removal request (an
// agent's own callback asking to be withdrawn) is queued rather than
// applied immediately, so an agent traversal never sees the registry
// mutate out from under it (spec §5: "no agent may be removed while a
// message is being distributed").
func (h *Host) enterDistribution() { h.distributeDepth++ }

func (h *Host) exitDistribution() {
	h.distributeDepth--
	if h.distributeDepth == 0 {
		h.drainPendingRemovals()
	}
}

func (h *Host) drainPendingRemovals() {
	pending := h.pendingRemovals
	h.pendingRemovals = nil
	for _, id := range pending {
		h.stopAgent(id)
	}
}

// addAgent registers a and starts it, returning the id Host will use to
// address it henceforth.
func (h *Host) addAgent(a agent.Agent) agentID {
	h.nextAgentID++
	id := h.nextAgentID
	h.agents[id] = a
	h.enterDistribution()
	a.Start(hostView{h, id})
	h.exitDistribution()
	return id
}

// removeAgent withdraws the agent named by id, giving it a chance to
// enqueue goodbye records via Stop. If called while a traversal is in
// progress, the removal is deferred until the traversal unwinds.
func (h *Host) removeAgent(id agentID) {
	if id == 0 {
		return
	}
	if h.distributeDepth > 0 {
		h.pendingRemovals = append(h.pendingRemovals, id)
		return
	}
	h.stopAgent(id)
}

func (h *Host) stopAgent(id agentID) {
	a, ok := h.agents[id]
	if !ok {
		return
	}
	delete(h.agents, id)
	a.Stop(hostView{h, id})
	h.clearAgentTimers(id)
}

func (h *Host) handleInbound(in transceiver.Inbound) {
	h.enterDistribution()
	for id, a := range h.agents {
		a.HandleMessage(hostView{h, id}, in.Message, in.InterfaceIndex, in.V6, in.Source)
	}
	h.exitDistribution()
}

// flush sends every destination's accumulated message and clears the
// accumulation. A message with no questions is stamped as an authoritative
// response immediately before it goes out (spec §4.1).
func (h *Host) flush() {
	if len(h.outbound) == 0 {
		return
	}
	for addr, acc := range h.outbound {
		msg := &wire.Message{
			Questions:   acc.questions,
			Answers:     acc.answers,
			Authorities: acc.authorities,
			Additionals: acc.additionals,
		}
		if len(msg.Questions) == 0 {
			msg.SetResponse()
		}
		if err := h.transport.Send(addr, msg); err != nil {
			h.log.Warn("host: flush send failed",
				zap.Int("interface", addr.InterfaceIndex), zap.Bool("v6", addr.V6), zap.Error(err))
		}
	}
	h.outbound = make(map[addrbook.ReplyAddress]*outboundMsg)
}

func (h *Host) bucket(addr addrbook.ReplyAddress) *outboundMsg {
	b, ok := h.outbound[addr]
	if !ok {
		b = &outboundMsg{}
		h.outbound[addr] = b
	}
	return b
}

func (h *Host) enqueue(addr addrbook.ReplyAddress, section agent.Section, rec wire.ResourceRecord) {
	b := h.bucket(addr)
	switch section {
	case agent.SectionAnswer:
		b.answers = append(b.answers, rec)
	case agent.SectionAuthority:
		b.authorities = append(b.authorities, rec)
	case agent.SectionAdditional:
		b.additionals = append(b.additionals, rec)
	}
}

func (h *Host) query(addr addrbook.ReplyAddress, q wire.Question) {
	b := h.bucket(addr)
	b.questions = append(b.questions, q)
}

// allReplyAddresses returns one multicast ReplyAddress per tracked
// interface and address family currently up.
func (h *Host) allReplyAddresses() []addrbook.ReplyAddress {
	ifaces := h.transport.Interfaces()
	addrs := make([]addrbook.ReplyAddress, 0, len(ifaces)*2)
	for _, iface := range ifaces {
		v4, v6 := ifaceFamilies(iface)
		if v4 {
			addrs = append(addrs, addrbook.ReplyAddress{InterfaceIndex: iface.Index, V6: false})
		}
		if v6 {
			addrs = append(addrs, addrbook.ReplyAddress{InterfaceIndex: iface.Index, V6: true})
		}
	}
	return addrs
}

func ifaceFamilies(iface net.Interface) (v4, v6 bool) {
	ifAddrs, err := iface.Addrs()
	if err != nil {
		return false, false
	}
	for _, a := range ifAddrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.To4() != nil {
			v4 = true
		} else {
			v6 = true
		}
	}
	return
}

// hostView is the per-agent face of Host satisfying agent.Host: it closes
// over the agentID so ScheduleAt/CancelTimer can be scoped per agent even
// though agent.Host's contract carries no agent-identity parameter.
type hostView struct {
	h  *Host
	id agentID
}

func (v hostView) Now() time.Time             { return v.h.now() }
func (v hostView) LocalHostName() wire.Name   { return v.h.localName }
func (v hostView) Interfaces() []net.Interface { return v.h.transport.Interfaces() }

func (v hostView) ScheduleAt(id agent.TimerID, t time.Time) {
	v.h.scheduleTimer(timerKey{v.id, id}, t)
}

func (v hostView) CancelTimer(id agent.TimerID) {
	v.h.cancelTimer(timerKey{v.id, id})
}

func (v hostView) Enqueue(addr addrbook.ReplyAddress, section agent.Section, rec wire.ResourceRecord) {
	v.h.enqueue(addr, section, rec)
}

func (v hostView) Query(addr addrbook.ReplyAddress, q wire.Question) {
	v.h.query(addr, q)
}

func (v hostView) AllReplyAddresses() []addrbook.ReplyAddress {
	return v.h.allReplyAddresses()
}

var _ agent.Host = hostView{}

// LocalHostName returns the host's current full host name ("" before
// Start's probe, or the ready callback, has run).
func (h *Host) LocalHostName() wire.Name {
	var name wire.Name
	h.send(func() { name = h.localName })
	return name
}
