// Package agent defines the Agent contract every mDNS protocol behavior in
// this engine implements — probing, responding, resolving, and browsing —
// plus the concrete agents themselves (spec components AddressProber,
// AddressResponder, HostNameResolver, InstanceProber, InstanceResponder,
// InstanceRequestor). Every agent is a pure state machine driven by Host
// callbacks: none of them hold a goroutine, a lock, or a blocking call of
// their own, so AgentHost can run its entire fleet from one dispatch loop
// (spec §5, single-threaded cooperative concurrency).
package agent

import (
	"net"
	"time"

	"github.com/fuchsia-oss/mdnscore/internal/addrbook"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// Section identifies which section of an outbound message a record
// belongs in (RFC 1035 §4.1).
type Section int

const (
	SectionAnswer Section = iota
	SectionAuthority
	SectionAdditional
)

// TimerID names a scheduled wakeup an agent asked for. It is opaque to
// Host and is handed back through HandleTimer so the agent can tell which
// of its own timers fired; an agent that only ever needs one timer at a
// time can reuse a single constant ID.
type TimerID uint64

// Host is the subset of AgentHost an Agent is allowed to call. Every
// method only ever runs on the single dispatch goroutine, so an Agent
// implementation needs no synchronization of its own.
type Host interface {
	Now() time.Time
	LocalHostName() wire.Name
	Interfaces() []net.Interface

	// ScheduleAt asks to be woken via HandleTimer(id) at t. Scheduling the
	// same id again replaces its previous deadline.
	ScheduleAt(id TimerID, t time.Time)
	// CancelTimer cancels a previously scheduled id, if still pending.
	CancelTimer(id TimerID)

	// Enqueue accumulates rec into the outbound message being built for
	// addr. Every agent's contribution to the same ReplyAddress within a
	// dispatch round is flushed together as one message (spec §4.1).
	Enqueue(addr addrbook.ReplyAddress, section Section, rec wire.ResourceRecord)
	// Query enqueues q as a question on the message being built for addr.
	Query(addr addrbook.ReplyAddress, q wire.Question)

	// AllReplyAddresses returns one multicast ReplyAddress per tracked
	// interface and address family currently up.
	AllReplyAddresses() []addrbook.ReplyAddress
}

// Agent is the contract every protocol behavior in this engine implements.
type Agent interface {
	// Start is invoked once when the agent is added to a running host.
	Start(h Host)
	// HandleMessage is invoked for every inbound message the host
	// receives, on every agent; an agent decides for itself whether a
	// message is relevant.
	HandleMessage(h Host, in *wire.Message, ifaceIndex int, v6 bool, source *net.UDPAddr)
	// HandleTimer is invoked when a timer this agent scheduled fires.
	HandleTimer(h Host, id TimerID)
	// Stop is invoked when the agent is withdrawn (service unpublished,
	// or the host shutting down), giving it one last chance to enqueue
	// goodbye records before removal.
	Stop(h Host)
}

// containsNameType reports whether any record in recs names the same
// owner name (case-insensitively) and wire type as (name, typ).
func containsNameType(recs []wire.ResourceRecord, name wire.Name, typ uint16) bool {
	for _, r := range recs {
		if r.Type == typ && r.Name.Equal(name) {
			return true
		}
	}
	return false
}

// replyAddressFor builds the ReplyAddress a response to q, received on
// ifaceIndex/v6 from source, should be sent to: unicast back to source if
// the question asked for a unicast response (RFC 6762 §5.4) or arrived
// from a legacy non-5353 querier, otherwise the multicast group.
func replyAddressFor(h Host, ifaceIndex int, v6 bool, q wire.Question, source *net.UDPAddr) addrbook.ReplyAddress {
	addr := addrbook.ReplyAddress{InterfaceIndex: ifaceIndex, V6: v6}
	if q.UnicastResponse || (source != nil && source.Port != addrbook.Port) {
		addr.Unicast = source
	}
	return addr
}

// findQuestion returns the first question in qs asking about name,
// matching qtype exactly or TypeANY, and whether one was found.
func findQuestion(qs []wire.Question, name wire.Name, qtype uint16) (wire.Question, bool) {
	for _, q := range qs {
		if !q.Name.Equal(name) {
			continue
		}
		if q.Type == qtype || q.Type == wire.TypeANY {
			return q, true
		}
	}
	return wire.Question{}, false
}
