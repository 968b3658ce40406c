package agent

import (
	"net"
	"time"

	coreerrors "github.com/fuchsia-oss/mdnscore/internal/errors"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// resolveRetryInterval and resolveAttempts follow the same one-shot
// repeated-query pattern RFC 6762 §8.1 uses for probing, applied here to
// resolving a remote host name's address instead of defending a local one.
const (
	resolveRetryInterval = 250 * time.Millisecond
	resolveAttempts      = 3
)

const hostResolverTimerID TimerID = 1

// hostResolverDeadlineTimerID is a second, independent timer namespace a
// caller (AgentHost.ResolveHostName) may schedule against this resolver to
// bound the whole lookup by wall-clock deadline rather than by retry
// count, finishing with whatever addresses were collected so far (spec
// §4.1, §4.4: "at deadline with whatever was collected").
const hostResolverDeadlineTimerID TimerID = 2

// HostNameResolver performs a one-shot lookup of a remote host name's
// address records (spec §4.6): it queries a few times in quick succession
// and reports whatever addresses it collects, or a timeout error if none
// arrive.
type HostNameResolver struct {
	name     wire.Name
	onResult func(addrs []net.IP, err error)

	attempts int
	found    []net.IP
	done     bool
}

// NewHostNameResolver creates a resolver for the given fully-qualified
// host name (e.g. "example.local."). onResult is called exactly once.
func NewHostNameResolver(name wire.Name, onResult func([]net.IP, error)) *HostNameResolver {
	return &HostNameResolver{name: name, onResult: onResult}
}

func (r *HostNameResolver) Start(h Host) {
	h.ScheduleAt(hostResolverTimerID, h.Now())
}

// ScheduleDeadline asks to be woken at deadline regardless of how many
// retry attempts remain; when it fires, the resolver finishes immediately
// with whatever addresses it has collected (possibly none).
func (r *HostNameResolver) ScheduleDeadline(h Host, deadline time.Time) {
	h.ScheduleAt(hostResolverDeadlineTimerID, deadline)
}

func (r *HostNameResolver) HandleTimer(h Host, id TimerID) {
	if id == hostResolverDeadlineTimerID {
		if !r.done {
			r.finish(h, nil)
		}
		return
	}
	if id != hostResolverTimerID || r.done {
		return
	}
	if len(r.found) > 0 {
		r.finish(h, nil)
		return
	}
	if r.attempts >= resolveAttempts {
		r.finish(h, &coreerrors.NetworkError{Operation: "resolve host name", Err: errTimeout(r.name.String())})
		return
	}
	r.sendQuery(h)
	r.attempts++
	h.ScheduleAt(hostResolverTimerID, h.Now().Add(resolveRetryInterval))
}

func (r *HostNameResolver) sendQuery(h Host) {
	qA := wire.Question{Name: r.name, Type: wire.TypeA}
	qAAAA := wire.Question{Name: r.name, Type: wire.TypeAAAA}
	for _, addr := range h.AllReplyAddresses() {
		h.Query(addr, qA)
		h.Query(addr, qAAAA)
	}
}

func (r *HostNameResolver) HandleMessage(h Host, in *wire.Message, ifaceIndex int, v6 bool, source *net.UDPAddr) {
	if r.done {
		return
	}
	for _, rec := range append(append([]wire.ResourceRecord{}, in.Answers...), in.Additionals...) {
		if !rec.Name.Equal(r.name) {
			continue
		}
		switch body := rec.Data.(type) {
		case wire.A:
			r.found = append(r.found, body.Addr)
		case wire.AAAA:
			r.found = append(r.found, body.Addr)
		}
	}
}

func (r *HostNameResolver) finish(h Host, err error) {
	r.done = true
	h.CancelTimer(hostResolverTimerID)
	h.CancelTimer(hostResolverDeadlineTimerID)
	if r.onResult != nil {
		r.onResult(r.found, err)
	}
}

func (r *HostNameResolver) Stop(h Host) {
	h.CancelTimer(hostResolverTimerID)
	h.CancelTimer(hostResolverDeadlineTimerID)
	if !r.done {
		r.finish(h, nil)
	}
}

type errTimeout string

func (e errTimeout) Error() string { return "no response for " + string(e) }
