package agent

import (
	"fmt"
	"net"

	coreerrors "github.com/fuchsia-oss/mdnscore/internal/errors"
	"github.com/fuchsia-oss/mdnscore/internal/nameutil"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

const instanceTimerID TimerID = 1

// InstanceProber probes a published service instance's full name before
// InstanceResponder starts answering for it, with the same probe and
// announcement timing as AddressProber (spec §4.7, RFC 6762 §8–§9 applied
// to a service-instance owner name instead of a host name). On conflict it
// renames the instance label to "Name (2)", "Name (3)", ..., unlike
// AddressProber's bare numeric host-name suffix.
type InstanceProber struct {
	baseInstance string
	service      string
	suffix       int
	fullName     wire.Name

	onReady  func(finalInstance string)
	onFailed func(err error)

	state        addressProbeState
	probesSent   int
	announceSent int

	// port is the SRV port asserted while probing and announcing; the SRV
	// target is the host's current local name, read at send time.
	port uint16
}

// NewInstanceProber creates a prober for a service instance. onReady is
// called with the final (possibly renamed) instance label after probing
// succeeds and all four announcements have been sent; it is not called
// when the probing window itself ends.
func NewInstanceProber(instance, service string, port uint16, onReady func(string), onFailed func(error)) *InstanceProber {
	return &InstanceProber{
		baseInstance: instance,
		service:      service,
		port:         port,
		fullName:     nameutil.InstanceFullName(instance, service),
		onReady:      onReady,
		onFailed:     onFailed,
	}
}

// FullName returns the service-instance full name currently being probed
// or actively used.
func (p *InstanceProber) FullName() wire.Name {
	return p.fullName
}

func (p *InstanceProber) Start(h Host) {
	p.state = addrStateProbing
	p.probesSent = 0
	h.ScheduleAt(instanceTimerID, h.Now())
}

func (p *InstanceProber) HandleTimer(h Host, id TimerID) {
	if id != instanceTimerID {
		return
	}
	switch p.state {
	case addrStateProbing:
		p.sendProbe(h)
		p.probesSent++
		if p.probesSent >= probeCount {
			p.state = addrStateAnnouncing
			p.announceSent = 0
			h.ScheduleAt(instanceTimerID, h.Now())
			return
		}
		h.ScheduleAt(instanceTimerID, h.Now().Add(probeInterval))
	case addrStateAnnouncing:
		p.sendAnnounce(h)
		p.announceSent++
		if p.announceSent > len(announceDelays) {
			p.state = addrStateActive
			if p.onReady != nil {
				label := p.baseInstance
				if p.suffix > 0 {
					label = fmt.Sprintf("%s (%d)", p.baseInstance, p.suffix+1)
				}
				p.onReady(label)
			}
			return
		}
		h.ScheduleAt(instanceTimerID, h.Now().Add(announceDelays[p.announceSent-1]))
	}
}

func (p *InstanceProber) srvRecord(h Host) wire.ResourceRecord {
	return wire.NewRecord(p.fullName, true, wire.ShortTTL, wire.SRV{
		Port: p.port, Target: h.LocalHostName(),
	})
}

func (p *InstanceProber) sendProbe(h Host) {
	q := wire.Question{Name: p.fullName, Type: wire.TypeANY, UnicastResponse: true}
	for _, addr := range h.AllReplyAddresses() {
		h.Query(addr, q)
		h.Enqueue(addr, SectionAuthority, p.srvRecord(h))
	}
}

func (p *InstanceProber) sendAnnounce(h Host) {
	for _, addr := range h.AllReplyAddresses() {
		h.Enqueue(addr, SectionAnswer, p.srvRecord(h))
	}
}

func (p *InstanceProber) HandleMessage(h Host, in *wire.Message, ifaceIndex int, v6 bool, source *net.UDPAddr) {
	if p.state == addrStateActive {
		return
	}
	conflict := containsNameType(in.Answers, p.fullName, wire.TypeSRV) ||
		containsNameType(in.Additionals, p.fullName, wire.TypeSRV)
	if !conflict {
		return
	}
	p.rename(h)
}

func (p *InstanceProber) rename(h Host) {
	p.suffix++
	if p.suffix > maxRenames {
		if p.onFailed != nil {
			p.onFailed(&coreerrors.ProbeFailedError{Name: p.fullName.String()})
		}
		return
	}
	renamed := fmt.Sprintf("%s (%d)", p.baseInstance, p.suffix+1)
	p.fullName = nameutil.InstanceFullName(renamed, p.service)
	p.state = addrStateProbing
	p.probesSent = 0
	h.ScheduleAt(instanceTimerID, h.Now())
}

func (p *InstanceProber) Stop(h Host) {
	h.CancelTimer(instanceTimerID)
	if p.state != addrStateActive {
		return
	}
	for _, addr := range h.AllReplyAddresses() {
		rec := wire.NewRecord(p.fullName, true, 0, wire.SRV{Port: p.port, Target: h.LocalHostName()})
		h.Enqueue(addr, SectionAnswer, rec)
	}
}
