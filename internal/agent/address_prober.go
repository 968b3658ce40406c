package agent

import (
	"fmt"
	"net"
	"time"

	coreerrors "github.com/fuchsia-oss/mdnscore/internal/errors"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// probeInterval is the spacing between probe queries (RFC 6762 §8.1:
// "250 ms" between each of three probes).
const probeInterval = 250 * time.Millisecond

// probeCount is how many probe queries are sent before announcing
// (RFC 6762 §8.1: three).
const probeCount = 3

// announceDelays are the gaps between successive unsolicited announcements
// once probing succeeds (RFC 6762 §8.3 requires at least two, one second
// apart; this engine sends four, with the gap doubling up to a 4-second
// cap, to reinforce the announcement against a lossy link).
var announceDelays = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}

// maxRenames bounds how many times AddressProber will rename itself before
// giving up and reporting failure, guarding against an unbounded loop if
// every candidate name happens to collide (e.g. a buggy peer that claims
// every name it's asked about).
const maxRenames = 100

type addressProbeState int

const (
	addrStateProbing addressProbeState = iota
	addrStateAnnouncing
	addrStateActive
)

const addrTimerID TimerID = 1

// AddressProber probes a candidate host name before this engine starts
// advertising the A/AAAA records that identify it, renaming on conflict
// per RFC 6762 §8–§9, then sends four announcements and goes active. Once
// active it sends nothing more until Stop, which sends a ttl=0 goodbye.
type AddressProber struct {
	base     string
	name     wire.Name
	suffix   int
	onReady  func(finalName wire.Name)
	onFailed func(err error)

	state        addressProbeState
	probesSent   int
	announceSent int
}

// NewAddressProber creates a prober for baseName (e.g. "fuchsia"). onReady
// is called exactly once, with the final (possibly renamed) full host
// name, after probing succeeds and all four announcements have been sent;
// it is not called when the probing window itself ends. onFailed is called
// instead if renaming is exhausted without finding a free name.
func NewAddressProber(baseName string, onReady func(wire.Name), onFailed func(error)) *AddressProber {
	return &AddressProber{
		base:     baseName,
		name:     wire.NewName(baseName + ".local"),
		onReady:  onReady,
		onFailed: onFailed,
	}
}

// Name returns the host name currently being probed or actively used.
func (p *AddressProber) Name() wire.Name {
	return p.name
}

func (p *AddressProber) Start(h Host) {
	p.state = addrStateProbing
	p.probesSent = 0
	h.ScheduleAt(addrTimerID, h.Now())
}

func (p *AddressProber) HandleTimer(h Host, id TimerID) {
	if id != addrTimerID {
		return
	}
	switch p.state {
	case addrStateProbing:
		p.sendProbe(h)
		p.probesSent++
		if p.probesSent >= probeCount {
			p.state = addrStateAnnouncing
			p.announceSent = 0
			h.ScheduleAt(addrTimerID, h.Now())
			return
		}
		h.ScheduleAt(addrTimerID, h.Now().Add(probeInterval))
	case addrStateAnnouncing:
		p.sendAnnounce(h)
		p.announceSent++
		if p.announceSent > len(announceDelays) {
			p.state = addrStateActive
			if p.onReady != nil {
				p.onReady(p.name)
			}
			return
		}
		h.ScheduleAt(addrTimerID, h.Now().Add(announceDelays[p.announceSent-1]))
	}
}

func (p *AddressProber) sendProbe(h Host) {
	q := wire.Question{Name: p.name, Type: wire.TypeANY, UnicastResponse: true}
	for _, addr := range h.AllReplyAddresses() {
		h.Query(addr, q)
		h.Enqueue(addr, SectionAuthority, wire.NewAddressPlaceholder(p.name, addr.V6, wire.LongTTL))
	}
}

func (p *AddressProber) sendAnnounce(h Host) {
	for _, addr := range h.AllReplyAddresses() {
		rec := wire.NewAddressPlaceholder(p.name, addr.V6, wire.LongTTL)
		h.Enqueue(addr, SectionAnswer, rec)
	}
}

func (p *AddressProber) HandleMessage(h Host, in *wire.Message, ifaceIndex int, v6 bool, source *net.UDPAddr) {
	if p.state == addrStateActive {
		return
	}
	conflict := containsNameType(in.Answers, p.name, wire.TypeA) ||
		containsNameType(in.Answers, p.name, wire.TypeAAAA) ||
		containsNameType(in.Additionals, p.name, wire.TypeA) ||
		containsNameType(in.Additionals, p.name, wire.TypeAAAA)
	if !conflict {
		return
	}
	p.rename(h)
}

func (p *AddressProber) rename(h Host) {
	p.suffix++
	if p.suffix > maxRenames {
		if p.onFailed != nil {
			p.onFailed(&coreerrors.ProbeFailedError{Name: p.name.String()})
		}
		return
	}
	p.name = wire.NewName(fmt.Sprintf("%s%d.local", p.base, p.suffix+1))
	p.state = addrStateProbing
	p.probesSent = 0
	h.ScheduleAt(addrTimerID, h.Now())
}

func (p *AddressProber) Stop(h Host) {
	h.CancelTimer(addrTimerID)
	if p.state != addrStateActive {
		return
	}
	for _, addr := range h.AllReplyAddresses() {
		rec := wire.NewAddressPlaceholder(p.name, addr.V6, 0)
		h.Enqueue(addr, SectionAnswer, rec)
	}
}
