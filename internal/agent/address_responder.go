package agent

import (
	"net"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// AddressResponder answers A/AAAA queries for the local host name once
// AddressProber has finished probing (spec §4.5). It holds no state of its
// own beyond "ready or not" — the actual address comes from the
// transceiver's address-placeholder fixup at send time, so this agent
// only ever enqueues placeholders.
type AddressResponder struct {
	ready bool
}

// NewAddressResponder creates a responder. Call MarkReady once the
// corresponding AddressProber's onReady callback fires.
func NewAddressResponder() *AddressResponder {
	return &AddressResponder{}
}

// MarkReady enables the responder. Before this is called, queries for the
// host name get no answer, since the name might still be renamed.
func (r *AddressResponder) MarkReady() {
	r.ready = true
}

func (r *AddressResponder) Start(h Host) {}

func (r *AddressResponder) HandleMessage(h Host, in *wire.Message, ifaceIndex int, v6 bool, source *net.UDPAddr) {
	if !r.ready || !in.IsQuery() {
		return
	}
	name := h.LocalHostName()
	for _, q := range in.Questions {
		if !q.Name.Equal(name) {
			continue
		}
		if q.Type != wire.TypeA && q.Type != wire.TypeAAAA && q.Type != wire.TypeANY {
			continue
		}
		addr := replyAddressFor(h, ifaceIndex, v6, q, source)
		if q.Type == wire.TypeA || q.Type == wire.TypeANY {
			h.Enqueue(addr, SectionAnswer, wire.NewAddressPlaceholder(name, false, wire.LongTTL))
		}
		if q.Type == wire.TypeAAAA || q.Type == wire.TypeANY {
			h.Enqueue(addr, SectionAnswer, wire.NewAddressPlaceholder(name, true, wire.LongTTL))
		}
	}
}

func (r *AddressResponder) HandleTimer(h Host, id TimerID) {}

func (r *AddressResponder) Stop(h Host) {}
