// Package hosttest provides in-memory test doubles for the collaborators
// internal/host.Host needs — a fake transport in place of
// internal/transceiver.Transceiver and a fake internal/ifacesource.Source
// — so agent lifecycle and timing tests never open a real socket. Host
// still runs its dispatch goroutine on wall-clock timers, so those tests
// wait in real time. Grounded in the same "fake transport for unit tests"
// pattern the teacher's internal/transport/mock.go used, generalized here
// from "fake socket" to "fake NIC feed plus fake send sink".
package hosttest

import (
	"net"
	"sync"

	"github.com/fuchsia-oss/mdnscore/internal/addrbook"
	"github.com/fuchsia-oss/mdnscore/internal/transceiver"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// Sent records one message Host handed to Transport.Send.
type Sent struct {
	Addr addrbook.ReplyAddress
	Msg  *wire.Message
}

// Transport is an in-memory stand-in for *transceiver.Transceiver,
// satisfying internal/host.Host's Transport contract. Tests use Deliver
// to feed inbound messages and SentMessages to inspect what Host flushed.
type Transport struct {
	mu         sync.Mutex
	interfaces map[int]net.Interface
	sent       []Sent
	inbound    chan transceiver.Inbound
	closed     bool

	// FailSend, if set, is returned by Send instead of succeeding —
	// exercises Host's flush error path, which logs and drops the message.
	FailSend error
}

// NewTransport creates an empty fake transport.
func NewTransport() *Transport {
	return &Transport{
		interfaces: make(map[int]net.Interface),
		inbound:    make(chan transceiver.Inbound, 64),
	}
}

func (t *Transport) AddInterface(iface net.Interface) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.interfaces[iface.Index] = iface
	return nil
}

func (t *Transport) RemoveInterface(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.interfaces, index)
}

func (t *Transport) Interfaces() []net.Interface {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]net.Interface, 0, len(t.interfaces))
	for _, iface := range t.interfaces {
		out = append(out, iface)
	}
	return out
}

func (t *Transport) Send(addr addrbook.ReplyAddress, msg *wire.Message) error {
	if t.FailSend != nil {
		return t.FailSend
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, Sent{Addr: addr, Msg: msg})
	return nil
}

func (t *Transport) Inbound() <-chan transceiver.Inbound {
	return t.inbound
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbound)
	}
	return nil
}

// Deliver pushes in onto the inbound channel Host's dispatch loop reads
// from, as if a real socket had just received and decoded it.
func (t *Transport) Deliver(in transceiver.Inbound) {
	t.inbound <- in
}

// SentMessages returns every message flushed through Send so far, in order.
func (t *Transport) SentMessages() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.sent))
	copy(out, t.sent)
	return out
}

// LoopbackInterface returns the host's real loopback interface, if one can
// be found. allReplyAddresses (internal/host) derives v4/v6 membership
// from the live OS address list for whatever net.Interface it's given, so
// tests that need AllReplyAddresses to yield at least one address use the
// real loopback NIC rather than a synthetic net.Interface{} with no
// backing OS state.
func LoopbackInterface() (net.Interface, bool) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return net.Interface{}, false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			return iface, true
		}
	}
	return net.Interface{}, false
}

// InterfaceSource is a fixed-list stand-in for ifacesource.Source.
type InterfaceSource struct {
	Ifaces []net.Interface
	Err    error
}

// Interfaces implements ifacesource.Source.
func (s InterfaceSource) Interfaces() ([]net.Interface, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Ifaces, nil
}
