// Package transceiver owns the multicast sockets an mDNS engine sends and
// receives on: one shared IPv4 socket and one shared IPv6 socket, each
// joined to the mDNS multicast group on every tracked interface (spec
// component Transceiver / InterfaceTransceiver). It decodes inbound
// datagrams into wire.Message values for the single-threaded AgentHost
// dispatcher to consume, and performs the last-moment address-placeholder
// fixup on outbound A/AAAA records before encoding and sending them.
package transceiver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"go.uber.org/zap"

	"github.com/fuchsia-oss/mdnscore/internal/addrbook"
	coreerrors "github.com/fuchsia-oss/mdnscore/internal/errors"
	"github.com/fuchsia-oss/mdnscore/internal/security"
	"github.com/fuchsia-oss/mdnscore/internal/transport"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// Inbound is one received, decoded mDNS message, tagged with the interface
// it arrived on so AgentHost can route it through the right agents and, if
// a reply is needed, address it correctly.
type Inbound struct {
	Message        *wire.Message
	InterfaceIndex int
	V6             bool
	Source         *net.UDPAddr
}

// Transceiver owns the two shared multicast sockets and the set of
// interfaces currently joined to each. Its receive loops run on their own
// goroutines and hand decoded messages to a channel; everything else
// (deciding what to do with a message) happens on the caller's own
// single-threaded loop.
type Transceiver struct {
	log *zap.Logger

	mu         sync.Mutex
	interfaces map[int]net.Interface
	filters    map[int]*security.SourceFilter
	limiter    *security.RateLimiter

	conn4 *ipv4.PacketConn
	conn6 *ipv6.PacketConn
	raw4  net.PacketConn
	raw6  net.PacketConn

	inbound chan Inbound
	done    chan struct{}
	wg      sync.WaitGroup
}

// New binds the shared IPv4 and IPv6 mDNS sockets and starts their receive
// loops. log may be nil, in which case a no-op logger is used.
func New(log *zap.Logger) (*Transceiver, error) {
	if log == nil {
		log = zap.NewNop()
	}

	lc := net.ListenConfig{Control: transport.PlatformControl}
	ctx := context.Background()

	raw4, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", addrbook.Port))
	if err != nil {
		return nil, &coreerrors.NetworkError{Operation: "bind ipv4 mDNS socket", Err: err}
	}
	raw6, err := lc.ListenPacket(ctx, "udp6", fmt.Sprintf(":%d", addrbook.Port))
	if err != nil {
		_ = raw4.Close()
		return nil, &coreerrors.NetworkError{Operation: "bind ipv6 mDNS socket", Err: err}
	}

	conn4 := ipv4.NewPacketConn(raw4)
	conn6 := ipv6.NewPacketConn(raw6)

	if err := conn4.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		_ = raw4.Close()
		_ = raw6.Close()
		return nil, &coreerrors.NetworkError{Operation: "configure ipv4 control messages", Err: err}
	}
	if err := conn6.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		_ = raw4.Close()
		_ = raw6.Close()
		return nil, &coreerrors.NetworkError{Operation: "configure ipv6 control messages", Err: err}
	}
	_ = conn4.SetMulticastTTL(addrbook.MulticastTTL)
	_ = conn6.SetMulticastHopLimit(addrbook.MulticastTTL)
	_ = conn4.SetMulticastLoopback(false)
	_ = conn6.SetMulticastLoopback(false)

	t := &Transceiver{
		log:        log,
		interfaces: make(map[int]net.Interface),
		filters:    make(map[int]*security.SourceFilter),
		limiter:    security.NewRateLimiter(100, 60*time.Second, 10000),
		conn4:      conn4,
		conn6:      conn6,
		raw4:       raw4,
		raw6:       raw6,
		inbound:    make(chan Inbound, 64),
		done:       make(chan struct{}),
	}

	t.wg.Add(2)
	go t.readLoopV4()
	go t.readLoopV6()
	return t, nil
}

// Inbound returns the channel of decoded messages. The caller's dispatcher
// loop should drain it alongside its timer-driven work.
func (t *Transceiver) Inbound() <-chan Inbound {
	return t.inbound
}

// Close stops both receive loops and releases the sockets.
func (t *Transceiver) Close() error {
	close(t.done)
	_ = t.raw4.Close()
	_ = t.raw6.Close()
	t.wg.Wait()
	return nil
}

// AddInterface joins the mDNS multicast group on iface for both address
// families and begins filtering packets received on it. Joining a family
// that the interface doesn't support is logged at debug level and
// otherwise ignored — many interfaces are IPv4-only or IPv6-only.
func (t *Transceiver) AddInterface(iface net.Interface) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.interfaces[iface.Index]; exists {
		return nil
	}

	if err := t.conn4.JoinGroup(&iface, &net.UDPAddr{IP: addrbook.MulticastIPv4}); err != nil {
		t.log.Debug("transceiver: join ipv4 multicast group failed", zap.String("interface", iface.Name), zap.Error(err))
	}
	if err := t.conn6.JoinGroup(&iface, &net.UDPAddr{IP: addrbook.MulticastIPv6}); err != nil {
		t.log.Debug("transceiver: join ipv6 multicast group failed", zap.String("interface", iface.Name), zap.Error(err))
	}

	filter, err := security.NewSourceFilter(iface)
	if err != nil {
		return &coreerrors.NetworkError{Operation: "build source filter", Err: err, Details: iface.Name}
	}

	t.interfaces[iface.Index] = iface
	t.filters[iface.Index] = filter
	return nil
}

// RemoveInterface leaves the multicast group on the named interface and
// stops filtering packets received on it. It is a no-op if the interface
// was never added.
func (t *Transceiver) RemoveInterface(index int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	iface, ok := t.interfaces[index]
	if !ok {
		return
	}
	_ = t.conn4.LeaveGroup(&iface, &net.UDPAddr{IP: addrbook.MulticastIPv4})
	_ = t.conn6.LeaveGroup(&iface, &net.UDPAddr{IP: addrbook.MulticastIPv6})
	delete(t.interfaces, index)
	delete(t.filters, index)
}

// Interfaces returns the set of interfaces currently joined to the
// multicast groups.
func (t *Transceiver) Interfaces() []net.Interface {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]net.Interface, 0, len(t.interfaces))
	for _, iface := range t.interfaces {
		out = append(out, iface)
	}
	return out
}

// Send fixes up any address placeholders in msg against addr's interface
// and family, encodes it, and writes it to addr's destination (the
// multicast group, or a specific unicast address).
func (t *Transceiver) Send(addr addrbook.ReplyAddress, msg *wire.Message) error {
	t.mu.Lock()
	iface, ok := t.interfaces[addr.InterfaceIndex]
	t.mu.Unlock()
	if !ok {
		return &coreerrors.NetworkError{
			Operation: "send mDNS message",
			Err:       fmt.Errorf("interface index %d is not tracked", addr.InterfaceIndex),
		}
	}

	fixupAddresses(msg, iface, addr.V6)

	payload, err := wire.Encode(msg)
	if err != nil {
		return err
	}

	dst := addr.Destination()
	if addr.V6 {
		cm := &ipv6.ControlMessage{IfIndex: addr.InterfaceIndex}
		_, err = t.conn6.WriteTo(payload, cm, dst)
	} else {
		cm := &ipv4.ControlMessage{IfIndex: addr.InterfaceIndex}
		_, err = t.conn4.WriteTo(payload, cm, dst)
	}
	if err != nil {
		t.log.Warn("transceiver: send failed",
			zap.Int("interface", addr.InterfaceIndex), zap.Bool("v6", addr.V6), zap.Error(err))
		return &coreerrors.NetworkError{Operation: "send mDNS message", Err: err}
	}
	return nil
}

func (t *Transceiver) readLoopV4() {
	defer t.wg.Done()
	buf := make([]byte, transport.MaxPacketSize)
	for {
		n, cm, src, err := t.conn4.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				t.log.Debug("transceiver: ipv4 read error", zap.Error(err))
				continue
			}
		}
		udpSrc, ok := src.(*net.UDPAddr)
		if !ok || cm == nil {
			continue
		}
		t.handleInbound(buf[:n], cm.IfIndex, false, udpSrc)
	}
}

func (t *Transceiver) readLoopV6() {
	defer t.wg.Done()
	buf := make([]byte, transport.MaxPacketSize)
	for {
		n, cm, src, err := t.conn6.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				t.log.Debug("transceiver: ipv6 read error", zap.Error(err))
				continue
			}
		}
		udpSrc, ok := src.(*net.UDPAddr)
		if !ok || cm == nil {
			continue
		}
		t.handleInbound(buf[:n], cm.IfIndex, true, udpSrc)
	}
}

func (t *Transceiver) handleInbound(data []byte, ifIndex int, v6 bool, src *net.UDPAddr) {
	t.mu.Lock()
	filter := t.filters[ifIndex]
	t.mu.Unlock()

	if filter != nil && !filter.IsValid(src.IP) {
		return
	}
	if t.isOwnAddress(src.IP) {
		return
	}
	if t.limiter != nil && !t.limiter.Allow(src.IP.String()) {
		return
	}

	msg, err := wire.Decode(data)
	if err != nil {
		t.log.Debug("transceiver: discarding unparseable datagram",
			zap.Int("interface", ifIndex), zap.Stringer("source", src), zap.Error(err))
		return
	}

	select {
	case t.inbound <- Inbound{Message: msg, InterfaceIndex: ifIndex, V6: v6, Source: src}:
	case <-t.done:
	}
}

// isOwnAddress reports whether ip belongs to one of our own tracked
// interfaces, in which case the datagram is our own multicast looping back
// through a different interface than it was sent on and must be discarded
// (spec §4.2: "if the source address equals one of our own interface
// addresses, the datagram is discarded").
func (t *Transceiver) isOwnAddress(ip net.IP) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, iface := range t.interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if ok && ipnet.IP.Equal(ip) {
				return true
			}
		}
	}
	return false
}

// fixupAddresses replaces any AddressPlaceholder record bodies in msg's
// sections with the real address of iface for the given family. A record
// is left untouched (and will fail to encode) if no suitable address is
// available — this is a caller bug, since AgentHost should never announce
// an address record on an interface lacking that family.
func fixupAddresses(msg *wire.Message, iface net.Interface, v6 bool) {
	fix := func(recs []wire.ResourceRecord) {
		for i, r := range recs {
			if !r.IsAddressPlaceholder() {
				continue
			}
			ip, ok := pickAddress(iface, v6)
			if !ok {
				continue
			}
			if v6 {
				recs[i] = wire.NewRecord(r.Name, r.CacheFlush, r.TTL, wire.AAAA{Addr: ip})
			} else {
				recs[i] = wire.NewRecord(r.Name, r.CacheFlush, r.TTL, wire.A{Addr: ip})
			}
		}
	}
	fix(msg.Answers)
	fix(msg.Authorities)
	fix(msg.Additionals)
}

// pickAddress chooses the address an interface should be advertised under
// for the given family. IPv6 prefers a link-local address, since mDNS
// traffic never leaves the link and link-local is guaranteed present on
// any interface with IPv6 enabled at all.
func pickAddress(iface net.Interface, v6 bool) (net.IP, bool) {
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, false
	}
	var fallback net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP
		if v6 {
			if ip.To4() != nil {
				continue
			}
			if ip.IsLinkLocalUnicast() {
				return ip, true
			}
			if fallback == nil {
				fallback = ip
			}
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, true
		}
	}
	if v6 && fallback != nil {
		return fallback, true
	}
	return nil, false
}
