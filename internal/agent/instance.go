package agent

import (
	"net"

	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// PublicationSpec is the record content a Publisher returns for one
// announcement or query response (spec §3 PublicationSpec): the fields
// InstanceResponder needs to build PTR/SRV/TXT answers, plus the three
// per-section TTLs each carries.
type PublicationSpec struct {
	Port        uint16
	Text        []string
	SRVPriority uint16
	SRVWeight   uint16
	// PTRTTL, SRVTTL, TXTTTL are the TTLs stamped on the PTR answer and the
	// SRV/TXT additionals respectively (spec §3, §4.6; RFC 6762 §10
	// favors a long TTL for the more stable PTR/TXT records and a short
	// one for SRV, which is more likely to change).
	PTRTTL uint32
	SRVTTL uint32
	TXTTTL uint32
}

// Publisher supplies publication content on demand and learns a probe's
// outcome (spec §4.6, §6 Publisher collaborator). GetPublication is
// called once per announcement tick and once per (possibly
// throttle-coalesced) query; returning nil means "emit nothing this
// tick" (spec §4.6). query reports whether this call is answering an
// incoming question rather than a periodic announcement; subtype is ""
// for the main service type; senderAddrs carries every querier address
// observed since the previous call, capped at 64, and is cleared by the
// caller immediately after the call returns.
type Publisher interface {
	GetPublication(query bool, subtype string, senderAddrs []net.IP) *PublicationSpec
	ReportSuccess(success bool)
}

// staticPublisher is the default Publisher built for a PublishedInstance
// that specifies its content directly (Port/TXT/...) rather than
// supplying its own Publisher: every call returns the same spec.
type staticPublisher struct {
	spec PublicationSpec
}

func (s staticPublisher) GetPublication(bool, string, []net.IP) *PublicationSpec {
	spec := s.spec
	return &spec
}

func (staticPublisher) ReportSuccess(bool) {}

// PublishedInstance describes a single DNS-SD service instance this engine
// advertises (spec §3 ServiceInstance): the identity fields InstanceProber
// and InstanceResponder need, and either a static content specification or
// a caller-supplied Publisher.
type PublishedInstance struct {
	// Instance is the bare instance label, e.g. "Office Printer".
	Instance string
	// Service is the full service type, e.g. "_http._tcp.local.".
	Service string
	// Subtypes are additional "_sub"-qualified service types this
	// instance should also answer PTR queries under (RFC 6763 §7.1).
	Subtypes []string

	// Port is the TCP/UDP port InstanceProber asserts while probing, and
	// (along with TXT/SRVPriority/SRVWeight/*TTL below) the static
	// publication content InstanceResponder answers with when Publisher
	// is nil.
	Port        uint16
	TXT         []string
	SRVPriority uint16
	SRVWeight   uint16
	// PTRTTL, SRVTTL, TXTTTL default to wire.LongTTL, wire.ShortTTL, and
	// wire.LongTTL respectively when left zero.
	PTRTTL uint32
	SRVTTL uint32
	TXTTTL uint32

	// Publisher, when set, overrides the static fields above:
	// InstanceResponder asks it for a PublicationSpec on every
	// announcement and query instead of replaying the same content (spec
	// §6 Publisher collaborator).
	Publisher Publisher
}

// ResolvePublisher returns inst.Publisher if set, otherwise a
// staticPublisher built from inst's own fields with default TTLs applied.
func (inst PublishedInstance) ResolvePublisher() Publisher {
	if inst.Publisher != nil {
		return inst.Publisher
	}
	ptrTTL, srvTTL, txtTTL := inst.PTRTTL, inst.SRVTTL, inst.TXTTTL
	if ptrTTL == 0 {
		ptrTTL = wire.LongTTL
	}
	if srvTTL == 0 {
		srvTTL = wire.ShortTTL
	}
	if txtTTL == 0 {
		txtTTL = wire.LongTTL
	}
	return staticPublisher{spec: PublicationSpec{
		Port:        inst.Port,
		Text:        inst.TXT,
		SRVPriority: inst.SRVPriority,
		SRVWeight:   inst.SRVWeight,
		PTRTTL:      ptrTTL,
		SRVTTL:      srvTTL,
		TXTTTL:      txtTTL,
	}}
}

// DiscoveredInstance is what InstanceRequestor surfaces to a browsing
// caller: a service instance's identity plus whatever of its records have
// been resolved so far.
type DiscoveredInstance struct {
	FullName string
	Instance string
	Service  string
	Removed  bool

	Target string
	Port   uint16
	TXT    []string
	V4     net.IP
	V6     net.IP
}
