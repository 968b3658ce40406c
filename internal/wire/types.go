package wire

import (
	"encoding/binary"
	"hash/fnv"
	"net"
)

// Wire record types, reusing the numbering DNS already defines (RFC 1035 /
// RFC 6762) so there's exactly one source of truth for "what is a PTR".
const (
	TypeA     uint16 = 1
	TypeNS    uint16 = 2
	TypeCNAME uint16 = 5
	TypePTR   uint16 = 12
	TypeTXT   uint16 = 16
	TypeAAAA  uint16 = 28
	TypeSRV   uint16 = 33
	TypeOPT   uint16 = 41
	TypeNSEC  uint16 = 47

	// TypeANY is a question-only QTYPE (RFC 1035 §3.2.3): a probe query
	// uses it to ask "does any record exist at this name", regardless of
	// type.
	TypeANY uint16 = 255
)

// ClassINET is the only record class this core ever produces or expects.
const ClassINET uint16 = 1

// classCacheFlush is the high bit of an RR's class field (RFC 6762 §10.2):
// it tells the receiver to discard prior cached records sharing this name,
// type and class.
const classCacheFlush uint16 = 0x8000

// classUnicastResponse is the high bit of a question's class field
// (RFC 6762 §5.4): it asks the responder to reply unicast rather than
// joining the normal multicast rate limiting.
const classUnicastResponse uint16 = 0x8000

// ShortTTL and LongTTL are the two TTL constants the core uses for
// everything it publishes: host address records (A/AAAA) and SRV use
// ShortTTL, the more stable PTR/TXT service-discovery records use LongTTL
// (RFC 6762 §10).
const (
	ShortTTL uint32 = 120
	LongTTL  uint32 = 4500
)

// Question is a single entry of a message's question section.
type Question struct {
	Name            Name
	Type            uint16
	UnicastResponse bool
}

// Class returns the wire-encoded class for this question, with the
// unicast-response bit folded in per RFC 6762 §5.4.
func (q Question) Class() uint16 {
	c := ClassINET
	if q.UnicastResponse {
		c |= classUnicastResponse
	}
	return c
}

// RRData is the type-specific body of a ResourceRecord. Implementations
// are exhaustively listed below; construction happens only through the
// New* constructors so an RR can never carry a body that disagrees with
// its Type field.
type RRData interface {
	rrType() uint16
	equal(other RRData) bool
	hashInto(h hashAccumulator)
}

type hashAccumulator interface {
	Write([]byte) (int, error)
}

// AddressPlaceholder marks an A or AAAA record whose address is not yet
// known: the InterfaceTransceiver fixup pass (spec §4.2) replaces it with
// the outgoing interface's real address immediately before the datagram is
// sent. Modeling it as its own variant (rather than, say, an all-zeros IP)
// means the fixup code can never mistake a legitimately-zero address for a
// placeholder.
type AddressPlaceholder struct {
	// V6 selects whether this placeholder stands in for an A (false) or
	// AAAA (true) record.
	V6 bool
}

func (AddressPlaceholder) rrType() uint16 {
	return TypeA // overridden by Type on the owning ResourceRecord; see NewAddressPlaceholder
}
func (p AddressPlaceholder) equal(other RRData) bool {
	o, ok := other.(AddressPlaceholder)
	return ok && o.V6 == p.V6
}
func (p AddressPlaceholder) hashInto(h hashAccumulator) {
	if p.V6 {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
}

// A is an IPv4 address record body.
type A struct{ Addr net.IP }

func (A) rrType() uint16 { return TypeA }
func (a A) equal(other RRData) bool {
	o, ok := other.(A)
	return ok && a.Addr.Equal(o.Addr)
}
func (a A) hashInto(h hashAccumulator) { h.Write(a.Addr.To4()) }

// AAAA is an IPv6 address record body.
type AAAA struct{ Addr net.IP }

func (AAAA) rrType() uint16 { return TypeAAAA }
func (a AAAA) equal(other RRData) bool {
	o, ok := other.(AAAA)
	return ok && a.Addr.Equal(o.Addr)
}
func (a AAAA) hashInto(h hashAccumulator) { h.Write(a.Addr.To16()) }

// NS is a name-server record body.
type NS struct{ Target Name }

func (NS) rrType() uint16 { return TypeNS }
func (n NS) equal(other RRData) bool {
	o, ok := other.(NS)
	return ok && n.Target.Equal(o.Target)
}
func (n NS) hashInto(h hashAccumulator) { h.Write([]byte(n.Target.foldedKey())) }

// CNAME is a canonical-name alias record body.
type CNAME struct{ Target Name }

func (CNAME) rrType() uint16 { return TypeCNAME }
func (c CNAME) equal(other RRData) bool {
	o, ok := other.(CNAME)
	return ok && c.Target.Equal(o.Target)
}
func (c CNAME) hashInto(h hashAccumulator) { h.Write([]byte(c.Target.foldedKey())) }

// PTR is a pointer record body (service enumeration, reverse lookups).
type PTR struct{ Target Name }

func (PTR) rrType() uint16 { return TypePTR }
func (p PTR) equal(other RRData) bool {
	o, ok := other.(PTR)
	return ok && p.Target.Equal(o.Target)
}
func (p PTR) hashInto(h hashAccumulator) { h.Write([]byte(p.Target.foldedKey())) }

// TXT is a free-form text record body: an ordered list of strings.
type TXT struct{ Strings []string }

func (TXT) rrType() uint16 { return TypeTXT }
func (t TXT) equal(other RRData) bool {
	o, ok := other.(TXT)
	if !ok || len(t.Strings) != len(o.Strings) {
		return false
	}
	for i := range t.Strings {
		if t.Strings[i] != o.Strings[i] {
			return false
		}
	}
	return true
}
func (t TXT) hashInto(h hashAccumulator) {
	for _, s := range t.Strings {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
}

// SRV is a service-location record body (RFC 2782).
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   Name
}

func (SRV) rrType() uint16 { return TypeSRV }
func (s SRV) equal(other RRData) bool {
	o, ok := other.(SRV)
	return ok && s.Priority == o.Priority && s.Weight == o.Weight &&
		s.Port == o.Port && s.Target.Equal(o.Target)
}
func (s SRV) hashInto(h hashAccumulator) {
	var buf [6]byte
	binary.BigEndian.PutUint16(buf[0:2], s.Priority)
	binary.BigEndian.PutUint16(buf[2:4], s.Weight)
	binary.BigEndian.PutUint16(buf[4:6], s.Port)
	h.Write(buf[:])
	h.Write([]byte(s.Target.foldedKey()))
}

// OPT carries an opaque byte payload. spec.md treats OPT as pass-through
// data the core never interprets; full EDNS(0) option semantics are out of
// scope (spec.md §1 Non-goals: "no ... EDNS processing beyond pass-through").
type OPT struct{ Data []byte }

func (OPT) rrType() uint16 { return TypeOPT }
func (o OPT) equal(other RRData) bool {
	p, ok := other.(OPT)
	return ok && string(o.Data) == string(p.Data)
}
func (o OPT) hashInto(h hashAccumulator) { h.Write(o.Data) }

// NSEC is a next-secure record body: the next owner name in canonical
// ordering, plus the set of record types present at that owner.
type NSEC struct {
	NextDomain Name
	Types      []uint16
}

func (NSEC) rrType() uint16 { return TypeNSEC }
func (n NSEC) equal(other RRData) bool {
	o, ok := other.(NSEC)
	if !ok || !n.NextDomain.Equal(o.NextDomain) || len(n.Types) != len(o.Types) {
		return false
	}
	for i := range n.Types {
		if n.Types[i] != o.Types[i] {
			return false
		}
	}
	return true
}
func (n NSEC) hashInto(h hashAccumulator) {
	h.Write([]byte(n.NextDomain.foldedKey()))
	for _, t := range n.Types {
		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], t)
		h.Write(buf[:])
	}
}

// ResourceRecord is a single DNS resource record: header fields plus a
// type-specific body. Two records are Equal iff every header field and the
// body are equal; Hash folds in the same fields so equal records always
// hash alike.
type ResourceRecord struct {
	Name       Name
	Type       uint16
	Class      uint16
	CacheFlush bool
	TTL        uint32
	Data       RRData
}

// NewRecord builds a ResourceRecord, deriving Type from the body so the two
// can never disagree.
func NewRecord(name Name, cacheFlush bool, ttl uint32, data RRData) ResourceRecord {
	return ResourceRecord{
		Name:       name,
		Type:       data.rrType(),
		Class:      ClassINET,
		CacheFlush: cacheFlush,
		TTL:        ttl,
		Data:       data,
	}
}

// NewAddressPlaceholder builds the placeholder record an InterfaceTransceiver
// must replace with a real A/AAAA before sending (spec §4.2, §9).
func NewAddressPlaceholder(name Name, v6 bool, ttl uint32) ResourceRecord {
	t := TypeA
	if v6 {
		t = TypeAAAA
	}
	return ResourceRecord{
		Name:       name,
		Type:       t,
		Class:      ClassINET,
		CacheFlush: true,
		TTL:        ttl,
		Data:       AddressPlaceholder{V6: v6},
	}
}

// IsAddressPlaceholder reports whether this record still needs fixup.
func (r ResourceRecord) IsAddressPlaceholder() bool {
	_, ok := r.Data.(AddressPlaceholder)
	return ok
}

// Equal reports whether two resource records are identical: same header
// fields, same body.
func (r ResourceRecord) Equal(other ResourceRecord) bool {
	if !r.Name.Equal(other.Name) || r.Type != other.Type || r.Class != other.Class ||
		r.CacheFlush != other.CacheFlush || r.TTL != other.TTL {
		return false
	}
	if r.Data == nil || other.Data == nil {
		return r.Data == other.Data
	}
	return r.Data.equal(other.Data)
}

// Hash returns a 64-bit hash over every field Equal compares, so equal
// records always collide and distinct records rarely do.
func (r ResourceRecord) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(r.Name.foldedKey()))
	var buf [9]byte
	binary.BigEndian.PutUint16(buf[0:2], r.Type)
	binary.BigEndian.PutUint16(buf[2:4], r.Class)
	binary.BigEndian.PutUint32(buf[4:8], r.TTL)
	if r.CacheFlush {
		buf[8] = 1
	}
	h.Write(buf[:])
	if r.Data != nil {
		r.Data.hashInto(h)
	}
	return h.Sum64()
}

// Key identifies a renewable/cacheable resource independent of its current
// TTL or value: (name, type). ResourceRenewer keys its schedule on this;
// InstanceRequestor builds these keys for its Track and Forget calls.
type Key struct {
	Name Name
	Type uint16
}

// KeyOf returns the (name, type) key for a record.
func (r ResourceRecord) KeyOf() Key {
	return NewKey(r.Name, r.Type)
}

// NewKey builds a case-folded (name, type) key, for callers that need to
// key on a name other than a record's own owner name (e.g. a PTR's
// target).
func NewKey(name Name, typ uint16) Key {
	return Key{Name: Name(name.foldedKey()), Type: typ}
}

// MessageFlags are the header bits a Message carries (RFC 1035 §4.1.1).
// The core only ever needs the two bits spec.md names: Response and
// Authoritative.
type MessageFlags uint16

const (
	FlagResponse      MessageFlags = 1 << 15
	FlagAuthoritative MessageFlags = 1 << 10
)

// Header is the fixed part of a Message. QD/AN/NS/AR counts are derived
// from the section slice lengths when a Message is encoded, never stored
// independently, so they can never drift out of sync (spec §8 invariant).
type Header struct {
	ID    uint16
	Flags MessageFlags
}

// Message is a complete, already-parsed DNS message: the only form the
// core ever consumes or produces (spec §1: wire encode/decode is out of
// scope for the core itself).
type Message struct {
	Header      Header
	Questions   []Question
	Answers     []ResourceRecord
	Authorities []ResourceRecord
	Additionals []ResourceRecord
}

// IsQuery reports whether this message is a query (QR bit unset).
func (m *Message) IsQuery() bool {
	return m.Header.Flags&FlagResponse == 0
}

// SetResponse sets the response and authoritative-answer flags. AgentHost
// calls this on any accumulated message with no questions immediately
// before flush (spec §4.1).
func (m *Message) SetResponse() {
	m.Header.Flags |= FlagResponse | FlagAuthoritative
}
