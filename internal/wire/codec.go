package wire

import (
	"fmt"
	"net"

	"github.com/miekg/dns"

	coreerrors "github.com/fuchsia-oss/mdnscore/internal/errors"
)

// Decode parses a raw mDNS datagram into a Message. It is the "decode"
// half of the pure DNS codec collaborator spec.md §6 describes; byte-level
// RFC 1035 parsing itself lives in github.com/miekg/dns (SPEC_FULL.md
// Domain Stack), not in this module.
func Decode(b []byte) (*Message, error) {
	var m dns.Msg
	if err := m.Unpack(b); err != nil {
		return nil, &coreerrors.WireFormatError{
			Operation: "decode message",
			Offset:    -1,
			Message:   "malformed mDNS datagram",
			Err:       err,
		}
	}

	out := &Message{
		Header: Header{ID: m.Id},
	}
	if m.Response {
		out.Header.Flags |= FlagResponse
	}
	if m.Authoritative {
		out.Header.Flags |= FlagAuthoritative
	}

	for _, q := range m.Question {
		out.Questions = append(out.Questions, Question{
			Name:            NewName(q.Name),
			Type:            q.Qtype,
			UnicastResponse: q.Qclass&classUnicastResponse != 0,
		})
	}

	var convErr error
	conv := func(rrs []dns.RR) []ResourceRecord {
		result := make([]ResourceRecord, 0, len(rrs))
		for _, rr := range rrs {
			rec, err := fromDNSRR(rr)
			if err != nil {
				convErr = err
				continue
			}
			result = append(result, rec)
		}
		return result
	}
	out.Answers = conv(m.Answer)
	out.Authorities = conv(m.Ns)
	out.Additionals = conv(m.Extra)
	if convErr != nil {
		return nil, convErr
	}

	return out, nil
}

// Encode serializes a Message to wire format. It is the "encode" half of
// the pure codec collaborator.
func Encode(m *Message) ([]byte, error) {
	out := new(dns.Msg)
	out.Id = m.Header.ID
	out.Response = m.Header.Flags&FlagResponse != 0
	out.Authoritative = m.Header.Flags&FlagAuthoritative != 0
	out.Compress = true

	for _, q := range m.Questions {
		class := ClassINET
		if q.UnicastResponse {
			class |= classUnicastResponse
		}
		out.Question = append(out.Question, dns.Question{
			Name:   q.Name.String(),
			Qtype:  q.Type,
			Qclass: class,
		})
	}

	var err error
	conv := func(recs []ResourceRecord) []dns.RR {
		result := make([]dns.RR, 0, len(recs))
		for _, r := range recs {
			rr, convErr := toDNSRR(r)
			if convErr != nil {
				err = convErr
				continue
			}
			result = append(result, rr)
		}
		return result
	}
	out.Answer = conv(m.Answers)
	out.Ns = conv(m.Authorities)
	out.Extra = conv(m.Additionals)
	if err != nil {
		return nil, err
	}

	b, packErr := out.Pack()
	if packErr != nil {
		return nil, &coreerrors.WireFormatError{
			Operation: "encode message",
			Offset:    -1,
			Message:   "failed to pack mDNS message",
			Err:       packErr,
		}
	}
	return b, nil
}

func header(name Name, typ, class uint16, ttl uint32) dns.RR_Header {
	return dns.RR_Header{Name: name.String(), Rrtype: typ, Class: class, Ttl: ttl}
}

func classOf(r ResourceRecord) uint16 {
	c := r.Class
	if r.CacheFlush {
		c |= classCacheFlush
	}
	return c
}

// toDNSRR converts one of our tagged ResourceRecord bodies into a concrete
// github.com/miekg/dns RR. A/AAAA placeholders must be resolved by the
// InterfaceTransceiver fixup pass before a message reaches here; fixup is
// the core's own transformation, not the codec's, so an unresolved
// placeholder here is a caller bug, not a wire error.
func toDNSRR(r ResourceRecord) (dns.RR, error) {
	h := header(r.Name, r.Type, classOf(r), r.TTL)
	switch body := r.Data.(type) {
	case A:
		ip4 := body.Addr.To4()
		if ip4 == nil {
			return nil, fmt.Errorf("wire: A record %q has no IPv4 address", r.Name)
		}
		return &dns.A{Hdr: h, A: ip4}, nil
	case AAAA:
		ip6 := body.Addr.To16()
		if ip6 == nil {
			return nil, fmt.Errorf("wire: AAAA record %q has no IPv6 address", r.Name)
		}
		return &dns.AAAA{Hdr: h, AAAA: ip6}, nil
	case NS:
		return &dns.NS{Hdr: h, Ns: body.Target.String()}, nil
	case CNAME:
		return &dns.CNAME{Hdr: h, Target: body.Target.String()}, nil
	case PTR:
		return &dns.PTR{Hdr: h, Ptr: body.Target.String()}, nil
	case TXT:
		strs := body.Strings
		if len(strs) == 0 {
			strs = []string{""}
		}
		return &dns.TXT{Hdr: h, Txt: strs}, nil
	case SRV:
		return &dns.SRV{Hdr: h, Priority: body.Priority, Weight: body.Weight, Port: body.Port, Target: body.Target.String()}, nil
	case OPT:
		opt := &dns.OPT{Hdr: h}
		opt.Hdr.Name = "."
		opt.Hdr.Rrtype = TypeOPT
		opt.Option = append(opt.Option, &dns.EDNS0_LOCAL{Code: dns.EDNS0LOCALSTART, Data: body.Data})
		return opt, nil
	case NSEC:
		return &dns.NSEC{Hdr: h, NextDomain: body.NextDomain.String(), TypeBitMap: body.Types}, nil
	case AddressPlaceholder:
		return nil, fmt.Errorf("wire: unresolved address placeholder for %q reached the codec", r.Name)
	default:
		return nil, fmt.Errorf("wire: unknown record body for %q (type %d)", r.Name, r.Type)
	}
}

// fromDNSRR converts a github.com/miekg/dns RR into our tagged
// ResourceRecord.
func fromDNSRR(rr dns.RR) (ResourceRecord, error) {
	h := rr.Header()
	cacheFlush := h.Class&classCacheFlush != 0
	class := h.Class &^ classCacheFlush
	name := NewName(h.Name)

	switch v := rr.(type) {
	case *dns.A:
		return ResourceRecord{Name: name, Type: TypeA, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: A{Addr: net.IP(v.A)}}, nil
	case *dns.AAAA:
		return ResourceRecord{Name: name, Type: TypeAAAA, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: AAAA{Addr: net.IP(v.AAAA)}}, nil
	case *dns.NS:
		return ResourceRecord{Name: name, Type: TypeNS, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: NS{Target: NewName(v.Ns)}}, nil
	case *dns.CNAME:
		return ResourceRecord{Name: name, Type: TypeCNAME, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: CNAME{Target: NewName(v.Target)}}, nil
	case *dns.PTR:
		return ResourceRecord{Name: name, Type: TypePTR, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: PTR{Target: NewName(v.Ptr)}}, nil
	case *dns.TXT:
		return ResourceRecord{Name: name, Type: TypeTXT, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: TXT{Strings: v.Txt}}, nil
	case *dns.SRV:
		return ResourceRecord{Name: name, Type: TypeSRV, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: SRV{
			Priority: v.Priority, Weight: v.Weight, Port: v.Port, Target: NewName(v.Target),
		}}, nil
	case *dns.OPT:
		var raw []byte
		for _, opt := range v.Option {
			if local, ok := opt.(*dns.EDNS0_LOCAL); ok {
				raw = local.Data
				break
			}
		}
		return ResourceRecord{Name: name, Type: TypeOPT, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: OPT{Data: raw}}, nil
	case *dns.NSEC:
		return ResourceRecord{Name: name, Type: TypeNSEC, Class: class, CacheFlush: cacheFlush, TTL: h.Ttl, Data: NSEC{
			NextDomain: NewName(v.NextDomain), Types: v.TypeBitMap,
		}}, nil
	default:
		return ResourceRecord{}, &coreerrors.WireFormatError{
			Operation: "decode resource record",
			Offset:    -1,
			Message:   fmt.Sprintf("unsupported record type %d for %q", h.Rrtype, h.Name),
		}
	}
}
