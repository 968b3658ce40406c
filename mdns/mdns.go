// Package mdns is the single public façade over this module's mDNS engine:
// it wires internal/addrbook, internal/transceiver, and internal/host
// together into one constructible Service an embedder starts, publishes
// service instances through, subscribes to remote services through, and
// resolves remote host names through (spec §2 AgentHost, §6 external
// interfaces). It mirrors the teacher's own top-level responder/querier
// packages — one public package per concern — collapsed into a single
// façade because this core's AgentHost already unifies publish,
// subscribe, and resolve behind one dispatch loop.
package mdns

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/fuchsia-oss/mdnscore/internal/agent"
	"github.com/fuchsia-oss/mdnscore/internal/host"
	"github.com/fuchsia-oss/mdnscore/internal/ifacesource"
	"github.com/fuchsia-oss/mdnscore/internal/transceiver"
)

// Service is an mDNS engine instance: one Transceiver (sockets) plus one
// AgentHost (protocol state), bound together for the lifetime of a single
// Start/Stop cycle.
type Service struct {
	host *host.Host
}

type config struct {
	logger   *zap.Logger
	ifaceSrc ifacesource.Source
}

// Option configures a Service at construction time.
type Option func(*config)

// WithLogger sets the *zap.Logger the Service's transceiver and host use
// for their own diagnostics (dropped parses, failed sends, interface
// attach failures, exhausted address probes). Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithInterfaceSource overrides how the Service discovers network
// interfaces to attach to; defaults to ifacesource.Default{}. Tests use
// this to supply a fixed interface list.
func WithInterfaceSource(src ifacesource.Source) Option {
	return func(c *config) {
		if src != nil {
			c.ifaceSrc = src
		}
	}
}

// New opens the mDNS multicast sockets and constructs a Service. Call
// Start before Publish, Subscribe, or ResolveHostName.
func New(opts ...Option) (*Service, error) {
	cfg := &config{logger: zap.NewNop(), ifaceSrc: ifacesource.Default{}}
	for _, opt := range opts {
		opt(cfg)
	}

	tc, err := transceiver.New(cfg.logger)
	if err != nil {
		return nil, err
	}

	h := host.New(tc, cfg.ifaceSrc, host.WithLogger(cfg.logger))
	return &Service{host: h}, nil
}

// Start brings the Service active: it attaches every interface the
// configured source reports, optionally probes the host name for
// uniqueness (RFC 6762 §8), and invokes ready exactly once with the final
// host name once the engine can publish, subscribe, and resolve.
func (s *Service) Start(hostName string, performAddressProbe bool, ready func(finalHostName string)) error {
	return s.host.Start(hostName, performAddressProbe, host.ReadyCallback(ready))
}

// Stop shuts down the sockets and every live agent, giving published
// instances and the local host name a chance to send goodbye records.
func (s *Service) Stop() error {
	return s.host.Stop()
}

// LocalHostName returns the Service's current full host name, or "" if
// Start hasn't completed yet.
func (s *Service) LocalHostName() string {
	return s.host.LocalHostName().String()
}

// PublicationSpec is the record content a Publisher returns for one
// announcement or query response (spec §3 PublicationSpec).
type PublicationSpec = agent.PublicationSpec

// Publisher supplies publication content on demand and learns a probe's
// outcome (spec §6 Publisher collaborator). Set it on Instance.Publisher to
// drive an instance's content dynamically instead of replaying the same
// Port/TXT/... fields on every announcement and answer.
type Publisher = agent.Publisher

// Instance describes a service instance to publish (spec §3
// PublicationSpec plus the identity fields InstanceResponder needs).
type Instance struct {
	// Name is the bare instance label, e.g. "Office Printer".
	Name string
	// Service is the full service type, e.g. "_http._tcp.local.".
	Service string
	// Subtypes are additional "_sub"-qualified service types to also
	// answer PTR queries under (RFC 6763 §7.1).
	Subtypes []string
	// Port is the TCP/UDP port the service listens on.
	Port uint16
	// TXT is the set of key/value strings advertised in the TXT record.
	TXT []string
	// SRVPriority and SRVWeight are carried in the SRV record (RFC 2782).
	SRVPriority uint16
	SRVWeight   uint16
	// PTRTTL, SRVTTL, TXTTTL default to the engine's usual long/short/long
	// TTLs (spec §3) when left zero.
	PTRTTL uint32
	SRVTTL uint32
	TXTTTL uint32

	// Publisher, when set, overrides Port/TXT/SRVPriority/SRVWeight/*TTL:
	// the engine asks it for a PublicationSpec on every announcement and
	// query instead of replaying this struct's own fields.
	Publisher Publisher
}

// Publish advertises inst. If performProbe is true, the instance's name is
// probed for uniqueness first (RFC 6762 §8–§9) and renamed on conflict;
// onResult is called exactly once with the final (possibly renamed) name,
// or an error if the probe exhausted its renaming budget or the instance
// was already published locally.
func (s *Service) Publish(inst Instance, performProbe bool, onResult func(finalName string, err error)) error {
	return s.host.PublishServiceInstance(agent.PublishedInstance{
		Instance:    inst.Name,
		Service:     inst.Service,
		Subtypes:    inst.Subtypes,
		Port:        inst.Port,
		TXT:         inst.TXT,
		SRVPriority: inst.SRVPriority,
		SRVWeight:   inst.SRVWeight,
		PTRTTL:      inst.PTRTTL,
		SRVTTL:      inst.SRVTTL,
		TXTTTL:      inst.TXTTTL,
		Publisher:   inst.Publisher,
	}, performProbe, onResult)
}

// Unpublish withdraws a previously published instance, sending goodbye
// records for it.
func (s *Service) Unpublish(instanceName, service string) {
	s.host.UnpublishServiceInstance(instanceName, service)
}

// DiscoveredInstance is what Subscribe surfaces for a remote service
// instance: its identity plus whatever of its records have resolved so
// far (spec §4.5).
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

// Subscriber receives discovery/change/loss notifications for a
// subscribed service (spec §4.5, §6 Subscriber collaborator interface).
type Subscriber interface {
	InstanceDiscovered(DiscoveredInstance)
	InstanceChanged(DiscoveredInstance)
	InstanceLost(DiscoveredInstance)
}

// subscriberAdapter bridges the public Subscriber contract to
// internal/agent's InstanceSubscriber contract, translating the internal
// DiscoveredInstance shape into the public one at the boundary. It wraps
// Subscriber by value so two adapters built over the same concrete
// Subscriber compare equal, letting Unsubscribe cancel what Subscribe
// registered without the Service needing to track adapter identity
// itself; callers should implement Subscriber on a pointer receiver so
// that equality reflects identity rather than field contents.
type subscriberAdapter struct {
	sub Subscriber
}

func (a subscriberAdapter) InstanceDiscovered(inst agent.DiscoveredInstance) {
	a.sub.InstanceDiscovered(convertDiscovered(inst))
}
func (a subscriberAdapter) InstanceChanged(inst agent.DiscoveredInstance) {
	a.sub.InstanceChanged(convertDiscovered(inst))
}
func (a subscriberAdapter) InstanceLost(inst agent.DiscoveredInstance) {
	a.sub.InstanceLost(convertDiscovered(inst))
}

func convertDiscovered(inst agent.DiscoveredInstance) DiscoveredInstance {
	return DiscoveredInstance{
		FullName: inst.FullName,
		Instance: inst.Instance,
		Service:  inst.Service,
		Removed:  inst.Removed,
		Target:   inst.Target,
		Port:     inst.Port,
		TXT:      inst.TXT,
		V4:       inst.V4,
		V6:       inst.V6,
	}
}

// Subscribe attaches sub to service's instance set, creating the
// underlying browser if this is the first subscriber for service. sub is
// synthesized an InstanceDiscovered callback for every instance already
// known with at least one resolved address.
func (s *Service) Subscribe(service string, sub Subscriber) error {
	return s.host.SubscribeToService(service, subscriberAdapter{sub: sub})
}

// Unsubscribe detaches sub from service. If it was the last subscriber,
// the underlying browser shuts itself down.
func (s *Service) Unsubscribe(service string, sub Subscriber) {
	s.host.UnsubscribeFromService(service, subscriberAdapter{sub: sub})
}

// ResolveHostName resolves name's A/AAAA records, calling result exactly
// once with whatever addresses were collected within deadline (spec
// §4.4 HostNameResolver).
func (s *Service) ResolveHostName(name string, deadline time.Duration, result func(name string, v4, v6 net.IP)) error {
	return s.host.ResolveHostName(name, deadline, result)
}
