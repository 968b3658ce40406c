package host

import (
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/fuchsia-oss/mdnscore/internal/agent"
	coreerrors "github.com/fuchsia-oss/mdnscore/internal/errors"
	"github.com/fuchsia-oss/mdnscore/internal/nameutil"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// ReadyCallback is invoked exactly once, from the dispatch goroutine, once
// Start's address probe (if requested) has settled on a final host name
// and the engine is active (spec §4.1, AgentHost.Start).
type ReadyCallback func(finalHostName string)

// Start brings the host from not-started to active. It adds every
// interface ifaceSrc currently reports to the transport, optionally runs
// an AddressProber to settle on a conflict-free host name, and invokes
// ready exactly once when the engine is ready to publish/subscribe/resolve
// (spec §4.1).
func (h *Host) Start(baseHostName string, performAddressProbe bool, ready ReadyCallback) error {
	if err := nameutil.ValidateHostName(baseHostName); err != nil {
		return err
	}
	ifaces, err := h.ifaceSrc.Interfaces()
	if err != nil {
		return &coreerrors.NetworkError{Operation: "enumerate interfaces", Err: err}
	}
	for _, iface := range ifaces {
		if err := h.transport.AddInterface(iface); err != nil {
			h.log.Warn("host: failed to attach interface", zap.String("interface", iface.Name), zap.Error(err))
		}
	}

	done := make(chan struct{})
	h.send(func() {
		defer close(done)
		h.state = stateProbing
		h.localBase = baseHostName
		h.addrResponder = agent.NewAddressResponder()
		h.addAgent(h.addrResponder)

		finish := func(finalName wire.Name) {
			h.localName = finalName
			h.state = stateActive
			h.addrResponder.MarkReady()
			if ready != nil {
				ready(finalName.String())
			}
		}

		if !performAddressProbe {
			finish(wire.NewName(baseHostName + ".local"))
			return
		}

		prober := agent.NewAddressProber(baseHostName,
			func(finalName wire.Name) {
				finish(finalName)
			},
			func(err error) {
				h.log.Warn("host: address probe exhausted renames", zap.Error(err))
			},
		)
		h.addAgent(prober)
	})
	<-done
	return nil
}

// Stop shuts down the transceiver and returns the host to not-started.
// Every agent is given a chance to emit goodbye traffic via its Stop
// method before the registry is cleared.
func (h *Host) Stop() error {
	done := make(chan struct{})
	h.send(func() {
		defer close(done)
		for id := range h.agents {
			h.stopAgent(id)
		}
		h.flush()
		h.state = stateNotStarted
		h.localBase = ""
		h.localName = ""
		h.published = make(map[string]*publishedEntry)
		h.requestors = make(map[string]*requestorEntry)
	})
	<-done
	close(h.done)
	h.wg.Wait()
	return h.transport.Close()
}

// ResolveHostName resolves name's A/AAAA records, calling result exactly
// once with whatever addresses were collected within deadline (spec
// §4.1, §4.4 HostNameResolver). Only callable once the host is active.
func (h *Host) ResolveHostName(name string, deadline time.Duration, result func(name string, v4, v6 net.IP)) error {
	var startErr error
	done := make(chan struct{})
	h.send(func() {
		defer close(done)
		if h.state != stateActive {
			startErr = errNotActive
			return
		}
		full := wire.NewName(name)
		r := agent.NewHostNameResolver(full, func(addrs []net.IP, _ error) {
			var v4, v6 net.IP
			for _, a := range addrs {
				if a.To4() != nil {
					v4 = a
				} else {
					v6 = a
				}
			}
			if result != nil {
				result(name, v4, v6)
			}
		})
		id := h.addAgent(r)
		r.ScheduleDeadline(hostView{h, id}, h.now().Add(deadline))
	})
	<-done
	return startErr
}

// SubscribeToService attaches sub to the InstanceRequestor for service,
// creating one if this is the first subscriber (spec §4.1, §4.5).
func (h *Host) SubscribeToService(service string, sub agent.InstanceSubscriber) error {
	if err := nameutil.ValidateServiceName(service); err != nil {
		return err
	}
	var startErr error
	done := make(chan struct{})
	h.send(func() {
		defer close(done)
		if h.state != stateActive {
			startErr = errNotActive
			return
		}
		entry, ok := h.requestors[service]
		if !ok {
			req := agent.NewInstanceRequestor(service, func() {
				h.removeRequestor(service)
			})
			id := h.addAgent(req)
			entry = &requestorEntry{id: id, req: req}
			h.requestors[service] = entry
		}
		entry.req.AddSubscriber(sub)
	})
	<-done
	return startErr
}

// UnsubscribeFromService detaches sub from service's InstanceRequestor. If
// it was the last subscriber, the requestor removes itself.
func (h *Host) UnsubscribeFromService(service string, sub agent.InstanceSubscriber) {
	h.send(func() {
		entry, ok := h.requestors[service]
		if !ok {
			return
		}
		entry.req.RemoveSubscriber(sub)
	})
}

func (h *Host) removeRequestor(service string) {
	entry, ok := h.requestors[service]
	if !ok {
		return
	}
	delete(h.requestors, service)
	h.removeAgent(entry.id)
}

// PublishServiceInstance advertises inst. If performProbe is true, an
// InstanceProber runs first and the InstanceResponder is only added (and
// the publisher's probe-success callback invoked) once it settles on a
// conflict-free instance label (spec §4.1, §4.6, §4.7).
func (h *Host) PublishServiceInstance(inst agent.PublishedInstance, performProbe bool, onResult func(finalInstance string, err error)) error {
	if err := nameutil.ValidateServiceName(inst.Service); err != nil {
		return err
	}
	if err := nameutil.ValidateInstanceName(inst.Instance); err != nil {
		return err
	}
	key := nameutil.InstanceFullName(inst.Instance, inst.Service).String()

	var startErr error
	done := make(chan struct{})
	h.send(func() {
		defer close(done)
		if h.state != stateActive {
			startErr = errNotActive
			return
		}
		if _, exists := h.published[key]; exists {
			startErr = &coreerrors.DuplicatePublicationError{Key: key}
			return
		}

		entry := &publishedEntry{}
		h.published[key] = entry

		responder := agent.NewInstanceResponder(inst)
		publisher := inst.ResolvePublisher()

		addResponder := func(finalInstance string) {
			responder.MarkReady(finalInstance)
			entry.responderID = h.addAgent(responder)
			publisher.ReportSuccess(true)
			if onResult != nil {
				onResult(finalInstance, nil)
			}
		}

		if !performProbe {
			addResponder(inst.Instance)
			return
		}

		prober := agent.NewInstanceProber(inst.Instance, inst.Service, inst.Port,
			addResponder,
			func(err error) {
				delete(h.published, key)
				publisher.ReportSuccess(false)
				if onResult != nil {
					onResult("", err)
				}
			},
		)
		entry.proberID = h.addAgent(prober)
	})
	<-done
	return startErr
}

// UnpublishServiceInstance withdraws a previously published instance,
// giving its InstanceResponder (and InstanceProber, if still probing) a
// chance to emit goodbye traffic.
func (h *Host) UnpublishServiceInstance(instance, service string) {
	key := nameutil.InstanceFullName(instance, service).String()
	h.send(func() {
		entry, ok := h.published[key]
		if !ok {
			return
		}
		delete(h.published, key)
		h.removeAgent(entry.proberID)
		h.removeAgent(entry.responderID)
	})
}
