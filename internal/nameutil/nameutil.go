// Package nameutil composes and validates the DNS-SD name forms the mDNS
// core works with: host names, service types, subtypes, and service
// instance full names (spec component NameUtil).
package nameutil

import (
	"strings"

	coreerrors "github.com/fuchsia-oss/mdnscore/internal/errors"
	"github.com/fuchsia-oss/mdnscore/internal/wire"
)

// maxLabelLength and maxNameLength are the RFC 1035 §3.1 wire-format
// limits. Label length is validated here even though the actual packing
// happens in internal/wire, because a name can be rejected before it is
// ever turned into a record; total name length is not checked here.
const (
	maxLabelLength = 63
	maxNameLength  = 255
)

// ValidateLabel checks a single DNS label (no dots) for emptiness and
// length. It does not check the character set; ValidateHostLabel does.
func ValidateLabel(field, label string) error {
	if label == "" {
		return &coreerrors.ValidationError{Field: field, Value: label, Message: "label cannot be empty"}
	}
	if len(label) > maxLabelLength {
		return &coreerrors.ValidationError{Field: field, Value: label, Message: "label exceeds 63 bytes"}
	}
	return nil
}

// ValidateHostLabel checks a single label of a host name: letters,
// digits, hyphen, underscore; hyphen cannot lead or trail.
func ValidateHostLabel(field, label string) error {
	if err := ValidateLabel(field, label); err != nil {
		return err
	}
	for i, ch := range label {
		valid := (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '-' || ch == '_'
		if !valid {
			return &coreerrors.ValidationError{Field: field, Value: label, Message: "invalid character in label"}
		}
		if ch == '-' && (i == 0 || i == len(label)-1) {
			return &coreerrors.ValidationError{Field: field, Value: label, Message: "hyphen cannot lead or trail a label"}
		}
	}
	return nil
}

// ValidateHostName validates a bare host name (no trailing ".local.") such
// as "fuchsia" before it becomes a full name.
func ValidateHostName(host string) error {
	if host == "" {
		return &coreerrors.ValidationError{Field: "host", Value: host, Message: "host name cannot be empty"}
	}
	for _, label := range strings.Split(host, ".") {
		if err := ValidateHostLabel("host", label); err != nil {
			return err
		}
	}
	return nil
}

// HostFullName returns the full local name for a bare host name, e.g.
// "fuchsia" -> "fuchsia.local.".
func HostFullName(host string) wire.Name {
	return wire.NewName(host + ".local")
}

// ValidateServiceName validates a service type of the form
// "_svc._tcp.local." or "_svc._udp.local." (trailing dot optional).
func ValidateServiceName(service string) error {
	trimmed := strings.TrimSuffix(service, ".")
	labels := strings.Split(trimmed, ".")
	if len(labels) < 3 {
		return &coreerrors.ValidationError{Field: "service", Value: service, Message: "service name must be of the form _svc._tcp.local."}
	}
	proto := labels[len(labels)-2]
	if proto != "_tcp" && proto != "_udp" {
		return &coreerrors.ValidationError{Field: "service", Value: service, Message: "service protocol must be _tcp or _udp"}
	}
	if !strings.HasPrefix(labels[0], "_") {
		return &coreerrors.ValidationError{Field: "service", Value: service, Message: "service type label must start with underscore"}
	}
	for _, label := range labels {
		if err := ValidateLabel("service", label); err != nil {
			return err
		}
	}
	return nil
}

// ServiceFullName normalizes a service type to its full trailing-dot form.
func ServiceFullName(service string) wire.Name {
	return wire.NewName(service)
}

// ValidateInstanceName validates a DNS-SD instance name. Per RFC 6763 §4.3
// the instance portion is a single label that may contain arbitrary UTF-8,
// including spaces — it is intentionally NOT validated against the strict
// host-label character set.
func ValidateInstanceName(instance string) error {
	if instance == "" {
		return &coreerrors.ValidationError{Field: "instance", Value: instance, Message: "instance name cannot be empty"}
	}
	if len(instance) > maxLabelLength {
		return &coreerrors.ValidationError{Field: "instance", Value: instance, Message: "instance name exceeds 63 bytes"}
	}
	return nil
}

// InstanceFullName joins an instance name and a service type into the full
// service-instance name, e.g. ("demo", "_test._tcp.local.") ->
// "demo._test._tcp.local.".
func InstanceFullName(instance, service string) wire.Name {
	svc := strings.TrimSuffix(string(ServiceFullName(service)), ".")
	return wire.NewName(instance + "." + svc)
}

// SplitInstanceFullName reverses InstanceFullName, given the service type
// it was built from. It returns ok=false if fullName does not end with
// "."+service.
func SplitInstanceFullName(fullName wire.Name, service string) (instance string, ok bool) {
	svc := "." + strings.TrimSuffix(string(ServiceFullName(service)), ".")
	s := strings.TrimSuffix(string(fullName), ".")
	svcTrim := strings.TrimSuffix(svc, ".")
	if !strings.HasSuffix(strings.ToLower(s), strings.ToLower(svcTrim)) {
		return "", false
	}
	instance = s[:len(s)-len(svcTrim)]
	instance = strings.TrimSuffix(instance, ".")
	if instance == "" {
		return "", false
	}
	return instance, true
}

// SubtypeFullName builds the name used to advertise a service subtype:
// "_<subtype>._sub._<service>._<proto>.local.".
func SubtypeFullName(subtype, service string) wire.Name {
	svc := strings.TrimSuffix(string(ServiceFullName(service)), ".")
	return wire.NewName("_" + subtype + "._sub." + svc)
}

// ValidateSubtype validates a bare subtype label (no "_sub." decoration).
func ValidateSubtype(subtype string) error {
	return ValidateLabel("subtype", subtype)
}

// ServicesEnumerationName is the well-known DNS-SD service enumeration
// name from RFC 6763 §9: querying PTR against this name discovers every
// service type a responder advertises.
const ServicesEnumerationName wire.Name = "_services._dns-sd._udp.local."
