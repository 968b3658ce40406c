// Package wire holds the protocol-engine's own data model for DNS names,
// questions, resource records, and messages (spec component WireTypes),
// plus the thin encode/decode adapter over github.com/miekg/dns that plays
// the role of the "pure DNS codec" collaborator: the core never packs or
// unpacks bytes itself, it only builds and consumes these structs.
package wire

import "strings"

// Name is a DNS domain name, always stored with its trailing label
// separator (e.g. "fuchsia.local."). Per RFC 1035, comparisons are
// case-insensitive; Equal and Hash both fold case before comparing so
// "Fuchsia.local." and "fuchsia.local." name the same resource.
type Name string

// NewName returns name with a trailing dot appended if it is missing.
func NewName(name string) Name {
	if name == "" {
		return "."
	}
	if strings.HasSuffix(name, ".") {
		return Name(name)
	}
	return Name(name + ".")
}

// String returns the name as stored (trailing dot included).
func (n Name) String() string {
	return string(n)
}

// Equal reports whether two names refer to the same domain, ignoring case.
func (n Name) Equal(other Name) bool {
	return strings.EqualFold(string(n), string(other))
}

// Labels splits the name into its dot-separated labels, dropping the
// trailing empty label produced by the trailing dot.
func (n Name) Labels() []string {
	s := strings.TrimSuffix(string(n), ".")
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// foldedKey returns a case-folded form suitable for use as a map key or
// hash input.
func (n Name) foldedKey() string {
	return strings.ToLower(string(n))
}

// Fold returns n case-folded, for callers (e.g. InstanceRequestor) that key
// their own maps on a Name and must do so case-insensitively, the same way
// Equal and Key already compare.
func (n Name) Fold() Name {
	return Name(n.foldedKey())
}
