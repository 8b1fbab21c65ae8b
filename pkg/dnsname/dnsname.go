// Package dnsname provides FQDN normalization helpers shared by the
// reconciler and the provider adapters.
//
// Everything crossing the reconciler boundary uses the canonical form
// produced by Normalize: lowercase, no trailing dot. Adapters translate
// between the canonical form and whatever convention their backend uses
// ("@" for the apex, trailing-dot wire names, zone-relative labels).
package dnsname

import "strings"

// Normalize returns the canonical form of a DNS name: lowercase with any
// trailing dot removed. Surrounding whitespace is trimmed.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".")
	return strings.ToLower(name)
}

// Equal reports whether two DNS names are the same after normalization.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// IsApex reports whether name is the apex of zone.
func IsApex(name, zone string) bool {
	return Normalize(name) == Normalize(zone)
}

// InZone reports whether name belongs to zone (is the apex or a name
// below it).
func InZone(name, zone string) bool {
	n := Normalize(name)
	z := Normalize(zone)
	if z == "" {
		return false
	}
	return n == z || strings.HasSuffix(n, "."+z)
}

// ToWire returns the fully-qualified wire form of a name: normalized with
// a trailing dot appended.
func ToWire(name string) string {
	n := Normalize(name)
	if n == "" {
		return "."
	}
	return n + "."
}

// ToRelative converts a canonical FQDN to the zone-relative form used by
// providers that address records by label: the apex becomes "@" and
// "app.example.com" in zone "example.com" becomes "app". Names outside
// the zone are returned unchanged.
func ToRelative(name, zone string) string {
	n := Normalize(name)
	z := Normalize(zone)
	if n == z {
		return "@"
	}
	if strings.HasSuffix(n, "."+z) {
		return strings.TrimSuffix(n, "."+z)
	}
	return n
}

// FromRelative converts a provider-relative name back to a canonical FQDN
// within zone. "@" and the empty string map to the apex.
func FromRelative(name, zone string) string {
	n := Normalize(name)
	z := Normalize(zone)
	if n == "" || n == "@" {
		return z
	}
	if n == z || strings.HasSuffix(n, "."+z) {
		return n
	}
	return n + "." + z
}
