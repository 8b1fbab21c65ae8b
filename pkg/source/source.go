// Package source defines the hostname source contract: something that can
// report the set of hostnames that should currently exist in the zone,
// together with per-host record-intent hints.
package source

import (
	"context"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// Source produces the current desired hostname set. Implementations poll
// a reverse proxy API (proxy mode) or the container runtime (direct mode).
type Source interface {
	// Name identifies the source for logging ("traefik", "docker").
	Name() string

	// Fetch returns the current hostname set. Failures of individual
	// routers/containers are isolated inside the source; Fetch only
	// errors when the upstream itself is unreachable.
	Fetch(ctx context.Context) (HostnameSet, error)
}

// IntentHints carries per-host overrides discovered next to the hostname
// (container labels, router labels). Zero values mean "use the default".
type IntentHints struct {
	// Type overrides the record type (default A, or AAAA/CNAME/...).
	Type provider.RecordType

	// Content overrides the record content (default: current public IP
	// for A/AAAA, zone apex for CNAME).
	Content string

	// TTL overrides the record TTL in seconds.
	TTL int

	// Proxied sets the Cloudflare proxied flag. Nil means provider default.
	Proxied *bool

	// Skip excludes the hostname from management entirely.
	Skip bool
}

// HostnameSet is the desired state emitted by a source on each tick:
// the hostnames that should exist plus any per-host hints. Names are
// canonical dotless lowercase FQDNs.
type HostnameSet struct {
	Names map[string]struct{}
	Hints map[string]IntentHints
}

// NewHostnameSet returns an empty set.
func NewHostnameSet() HostnameSet {
	return HostnameSet{
		Names: make(map[string]struct{}),
		Hints: make(map[string]IntentHints),
	}
}

// Add inserts a hostname (normalized) with its hints. Hosts marked Skip
// are not added. The first hints for a hostname win; later duplicates
// only contribute their name.
func (hs HostnameSet) Add(name string, hints IntentHints) {
	if hints.Skip {
		return
	}
	name = dnsname.Normalize(name)
	if name == "" {
		return
	}
	if _, exists := hs.Names[name]; !exists {
		hs.Names[name] = struct{}{}
		hs.Hints[name] = hints
	}
}

// Merge folds other into hs. Existing entries keep their hints.
func (hs HostnameSet) Merge(other HostnameSet) {
	for name := range other.Names {
		hs.Add(name, other.Hints[name])
	}
}

// Contains reports whether the set holds the hostname.
func (hs HostnameSet) Contains(name string) bool {
	_, ok := hs.Names[dnsname.Normalize(name)]
	return ok
}

// Len returns the number of hostnames in the set.
func (hs HostnameSet) Len() int {
	return len(hs.Names)
}
