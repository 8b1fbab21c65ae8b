// Package provider defines the contract between the reconciler and the DNS
// backends: the record model, the Adapter interface every backend
// implements, typed errors with failure reasons, and the Manager that owns
// the active adapter and its zone cache.
package provider

import (
	"fmt"
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
)

// RecordType represents the type of DNS record.
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
	RecordTypeMX    RecordType = "MX"
	RecordTypeTXT   RecordType = "TXT"
	RecordTypeSRV   RecordType = "SRV"
	RecordTypeCAA   RecordType = "CAA"
	RecordTypeNS    RecordType = "NS"
)

// AllRecordTypes lists every record type the system understands.
var AllRecordTypes = []RecordType{
	RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeMX,
	RecordTypeTXT, RecordTypeSRV, RecordTypeCAA, RecordTypeNS,
}

// ParseRecordType converts a string to a RecordType, ignoring case and
// surrounding whitespace. Returns false if the type is not recognized.
func ParseRecordType(s string) (RecordType, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, rt := range AllRecordTypes {
		if string(rt) == s {
			return rt, true
		}
	}
	return "", false
}

// Extras carries the optional rdata fields that only some record types use,
// plus provider metadata such as the Cloudflare proxied flag. Nil pointer
// means "not set" so zero values stay distinguishable.
type Extras struct {
	Priority *int   `json:"priority,omitempty"` // MX, SRV
	Weight   *int   `json:"weight,omitempty"`   // SRV
	Port     *int   `json:"port,omitempty"`     // SRV
	Flags    *int   `json:"flags,omitempty"`    // CAA
	Tag      string `json:"tag,omitempty"`      // CAA
	Proxied  *bool  `json:"proxied,omitempty"`  // Cloudflare
}

// IntentSource identifies where a record intent came from.
type IntentSource string

const (
	// SourceDiscovered marks intents derived from the hostname source.
	SourceDiscovered IntentSource = "discovered"
	// SourceManaged marks intents from the static managed-hostname list.
	SourceManaged IntentSource = "managed"
)

// Intent is a desired DNS record, derived each reconciliation pass from
// the hostname source or the managed-hostname list. Names are canonical
// (dotless lowercase FQDN).
type Intent struct {
	Name    string
	Type    RecordType
	Content string
	TTL     int
	Extras  Extras
	Source  IntentSource
}

// Key returns the (type, name) identity of the intent.
func (i Intent) Key() Key {
	return Key{Type: i.Type, Name: dnsname.Normalize(i.Name)}
}

// String returns a compact human-readable form for logging.
func (i Intent) String() string {
	return fmt.Sprintf("%s %s -> %s (ttl=%d, %s)", i.Type, i.Name, i.Content, i.TTL, i.Source)
}

// Record is a DNS record as reported by a provider. ID is the provider's
// opaque record identifier. Names are canonical at this boundary; adapters
// translate from their wire convention.
type Record struct {
	ID      string
	Name    string
	Type    RecordType
	Content string
	TTL     int
	Extras  Extras
}

// Key returns the (type, name) identity of the record.
func (r Record) Key() Key {
	return Key{Type: r.Type, Name: dnsname.Normalize(r.Name)}
}

// String returns a compact human-readable form for logging.
func (r Record) String() string {
	return fmt.Sprintf("%s %s -> %s (ttl=%d, id=%s)", r.Type, r.Name, r.Content, r.TTL, r.ID)
}

// Key identifies a record slot in a zone by type and canonical name.
// At most one app-managed record may occupy a slot.
type Key struct {
	Type RecordType
	Name string
}

func (k Key) String() string {
	return string(k.Type) + " " + k.Name
}

// ByKey indexes records by (type, name). When a provider reports multiple
// records in the same slot (round-robin A records), the first one wins;
// the reconciler treats the slot as occupied either way.
func ByKey(records []Record) map[Key]Record {
	byKey := make(map[Key]Record, len(records))
	for _, r := range records {
		k := r.Key()
		if _, exists := byKey[k]; !exists {
			byKey[k] = r
		}
	}
	return byKey
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func boolValue(p *bool) bool {
	return p != nil && *p
}
