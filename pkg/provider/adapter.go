package provider

import (
	"context"
	"net"
	"strings"
)

// Capabilities describes what a backend supports. The reconciler and the
// intent validation consult it before issuing calls.
type Capabilities struct {
	// Proxied is true when the backend supports the proxied flag
	// (Cloudflare). Proxied may only be set on A/AAAA/CNAME records.
	Proxied bool

	// ProxiedDefault is the value the backend applies to proxyable
	// records whose intent leaves the flag unset. Only meaningful when
	// Proxied is true.
	ProxiedDefault bool

	// TTLMin and TTLMax bound the accepted TTL range in seconds.
	TTLMin int
	TTLMax int

	// SupportedTypes lists the record types the backend can manage.
	SupportedTypes []RecordType

	// BatchOperations is true when the backend has a native batch API.
	// Otherwise BatchEnsure falls back to single-record calls.
	BatchOperations bool
}

// Supports reports whether the backend can manage the given record type.
func (c Capabilities) Supports(rt RecordType) bool {
	for _, t := range c.SupportedTypes {
		if t == rt {
			return true
		}
	}
	return false
}

// ClampTTL forces ttl into the capability range, substituting def when
// ttl is unset (<= 0).
func (c Capabilities) ClampTTL(ttl, def int) int {
	if ttl <= 0 {
		ttl = def
	}
	if c.TTLMin > 0 && ttl < c.TTLMin {
		ttl = c.TTLMin
	}
	if c.TTLMax > 0 && ttl > c.TTLMax {
		ttl = c.TTLMax
	}
	return ttl
}

// Adapter is the CRUD contract a DNS backend implements for a single zone.
//
// All names crossing this interface are canonical dotless lowercase FQDNs;
// the adapter owns the translation to its backend's wire convention.
// Implementations classify failures via the error Reasons in this package.
type Adapter interface {
	// Name returns the adapter type name (e.g. "cloudflare").
	Name() string

	// Init verifies credentials and resolves the zone. Called once before
	// the adapter is put into service and again on hot swap.
	Init(ctx context.Context) error

	// TestConnection checks that the backend is reachable and the
	// credentials still work.
	TestConnection(ctx context.Context) error

	// ZoneName returns the canonical zone this adapter manages.
	ZoneName() string

	// Capabilities describes what the backend supports.
	Capabilities() Capabilities

	// ListRecords returns the current zone contents. This is the raw,
	// uncached call; the Manager layers the snapshot cache on top.
	ListRecords(ctx context.Context) ([]Record, error)

	// CreateRecord creates the record described by the intent and returns
	// the provider's view of it, including the new record ID.
	CreateRecord(ctx context.Context, intent Intent) (Record, error)

	// UpdateRecord replaces the record with the given provider ID. Some
	// backends regenerate the ID on update; callers must adopt the ID of
	// the returned record.
	UpdateRecord(ctx context.Context, id string, intent Intent) (Record, error)

	// DeleteRecord removes the record with the given provider ID.
	// Deleting an already-absent record is not an error.
	DeleteRecord(ctx context.Context, id string) error
}

// BatchAdapter is implemented by backends with a native batch API.
// The Manager uses it when Capabilities().BatchOperations is true.
type BatchAdapter interface {
	Adapter
	BatchEnsureRecords(ctx context.Context, intents []Intent) (BatchResult, error)
}

// BatchResult summarizes a batch ensure operation.
type BatchResult struct {
	Created   int
	Updated   int
	Unchanged int
	Failed    int
}

// ValidateIntent enforces capability and rdata constraints on an intent
// before it is sent to a backend. Violations are reported as ReasonInvalid
// errors.
func ValidateIntent(providerName string, intent Intent, caps Capabilities) error {
	fail := func(msg string) error {
		return WrapError(providerName, "validate", ReasonInvalid,
			ErrConfigInvalid(string(intent.Type), intent.Name, msg))
	}

	if intent.Name == "" {
		return fail("record name is empty")
	}
	if !caps.Supports(intent.Type) {
		return fail("record type not supported by provider")
	}
	if intent.Content == "" {
		return fail("record content is empty")
	}
	if intent.TTL > 0 && caps.TTLMin > 0 && intent.TTL < caps.TTLMin {
		return fail("ttl below provider minimum")
	}
	if intent.TTL > 0 && caps.TTLMax > 0 && intent.TTL > caps.TTLMax {
		return fail("ttl above provider maximum")
	}

	switch intent.Type {
	case RecordTypeA:
		ip := net.ParseIP(intent.Content)
		if ip == nil || ip.To4() == nil {
			return fail("A record content is not an IPv4 address")
		}
	case RecordTypeAAAA:
		ip := net.ParseIP(intent.Content)
		if ip == nil || ip.To4() != nil {
			return fail("AAAA record content is not an IPv6 address")
		}
	case RecordTypeMX:
		if intent.Extras.Priority == nil {
			return fail("MX record requires a priority")
		}
	case RecordTypeSRV:
		if intent.Extras.Priority == nil || intent.Extras.Weight == nil || intent.Extras.Port == nil {
			return fail("SRV record requires priority, weight, and port")
		}
	case RecordTypeCAA:
		if intent.Extras.Tag == "" {
			return fail("CAA record requires a tag")
		}
		switch strings.ToLower(intent.Extras.Tag) {
		case "issue", "issuewild", "iodef":
		default:
			return fail("CAA tag must be issue, issuewild, or iodef")
		}
	}

	if boolValue(intent.Extras.Proxied) {
		if !caps.Proxied {
			return fail("provider does not support proxied records")
		}
		switch intent.Type {
		case RecordTypeA, RecordTypeAAAA, RecordTypeCNAME:
		default:
			return fail("proxied is only valid on A, AAAA, and CNAME records")
		}
	}

	return nil
}
