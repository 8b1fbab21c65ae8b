package provider

import (
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
)

// proxiedAutoTTL is the TTL proxied records report ("auto").
const proxiedAutoTTL = 1

// Equivalent reports whether an existing provider record already satisfies
// an intent, using the per-type definition of a material change. A false
// result means the reconciler should issue an update.
//
// The comparison assumes both sides occupy the same (type, name) slot;
// callers diff by Key first.
func Equivalent(existing Record, desired Intent, caps Capabilities) bool {
	if existing.Type != desired.Type || !dnsname.Equal(existing.Name, desired.Name) {
		return false
	}

	// Proxied records report the auto-TTL sentinel regardless of what
	// was requested; the TTL carries no signal for them.
	proxiedAuto := caps.Proxied && boolValue(existing.Extras.Proxied) && existing.TTL == proxiedAutoTTL
	if !proxiedAuto && !ttlEquivalent(existing.TTL, desired.TTL, caps) {
		return false
	}

	switch desired.Type {
	case RecordTypeCNAME, RecordTypeNS:
		// Target hostnames compare case-insensitively.
		if !dnsname.Equal(existing.Content, desired.Content) {
			return false
		}
	case RecordTypeTXT:
		if unquoteTXT(existing.Content) != unquoteTXT(desired.Content) {
			return false
		}
	default:
		if existing.Content != desired.Content {
			return false
		}
	}

	switch desired.Type {
	case RecordTypeMX:
		if !intPtrEqual(existing.Extras.Priority, desired.Extras.Priority) {
			return false
		}
	case RecordTypeSRV:
		if !intPtrEqual(existing.Extras.Priority, desired.Extras.Priority) ||
			!intPtrEqual(existing.Extras.Weight, desired.Extras.Weight) ||
			!intPtrEqual(existing.Extras.Port, desired.Extras.Port) {
			return false
		}
	case RecordTypeCAA:
		if !intPtrEqual(existing.Extras.Flags, desired.Extras.Flags) ||
			!strings.EqualFold(existing.Extras.Tag, desired.Extras.Tag) {
			return false
		}
	}

	// The proxied flag only matters on providers that implement it. An
	// unset desired flag resolves to the backend's configured default,
	// matching what the adapter applies on create and update.
	if caps.Proxied {
		switch desired.Type {
		case RecordTypeA, RecordTypeAAAA, RecordTypeCNAME:
			want := caps.ProxiedDefault
			if desired.Extras.Proxied != nil {
				want = *desired.Extras.Proxied
			}
			if boolValue(existing.Extras.Proxied) != want {
				return false
			}
		}
	}

	return true
}

// ttlEquivalent treats an unset desired TTL (<= 0) as "whatever the
// provider chose", so records created with the provider default are not
// rewritten every pass. An unreported existing TTL (backends without a
// per-record TTL, such as hosts files) never forces an update.
func ttlEquivalent(existing, desired int, caps Capabilities) bool {
	if desired <= 0 || existing <= 0 {
		return true
	}
	return caps.ClampTTL(desired, desired) == existing
}

// unquoteTXT strips one level of surrounding double quotes, the form some
// providers report TXT rdata in.
func unquoteTXT(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
