// Package hostlist parses the operator-supplied hostname lists: managed
// entries that must exist regardless of discovery, and preserved patterns
// that shield records from any mutation.
package hostlist

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
)

// ManagedEntry is one parsed managed hostname. Content may be empty for
// A, AAAA and CNAME entries: A/AAAA fall back to the current public IP
// and CNAME to the zone apex at reconcile time.
type ManagedEntry struct {
	Name    string
	Type    provider.RecordType
	Content string
	TTL     int
	Proxied *bool
}

// Key returns the identity used for duplicate detection.
func (e ManagedEntry) Key() provider.Key {
	return provider.Key{Type: e.Type, Name: e.Name}
}

// String renders the entry back into the hostname:type[:content[:ttl[:proxied]]]
// form it was parsed from, omitting unset trailing fields.
func (e ManagedEntry) String() string {
	parts := []string{e.Name, string(e.Type)}
	if e.Content != "" || e.TTL > 0 || e.Proxied != nil {
		parts = append(parts, e.Content)
	}
	if e.TTL > 0 || e.Proxied != nil {
		parts = append(parts, ttlField(e.TTL))
	}
	if e.Proxied != nil {
		parts = append(parts, strconv.FormatBool(*e.Proxied))
	}
	return strings.Join(parts, ":")
}

func ttlField(ttl int) string {
	if ttl <= 0 {
		return ""
	}
	return strconv.Itoa(ttl)
}

// ErrManagedEntryInvalid wraps all managed-entry parse failures.
var ErrManagedEntryInvalid = errors.New("invalid managed hostname entry")

// ParseManaged parses managed hostname entries of the form
//
//	hostname:type[:content[:ttl[:proxied]]]
//
// Malformed entries are skipped with a WARN rather than failing the
// whole list. When two entries share the same (type, hostname) the later
// one wins and the collision is logged.
func ParseManaged(entries []string, logger *slog.Logger) []ManagedEntry {
	if logger == nil {
		logger = slog.Default()
	}

	byKey := make(map[provider.Key]int)
	var out []ManagedEntry

	for _, raw := range entries {
		entry, err := parseManagedEntry(raw)
		if err != nil {
			logger.Warn("skipping managed hostname entry",
				slog.String("entry", raw),
				slog.String("error", err.Error()),
			)
			continue
		}

		if idx, dup := byKey[entry.Key()]; dup {
			logger.Warn("duplicate managed hostname, later entry wins",
				slog.String("hostname", entry.Name),
				slog.String("type", string(entry.Type)),
			)
			out[idx] = entry
			continue
		}
		byKey[entry.Key()] = len(out)
		out = append(out, entry)
	}
	return out
}

func parseManagedEntry(raw string) (ManagedEntry, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || parts[0] == "" {
		return ManagedEntry{}, fmt.Errorf("%w: need hostname:type", ErrManagedEntryInvalid)
	}

	name := dnsname.Normalize(parts[0])
	if err := source.ValidateHostname(name); err != nil {
		return ManagedEntry{}, fmt.Errorf("%w: %v", ErrManagedEntryInvalid, err)
	}

	rtype, ok := provider.ParseRecordType(parts[1])
	if !ok {
		return ManagedEntry{}, fmt.Errorf("%w: unknown record type %q", ErrManagedEntryInvalid, parts[1])
	}

	entry := ManagedEntry{Name: name, Type: rtype}

	if len(parts) > 2 {
		entry.Content = parts[2]
	}
	if entry.Content == "" {
		switch rtype {
		case provider.RecordTypeA, provider.RecordTypeAAAA, provider.RecordTypeCNAME:
		default:
			return ManagedEntry{}, fmt.Errorf("%w: %s entries require content", ErrManagedEntryInvalid, rtype)
		}
	}

	if len(parts) > 3 && parts[3] != "" {
		ttl, err := strconv.Atoi(parts[3])
		if err != nil || ttl < 0 {
			return ManagedEntry{}, fmt.Errorf("%w: bad ttl %q", ErrManagedEntryInvalid, parts[3])
		}
		entry.TTL = ttl
	}

	if len(parts) > 4 && parts[4] != "" {
		proxied, err := strconv.ParseBool(parts[4])
		if err != nil {
			return ManagedEntry{}, fmt.Errorf("%w: bad proxied flag %q", ErrManagedEntryInvalid, parts[4])
		}
		entry.Proxied = &proxied
	}

	return entry, nil
}
