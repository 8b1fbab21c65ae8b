package hostlist

import (
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
)

// PreservedMatcher answers whether a hostname matches the operator's
// preserved list. Patterns are either exact hostnames or wildcards of the
// form "*.suffix"; matching is case-insensitive and a wildcard covers any
// label depth under its suffix, but not the suffix itself.
type PreservedMatcher struct {
	exact     map[string]struct{}
	wildcards []string
}

// NewPreservedMatcher compiles the pattern list. Empty patterns are
// ignored; a bare "*" is treated as matching everything.
func NewPreservedMatcher(patterns []string) *PreservedMatcher {
	m := &PreservedMatcher{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = dnsname.Normalize(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if suffix, ok := strings.CutPrefix(p, "*."); ok {
			m.wildcards = append(m.wildcards, suffix)
			continue
		}
		if p == "*" {
			m.wildcards = append(m.wildcards, "")
			continue
		}
		m.exact[p] = struct{}{}
	}
	return m
}

// Matches reports whether hostname is preserved.
func (m *PreservedMatcher) Matches(hostname string) bool {
	name := dnsname.Normalize(hostname)
	if name == "" {
		return false
	}
	if _, ok := m.exact[name]; ok {
		return true
	}
	for _, suffix := range m.wildcards {
		if suffix == "" {
			return true
		}
		if strings.HasSuffix(name, "."+suffix) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled pattern list in its original textual
// form, for the control surface.
func (m *PreservedMatcher) Patterns() []string {
	out := make([]string, 0, len(m.exact)+len(m.wildcards))
	for p := range m.exact {
		out = append(out, p)
	}
	for _, suffix := range m.wildcards {
		if suffix == "" {
			out = append(out, "*")
			continue
		}
		out = append(out, "*."+suffix)
	}
	return out
}

// Empty reports whether no patterns are configured.
func (m *PreservedMatcher) Empty() bool {
	return len(m.exact) == 0 && len(m.wildcards) == 0
}
