package dnsmasq

import (
	"bufio"
	"fmt"
	"net"
	"sort"
	"strings"

	"gitlab.bluewillows.net/root/zonewarden/pkg/dnsname"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// fragmentHeader marks the file as generated. Anything else in the file
// is discarded on the next rewrite, so the fragment must be dedicated.
const fragmentHeader = "# Generated by zonewarden. Manual edits will be overwritten."

// entry is one record in the fragment.
type entry struct {
	Name    string
	Type    provider.RecordType
	Content string
}

func (e entry) id() string {
	return string(e.Type) + "|" + e.Name + "|" + e.Content
}

func parseEntryID(id string) (entry, error) {
	parts := strings.SplitN(id, "|", 3)
	if len(parts) != 3 {
		return entry{}, fmt.Errorf("malformed record id %q", id)
	}
	rtype, ok := provider.ParseRecordType(parts[0])
	if !ok {
		return entry{}, fmt.Errorf("malformed record id %q", id)
	}
	return entry{Type: rtype, Name: parts[1], Content: parts[2]}, nil
}

// parseFragment reads the directives the adapter emits: address= for
// A/AAAA and cname= for CNAME. Unknown directives and comments are
// skipped.
func parseFragment(content string) []entry {
	var out []entry
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		switch {
		case strings.HasPrefix(line, "address=/"):
			rest := strings.TrimPrefix(line, "address=/")
			name, ip, ok := strings.Cut(rest, "/")
			if !ok || net.ParseIP(ip) == nil {
				continue
			}
			rtype := provider.RecordTypeA
			if net.ParseIP(ip).To4() == nil {
				rtype = provider.RecordTypeAAAA
			}
			out = append(out, entry{Name: dnsname.Normalize(name), Type: rtype, Content: ip})

		case strings.HasPrefix(line, "cname="):
			rest := strings.TrimPrefix(line, "cname=")
			alias, target, ok := strings.Cut(rest, ",")
			if !ok {
				continue
			}
			out = append(out, entry{
				Name:    dnsname.Normalize(alias),
				Type:    provider.RecordTypeCNAME,
				Content: dnsname.Normalize(target),
			})
		}
	}
	return out
}

// renderFragment produces the full fragment contents, sorted for stable
// diffs between rewrites.
func renderFragment(entries []entry) string {
	sorted := make([]entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		if sorted[i].Type != sorted[j].Type {
			return sorted[i].Type < sorted[j].Type
		}
		return sorted[i].Content < sorted[j].Content
	})

	var b strings.Builder
	b.WriteString(fragmentHeader)
	b.WriteString("\n\n")
	for _, e := range sorted {
		switch e.Type {
		case provider.RecordTypeCNAME:
			fmt.Fprintf(&b, "cname=%s,%s\n", e.Name, e.Content)
		default:
			fmt.Fprintf(&b, "address=/%s/%s\n", e.Name, e.Content)
		}
	}
	return b.String()
}
