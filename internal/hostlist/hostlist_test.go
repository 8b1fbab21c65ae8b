package hostlist

import (
	"io"
	"log/slog"
	"testing"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseManaged(t *testing.T) {
	entries := ParseManaged([]string{
		"vpn.example.com:A",
		"mail.example.com:MX:mx1.example.com:3600",
		"Web.Example.COM:CNAME:origin.example.com::true",
		"alias.example.com:CNAME",
	}, quietLogger())

	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}

	if entries[0].Type != provider.RecordTypeA || entries[0].Content != "" {
		t.Errorf("A entry = %+v, want empty content for IP substitution", entries[0])
	}

	mx := entries[1]
	if mx.Content != "mx1.example.com" || mx.TTL != 3600 {
		t.Errorf("MX entry = %+v", mx)
	}

	cname := entries[2]
	if cname.Name != "web.example.com" {
		t.Errorf("hostname not normalized: %q", cname.Name)
	}
	if cname.Proxied == nil || !*cname.Proxied {
		t.Errorf("CNAME proxied flag = %v, want true", cname.Proxied)
	}

	alias := entries[3]
	if alias.Type != provider.RecordTypeCNAME || alias.Content != "" {
		t.Errorf("bare CNAME entry = %+v, want empty content for apex substitution", alias)
	}
}

func TestParseManagedSkipsMalformed(t *testing.T) {
	entries := ParseManaged([]string{
		"noType",
		"host.example.com:BOGUS",
		"mail.example.com:MX", // MX requires content
		"ok.example.com:TXT:hello",
		"bad ttl.example.com:A::abc",
	}, quietLogger())

	if len(entries) != 1 {
		t.Fatalf("got %d entries, want only the valid one: %+v", len(entries), entries)
	}
	if entries[0].Name != "ok.example.com" {
		t.Errorf("kept entry = %+v", entries[0])
	}
}

func TestParseManagedDuplicateLastWins(t *testing.T) {
	entries := ParseManaged([]string{
		"app.example.com:A:192.0.2.1",
		"app.example.com:A:192.0.2.2",
		"app.example.com:AAAA:2001:db8::1",
	}, quietLogger())

	// AAAA entry content contains colons; the parser splits on ":" so the
	// AAAA line is rejected, leaving the two A entries collapsed to one.
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1: %+v", len(entries), entries)
	}
	if entries[0].Content != "192.0.2.2" {
		t.Errorf("Content = %q, later duplicate must win", entries[0].Content)
	}
}

func TestPreservedMatcher(t *testing.T) {
	m := NewPreservedMatcher([]string{
		"static.example.com",
		"*.legacy.example.com",
		"  MIXED.Example.Com ",
	})

	tests := []struct {
		hostname string
		want     bool
	}{
		{"static.example.com", true},
		{"Static.Example.COM", true},
		{"static.example.com.", true},
		{"sub.static.example.com", false},
		{"app.legacy.example.com", true},
		{"deep.nested.legacy.example.com", true},
		{"legacy.example.com", false}, // wildcard does not cover the suffix itself
		{"mixed.example.com", true},
		{"other.example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := m.Matches(tt.hostname); got != tt.want {
			t.Errorf("Matches(%q) = %v, want %v", tt.hostname, got, tt.want)
		}
	}
}

func TestPreservedMatcherBareStar(t *testing.T) {
	m := NewPreservedMatcher([]string{"*"})
	if !m.Matches("anything.example.com") {
		t.Error("bare * should match everything")
	}
}

func TestPreservedMatcherEmpty(t *testing.T) {
	m := NewPreservedMatcher(nil)
	if !m.Empty() {
		t.Error("Empty() = false for no patterns")
	}
	if m.Matches("app.example.com") {
		t.Error("empty matcher must match nothing")
	}
}
