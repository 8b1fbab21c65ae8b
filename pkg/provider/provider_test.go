package provider

import (
	"errors"
	"net/http"
	"testing"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestParseRecordType(t *testing.T) {
	tests := []struct {
		in   string
		want RecordType
		ok   bool
	}{
		{"A", RecordTypeA, true},
		{"aaaa", RecordTypeAAAA, true},
		{" cname ", RecordTypeCNAME, true},
		{"Mx", RecordTypeMX, true},
		{"SOA", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRecordType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRecordType(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCapabilitiesClampTTL(t *testing.T) {
	caps := Capabilities{TTLMin: 60, TTLMax: 3600}

	tests := []struct {
		ttl, def, want int
	}{
		{300, 120, 300},
		{0, 120, 120},
		{-1, 120, 120},
		{30, 120, 60},
		{86400, 120, 3600},
		{0, 30, 60},
	}
	for _, tt := range tests {
		if got := caps.ClampTTL(tt.ttl, tt.def); got != tt.want {
			t.Errorf("ClampTTL(%d, %d) = %d, want %d", tt.ttl, tt.def, got, tt.want)
		}
	}

	unbounded := Capabilities{}
	if got := unbounded.ClampTTL(7, 300); got != 7 {
		t.Errorf("unbounded ClampTTL(7) = %d, want 7", got)
	}
}

func TestValidateIntent(t *testing.T) {
	caps := Capabilities{
		Proxied: true,
		TTLMin:  60,
		TTLMax:  86400,
		SupportedTypes: []RecordType{
			RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeMX,
			RecordTypeSRV, RecordTypeCAA, RecordTypeTXT,
		},
	}

	tests := []struct {
		name    string
		intent  Intent
		caps    Capabilities
		wantErr bool
	}{
		{
			name:   "valid A",
			intent: Intent{Name: "app.example.com", Type: RecordTypeA, Content: "192.0.2.1", TTL: 300},
			caps:   caps,
		},
		{
			name:    "A with IPv6 content",
			intent:  Intent{Name: "app.example.com", Type: RecordTypeA, Content: "2001:db8::1"},
			caps:    caps,
			wantErr: true,
		},
		{
			name:    "AAAA with IPv4 content",
			intent:  Intent{Name: "app.example.com", Type: RecordTypeAAAA, Content: "192.0.2.1"},
			caps:    caps,
			wantErr: true,
		},
		{
			name:   "valid AAAA",
			intent: Intent{Name: "app.example.com", Type: RecordTypeAAAA, Content: "2001:db8::1"},
			caps:   caps,
		},
		{
			name:    "empty name",
			intent:  Intent{Type: RecordTypeA, Content: "192.0.2.1"},
			caps:    caps,
			wantErr: true,
		},
		{
			name:    "empty content",
			intent:  Intent{Name: "app.example.com", Type: RecordTypeTXT},
			caps:    caps,
			wantErr: true,
		},
		{
			name:    "unsupported type",
			intent:  Intent{Name: "app.example.com", Type: RecordTypeNS, Content: "ns1.example.com"},
			caps:    caps,
			wantErr: true,
		},
		{
			name:    "ttl below minimum",
			intent:  Intent{Name: "app.example.com", Type: RecordTypeA, Content: "192.0.2.1", TTL: 10},
			caps:    caps,
			wantErr: true,
		},
		{
			name:    "MX without priority",
			intent:  Intent{Name: "example.com", Type: RecordTypeMX, Content: "mx.example.com"},
			caps:    caps,
			wantErr: true,
		},
		{
			name: "valid MX",
			intent: Intent{Name: "example.com", Type: RecordTypeMX, Content: "mx.example.com",
				Extras: Extras{Priority: intPtr(10)}},
			caps: caps,
		},
		{
			name: "SRV missing port",
			intent: Intent{Name: "_sip._tcp.example.com", Type: RecordTypeSRV, Content: "sip.example.com",
				Extras: Extras{Priority: intPtr(10), Weight: intPtr(5)}},
			caps:    caps,
			wantErr: true,
		},
		{
			name: "CAA bad tag",
			intent: Intent{Name: "example.com", Type: RecordTypeCAA, Content: "ca.example.net",
				Extras: Extras{Tag: "bogus", Flags: intPtr(0)}},
			caps:    caps,
			wantErr: true,
		},
		{
			name: "CAA issue tag",
			intent: Intent{Name: "example.com", Type: RecordTypeCAA, Content: "ca.example.net",
				Extras: Extras{Tag: "issue", Flags: intPtr(0)}},
			caps: caps,
		},
		{
			name: "proxied TXT rejected",
			intent: Intent{Name: "app.example.com", Type: RecordTypeTXT, Content: "v=spf1",
				Extras: Extras{Proxied: boolPtr(true)}},
			caps:    caps,
			wantErr: true,
		},
		{
			name: "proxied without capability",
			intent: Intent{Name: "app.example.com", Type: RecordTypeA, Content: "192.0.2.1",
				Extras: Extras{Proxied: boolPtr(true)}},
			caps:    Capabilities{SupportedTypes: []RecordType{RecordTypeA}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIntent("test", tt.intent, tt.caps)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIntent() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsInvalid(err) {
				t.Errorf("validation error not classified invalid: %v", err)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	err := WrapError("cloudflare", "create", ReasonAuth, errors.New("401"))
	if !IsAuth(err) {
		t.Error("IsAuth() = false for auth-wrapped error")
	}
	if IsTransient(err) {
		t.Error("IsTransient() = true for auth error")
	}
	if got := ReasonOf(err); got != ReasonAuth {
		t.Errorf("ReasonOf() = %v, want auth", got)
	}

	if ReasonOf(errors.New("plain")) != ReasonOther {
		t.Error("unclassified error should report ReasonOther")
	}
	if WrapError("x", "y", ReasonAuth, nil) != nil {
		t.Error("WrapError(nil) should return nil")
	}

	// Sentinels survive further wrapping.
	wrapped := WrapError("technitium", "create", ReasonInvalid, ErrConflict)
	if !IsConflict(wrapped) || !IsInvalid(wrapped) {
		t.Error("conflict sentinel lost through wrapping")
	}
}

func TestReasonFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Reason
	}{
		{http.StatusUnauthorized, ReasonAuth},
		{http.StatusForbidden, ReasonAuth},
		{http.StatusNotFound, ReasonNotFound},
		{http.StatusTooManyRequests, ReasonTransient},
		{http.StatusBadGateway, ReasonTransient},
		{http.StatusUnprocessableEntity, ReasonInvalid},
		{http.StatusOK, ReasonOther},
	}
	for _, tt := range tests {
		if got := ReasonFromStatus(tt.code); got != tt.want {
			t.Errorf("ReasonFromStatus(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestByKeyFirstWins(t *testing.T) {
	records := []Record{
		{ID: "r1", Name: "app.example.com", Type: RecordTypeA, Content: "192.0.2.1"},
		{ID: "r2", Name: "App.Example.COM", Type: RecordTypeA, Content: "192.0.2.2"},
		{ID: "r3", Name: "app.example.com", Type: RecordTypeTXT, Content: "x"},
	}
	byKey := ByKey(records)
	if len(byKey) != 2 {
		t.Fatalf("ByKey() produced %d slots, want 2", len(byKey))
	}
	got := byKey[Key{Type: RecordTypeA, Name: "app.example.com"}]
	if got.ID != "r1" {
		t.Errorf("duplicate slot resolved to %s, want r1", got.ID)
	}
}
