package technitium

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeServer simulates the Technitium HTTP API envelope protocol.
type fakeServer struct {
	*httptest.Server
	records  []apiRecord
	calls    []url.Values
	failWith string // when set, every call returns this errorMessage
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		fs.calls = append(fs.calls, q)

		if q.Get("token") != "tok" {
			writeEnvelope(w, "error", "invalid token", nil)
			return
		}
		if fs.failWith != "" {
			writeEnvelope(w, "error", fs.failWith, nil)
			return
		}

		switch r.URL.Path {
		case "/api/user/session/get":
			writeEnvelope(w, "ok", "", map[string]any{})
		case "/api/zones/records/get":
			writeEnvelope(w, "ok", "", map[string]any{"records": fs.records})
		case "/api/zones/records/add", "/api/zones/records/delete":
			writeEnvelope(w, "ok", "", map[string]any{})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func writeEnvelope(w http.ResponseWriter, status, errMsg string, response any) {
	env := map[string]any{"status": status}
	if errMsg != "" {
		env["errorMessage"] = errMsg
	}
	if response != nil {
		env["response"] = response
	}
	_ = json.NewEncoder(w).Encode(env)
}

func newTestProvider(t *testing.T, fs *fakeServer) *Provider {
	t.Helper()
	p, err := New(Config{URL: fs.URL, Token: "tok", Zone: "example.com"}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestConfigFromMap(t *testing.T) {
	if _, err := ConfigFromMap(map[string]string{"URL": "http://x", "ZONE": "z"}); err == nil {
		t.Error("missing token accepted")
	}
	if _, err := ConfigFromMap(map[string]string{"URL": "http://x", "API_TOKEN": "t"}); err == nil {
		t.Error("missing zone accepted")
	}
	cfg, err := ConfigFromMap(map[string]string{"URL": "http://x", "API_TOKEN": "t", "ZONE": "example.com"})
	if err != nil {
		t.Fatalf("ConfigFromMap: %v", err)
	}
	if cfg.Zone != "example.com" {
		t.Errorf("Zone = %q", cfg.Zone)
	}
}

func TestListRecords(t *testing.T) {
	fs := newFakeServer(t)
	fs.records = []apiRecord{
		func() apiRecord {
			r := apiRecord{Name: "app.example.com", Type: "A", TTL: 300}
			r.RData.IPAddress = "192.0.2.1"
			return r
		}(),
		func() apiRecord {
			r := apiRecord{Name: "example.com", Type: "MX", TTL: 600}
			r.RData.Exchange = "mail.example.com"
			r.RData.Preference = 10
			return r
		}(),
		func() apiRecord {
			r := apiRecord{Name: "off.example.com", Type: "A", TTL: 300, Disabled: true}
			r.RData.IPAddress = "192.0.2.9"
			return r
		}(),
		{Name: "example.com", Type: "SOA", TTL: 900},
	}

	p := newTestProvider(t, fs)
	records, err := p.ListRecords(context.Background())
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2 (disabled and SOA skipped)", len(records))
	}

	if records[0].Content != "192.0.2.1" || records[0].ID == "" {
		t.Errorf("A record = %+v", records[0])
	}
	mx := records[1]
	if mx.Content != "mail.example.com" || mx.Extras.Priority == nil || *mx.Extras.Priority != 10 {
		t.Errorf("MX record = %+v", mx)
	}
}

func TestCreateRecordParams(t *testing.T) {
	fs := newFakeServer(t)
	p := newTestProvider(t, fs)

	rec, err := p.CreateRecord(context.Background(), provider.Intent{
		Name: "app.example.com", Type: provider.RecordTypeA,
		Content: "192.0.2.1", TTL: 300,
	})
	if err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if rec.ID == "" {
		t.Error("created record has no synthetic id")
	}

	last := fs.calls[len(fs.calls)-1]
	if last.Get("zone") != "example.com" || last.Get("domain") != "app.example.com" {
		t.Errorf("add params = %v", last)
	}
	if last.Get("ipAddress") != "192.0.2.1" || last.Get("ttl") != "300" {
		t.Errorf("add rdata = %v", last)
	}
}

func TestUpdateRecordDeletesThenAdds(t *testing.T) {
	fs := newFakeServer(t)
	p := newTestProvider(t, fs)

	oldID := encodeID(provider.Record{
		Name: "app.example.com", Type: provider.RecordTypeA, Content: "192.0.2.1",
	})
	rec, err := p.UpdateRecord(context.Background(), oldID, provider.Intent{
		Name: "app.example.com", Type: provider.RecordTypeA,
		Content: "192.0.2.2", TTL: 300,
	})
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}
	if rec.Content != "192.0.2.2" || rec.ID == oldID {
		t.Errorf("updated record = %+v", rec)
	}

	// delete of the old rdata, then add of the new.
	if len(fs.calls) != 2 {
		t.Fatalf("calls = %d, want delete+add", len(fs.calls))
	}
	if fs.calls[0].Get("ipAddress") != "192.0.2.1" {
		t.Errorf("delete params = %v", fs.calls[0])
	}
	if fs.calls[1].Get("ipAddress") != "192.0.2.2" {
		t.Errorf("add params = %v", fs.calls[1])
	}
}

func TestDeleteAbsentRecordIsSuccess(t *testing.T) {
	fs := newFakeServer(t)
	fs.failWith = "no such record exists"
	p := newTestProvider(t, fs)

	id := encodeID(provider.Record{
		Name: "gone.example.com", Type: provider.RecordTypeA, Content: "192.0.2.1",
	})
	if err := p.DeleteRecord(context.Background(), id); err != nil {
		t.Errorf("DeleteRecord on absent record: %v", err)
	}
}

func TestAuthErrorClassified(t *testing.T) {
	fs := newFakeServer(t)
	p, err := New(Config{URL: fs.URL, Token: "wrong", Zone: "example.com"}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = p.TestConnection(context.Background())
	if !provider.IsAuth(err) {
		t.Errorf("got %v, want auth classification", err)
	}
}

func TestConflictClassified(t *testing.T) {
	fs := newFakeServer(t)
	fs.failWith = "record already exists"
	p := newTestProvider(t, fs)

	_, err := p.CreateRecord(context.Background(), provider.Intent{
		Name: "app.example.com", Type: provider.RecordTypeA,
		Content: "192.0.2.1", TTL: 300,
	})
	if !provider.IsConflict(err) {
		t.Errorf("got %v, want conflict classification", err)
	}
}

func TestIDRoundTrip(t *testing.T) {
	prio := 10
	rec := provider.Record{
		Name: "example.com", Type: provider.RecordTypeMX,
		Content: "mail.example.com",
		Extras:  provider.Extras{Priority: &prio},
	}
	got, err := decodeID(encodeID(rec))
	if err != nil {
		t.Fatalf("decodeID: %v", err)
	}
	if got.Name != rec.Name || got.Type != rec.Type || got.Content != rec.Content {
		t.Errorf("round trip = %+v", got)
	}
	if got.Extras.Priority == nil || *got.Extras.Priority != 10 {
		t.Errorf("extras lost: %+v", got.Extras)
	}

	if _, err := decodeID("%%%not-base64"); err == nil {
		t.Error("malformed id accepted")
	}
}
