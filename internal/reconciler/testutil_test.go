package reconciler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"gitlab.bluewillows.net/root/zonewarden/internal/bus"
	"gitlab.bluewillows.net/root/zonewarden/internal/store"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource returns a fixed hostname set.
type fakeSource struct {
	set source.HostnameSet
	err error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context) (source.HostnameSet, error) {
	if f.err != nil {
		return source.HostnameSet{}, f.err
	}
	return f.set, nil
}

// fakeIPs is a static IPSource.
type fakeIPs struct {
	v4, v6 string
}

func (f fakeIPs) IPv4() string { return f.v4 }
func (f fakeIPs) IPv6() string { return f.v6 }

// fakeProvider is an in-memory zone.
type fakeProvider struct {
	mu      sync.Mutex
	records map[string]provider.Record
	nextID  int

	listErr   error
	createErr error
	updateErr error

	creates int
	updates int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{records: make(map[string]provider.Record)}
}

func (f *fakeProvider) Name() string     { return "fake" }
func (f *fakeProvider) ZoneName() string { return "example.com" }

func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{
		TTLMin:         60,
		TTLMax:         86400,
		SupportedTypes: provider.AllRecordTypes,
	}
}

func (f *fakeProvider) Records(ctx context.Context) ([]provider.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]provider.Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, nil
}

func (f *fakeProvider) CreateRecord(ctx context.Context, intent provider.Intent) (provider.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return provider.Record{}, f.createErr
	}
	f.nextID++
	rec := provider.Record{
		ID:      fmt.Sprintf("id-%d", f.nextID),
		Name:    intent.Name,
		Type:    intent.Type,
		Content: intent.Content,
		TTL:     intent.TTL,
		Extras:  intent.Extras,
	}
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeProvider) UpdateRecord(ctx context.Context, id string, intent provider.Intent) (provider.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return provider.Record{}, f.updateErr
	}
	if _, ok := f.records[id]; !ok {
		return provider.Record{}, provider.WrapError("fake", "update_record", provider.ReasonNotFound, provider.ErrNotFound)
	}
	rec := provider.Record{
		ID:      id,
		Name:    intent.Name,
		Type:    intent.Type,
		Content: intent.Content,
		TTL:     intent.TTL,
		Extras:  intent.Extras,
	}
	f.records[id] = rec
	return rec, nil
}

// seed inserts a record directly, bypassing the reconciler.
func (f *fakeProvider) seed(id, name string, rtype provider.RecordType, content string, ttl int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = provider.Record{ID: id, Name: name, Type: rtype, Content: content, TTL: ttl}
}

func (f *fakeProvider) get(id string) (provider.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	return rec, ok
}

func hostnames(names ...string) source.HostnameSet {
	set := source.NewHostnameSet()
	for _, name := range names {
		set.Add(name, source.IntentHints{})
	}
	return set
}

func newTestReconciler(t *testing.T, src *fakeSource, prov *fakeProvider, opts ...Option) (*Reconciler, *store.Store) {
	t.Helper()

	st, err := store.Open(t.TempDir(), store.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	events := bus.New(bus.WithLogger(quietLogger()))
	t.Cleanup(events.Close)

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	r := New(src, prov, st, events, fakeIPs{v4: "203.0.113.7", v6: "2001:db8::7"}, opts...)
	return r, st
}
