package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/internal/bus"
	"gitlab.bluewillows.net/root/zonewarden/internal/hostlist"
	"gitlab.bluewillows.net/root/zonewarden/internal/store"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	mu        sync.Mutex
	records   map[string]provider.Record
	listErr   error
	deleteErr error
	deletes   []string
	hasCache  bool
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{records: make(map[string]provider.Record)}
}

func (f *fakeProvider) Name() string { return "fake" }

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

func (f *fakeProvider) CachedRecords() ([]provider.Record, bool) {
	if !f.hasCache {
		return nil, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, rec)
	}
	return out, true
}

func (f *fakeProvider) DeleteRecord(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, id)
	delete(f.records, id)
	return nil
}

func (f *fakeProvider) seed(id, name string, rtype provider.RecordType, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[id] = provider.Record{ID: id, Name: name, Type: rtype, Content: content, TTL: 300}
}

type fakeIntents struct {
	keys      map[provider.Key]struct{}
	ready     bool
	preserved *hostlist.PreservedMatcher
}

func (f *fakeIntents) ActiveKeys() (map[provider.Key]struct{}, bool) {
	if !f.ready {
		return nil, false
	}
	return f.keys, true
}

func (f *fakeIntents) Preserved() *hostlist.PreservedMatcher {
	if f.preserved == nil {
		return hostlist.NewPreservedMatcher(nil)
	}
	return f.preserved
}

func activeSet(names ...string) map[provider.Key]struct{} {
	keys := make(map[provider.Key]struct{})
	for _, name := range names {
		keys[provider.Key{Type: provider.RecordTypeA, Name: name}] = struct{}{}
	}
	return keys
}

type fixture struct {
	prov    *fakeProvider
	store   *store.Store
	intents *fakeIntents
	sweeper *Sweeper
	now     time.Time
}

func newFixture(t *testing.T, grace time.Duration, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		prov:    newFakeProvider(),
		intents: &fakeIntents{ready: true, keys: activeSet()},
		now:     time.Now(),
	}

	var err error
	f.store, err = store.Open(t.TempDir(), store.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.store.Close() })

	events := bus.New(bus.WithLogger(quietLogger()))
	t.Cleanup(events.Close)

	opts = append([]Option{
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return f.now }),
	}, opts...)
	f.sweeper = New(f.prov, f.store, f.intents, events, grace, opts...)
	return f
}

// trackOwned seeds the provider and the store with an owned record.
func (f *fixture) trackOwned(id, name string) {
	f.prov.seed(id, name, provider.RecordTypeA, "203.0.113.7")
	f.store.Track(store.TrackedRecord{
		Provider:   "fake",
		RecordID:   id,
		Type:       provider.RecordTypeA,
		Name:       name,
		Content:    "203.0.113.7",
		TTL:        300,
		AppManaged: true,
	})
}

func TestSweepMarksThenDeletesAfterGrace(t *testing.T) {
	f := newFixture(t, 15*time.Minute)
	f.trackOwned("r1", "gone.example.com")

	// First sweep marks.
	result := f.sweeper.Sweep(context.Background(), false)
	if result.Marked != 1 || result.Deleted != 0 {
		t.Fatalf("first sweep = %+v, want one marked", result)
	}
	if len(f.prov.deletes) != 0 {
		t.Fatal("nothing may be deleted before the grace period")
	}

	// Second sweep inside grace waits.
	f.now = f.now.Add(5 * time.Minute)
	result = f.sweeper.Sweep(context.Background(), false)
	if result.Waiting != 1 || result.Deleted != 0 {
		t.Fatalf("in-grace sweep = %+v, want one waiting", result)
	}

	// Past grace it deletes and untracks.
	f.now = f.now.Add(11 * time.Minute)
	result = f.sweeper.Sweep(context.Background(), false)
	if result.Deleted != 1 {
		t.Fatalf("post-grace sweep = %+v, want one deleted", result)
	}
	if f.store.IsTracked("fake", "r1") {
		t.Error("deleted record still tracked")
	}
	if len(f.prov.deletes) != 1 || f.prov.deletes[0] != "r1" {
		t.Errorf("deletes = %v", f.prov.deletes)
	}
}

func TestSweepForceSkipsGrace(t *testing.T) {
	f := newFixture(t, 15*time.Minute)
	f.trackOwned("r1", "gone.example.com")

	f.sweeper.Sweep(context.Background(), false) // mark
	result := f.sweeper.Sweep(context.Background(), true)
	if result.Deleted != 1 {
		t.Fatalf("forced sweep = %+v, want one deleted", result)
	}
}

func TestSweepReclaimsActiveRecord(t *testing.T) {
	f := newFixture(t, 15*time.Minute)
	f.trackOwned("r1", "app.example.com")

	f.sweeper.Sweep(context.Background(), false) // mark
	f.intents.keys = activeSet("app.example.com")

	result := f.sweeper.Sweep(context.Background(), false)
	if result.Reclaimed != 1 {
		t.Fatalf("sweep = %+v, want one reclaimed", result)
	}
	rec, _ := f.store.Get("fake", "r1")
	if rec.OrphanedAt != nil {
		t.Error("orphan stamp survived reclaim")
	}
}

func TestSweepNeverDeletesUnmanaged(t *testing.T) {
	f := newFixture(t, 0)
	f.prov.seed("r1", "foreign.example.com", provider.RecordTypeA, "198.51.100.9")
	f.store.Track(store.TrackedRecord{
		Provider: "fake",
		RecordID: "r1",
		Type:     provider.RecordTypeA,
		Name:     "foreign.example.com",
		Content:  "198.51.100.9",
	})

	result := f.sweeper.Sweep(context.Background(), true)
	if result.Marked != 0 || result.Deleted != 0 {
		t.Fatalf("sweep touched an unmanaged record: %+v", result)
	}
	if len(f.prov.deletes) != 0 {
		t.Error("unmanaged record deleted")
	}
}

func TestSweepPreservedBlocksDeletion(t *testing.T) {
	f := newFixture(t, 0)
	f.trackOwned("r1", "static.example.com")
	f.intents.preserved = hostlist.NewPreservedMatcher([]string{"*.example.com"})

	result := f.sweeper.Sweep(context.Background(), true)
	if result.Marked != 0 || result.Deleted != 0 {
		t.Fatalf("sweep touched a preserved record: %+v", result)
	}
}

func TestSweepSkipsBeforeFirstPass(t *testing.T) {
	f := newFixture(t, 0)
	f.trackOwned("r1", "gone.example.com")
	f.intents.ready = false

	result := f.sweeper.Sweep(context.Background(), true)
	if result != (Result{}) {
		t.Fatalf("sweep before first pass = %+v, want no-op", result)
	}
}

func TestSweepDatabaseOnlyMode(t *testing.T) {
	f := newFixture(t, 15*time.Minute)
	f.trackOwned("r1", "gone.example.com")

	f.sweeper.Sweep(context.Background(), false) // mark with zone available

	// Zone and cache both unavailable.
	f.prov.listErr = errors.New("provider down")
	f.prov.hasCache = false
	f.now = f.now.Add(20 * time.Minute)

	result := f.sweeper.Sweep(context.Background(), false)
	if result.Pruned != 1 || result.Deleted != 0 {
		t.Fatalf("database-only sweep = %+v, want one pruned", result)
	}
	if f.store.IsTracked("fake", "r1") {
		t.Error("expired row not pruned in database-only mode")
	}
	if len(f.prov.deletes) != 0 {
		t.Error("database-only mode must not call the provider")
	}
}

func TestSweepFallsBackToCachedSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	f.trackOwned("r1", "gone.example.com")

	f.sweeper.Sweep(context.Background(), false) // mark

	f.prov.listErr = errors.New("provider flake")
	f.prov.hasCache = true

	result := f.sweeper.Sweep(context.Background(), true)
	if result.Deleted != 1 {
		t.Fatalf("cached-snapshot sweep = %+v, want one deleted", result)
	}
}

func TestSweepFallsBackToPersistedSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	f.trackOwned("r1", "gone.example.com")
	f.trackOwned("r2", "vanished.example.com")

	f.sweeper.Sweep(context.Background(), false) // mark

	// r2 disappears at the provider before the snapshot was taken.
	f.prov.DeleteRecord(context.Background(), "r2")
	f.prov.deletes = nil

	if err := f.store.SaveZoneSnapshot(store.CachedZone{
		Provider:  "fake",
		Zone:      "example.com",
		FetchedAt: f.now,
		Records: []provider.Record{
			{ID: "r1", Name: "gone.example.com", Type: provider.RecordTypeA, Content: "203.0.113.7", TTL: 300},
		},
	}); err != nil {
		t.Fatal(err)
	}

	// Live listing and in-memory cache both unavailable.
	f.prov.listErr = errors.New("provider down")
	f.prov.hasCache = false

	result := f.sweeper.Sweep(context.Background(), true)
	if result.Deleted != 1 || result.Pruned != 1 {
		t.Fatalf("persisted-snapshot sweep = %+v, want one deleted and one pruned", result)
	}
	if len(f.prov.deletes) != 1 || f.prov.deletes[0] != "r1" {
		t.Errorf("deletes = %v, want [r1]", f.prov.deletes)
	}
	if f.store.IsTracked("fake", "r2") {
		t.Error("row missing from the snapshot should be pruned, not deleted")
	}
}

func TestSweepDeleteFailureRetains(t *testing.T) {
	f := newFixture(t, 0)
	f.trackOwned("r1", "gone.example.com")
	f.sweeper.Sweep(context.Background(), false) // mark

	f.prov.deleteErr = provider.WrapError("fake", "delete_record", provider.ReasonTransient, errors.New("rate limited"))
	result := f.sweeper.Sweep(context.Background(), true)
	if result.Failed != 1 || result.Deleted != 0 {
		t.Fatalf("sweep = %+v, want one failed", result)
	}
	if !f.store.IsTracked("fake", "r1") {
		t.Error("row must stay tracked for retry after a failed delete")
	}
}

func TestSweepBlockedWhileDegraded(t *testing.T) {
	// A store that failed to open runs degraded, memory only.
	blocked := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(blocked, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(blocked, store.WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if !st.Degraded() {
		t.Fatal("expected degraded store")
	}

	prov := newFakeProvider()
	prov.seed("r1", "gone.example.com", provider.RecordTypeA, "203.0.113.7")
	st.Track(store.TrackedRecord{
		Provider:   "fake",
		RecordID:   "r1",
		Type:       provider.RecordTypeA,
		Name:       "gone.example.com",
		Content:    "203.0.113.7",
		AppManaged: true,
	})

	events := bus.New(bus.WithLogger(quietLogger()))
	defer events.Close()
	sw := New(prov, st, &fakeIntents{ready: true, keys: activeSet()}, events, 0,
		WithLogger(quietLogger()))

	sw.Sweep(context.Background(), false) // mark
	result := sw.Sweep(context.Background(), true)
	if result.Blocked != 1 || result.Deleted != 0 {
		t.Fatalf("degraded sweep = %+v, want one blocked", result)
	}
	if len(prov.deletes) != 0 {
		t.Error("degraded store must block deletions")
	}
}

func TestSweepPrunesVanishedRecords(t *testing.T) {
	f := newFixture(t, 15*time.Minute)
	f.trackOwned("r1", "gone.example.com")

	// Record deleted externally at the provider.
	f.prov.DeleteRecord(context.Background(), "r1")
	f.prov.deletes = nil

	result := f.sweeper.Sweep(context.Background(), false)
	if result.Pruned != 1 {
		t.Fatalf("sweep = %+v, want one pruned", result)
	}
	if f.store.IsTracked("fake", "r1") {
		t.Error("vanished record still tracked")
	}
	if len(f.prov.deletes) != 0 {
		t.Error("no provider delete needed for a vanished record")
	}
}

func TestSweepDryRun(t *testing.T) {
	f := newFixture(t, 0, WithDryRun(true))
	f.trackOwned("r1", "gone.example.com")

	result := f.sweeper.Sweep(context.Background(), true)
	if result.Marked != 0 || result.Deleted != 0 || len(f.prov.deletes) != 0 {
		t.Fatalf("dry run mutated: %+v", result)
	}
	rec, _ := f.store.Get("fake", "r1")
	if rec.OrphanedAt != nil {
		t.Error("dry run must not stamp orphans")
	}
}
