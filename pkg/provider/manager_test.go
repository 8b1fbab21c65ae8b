package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdapter is an in-memory Adapter used by manager tests.
type fakeAdapter struct {
	name    string
	zone    string
	caps    Capabilities
	records []Record
	nextID  int

	initErr error
	listErr error

	initCalls   int
	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		name: "fake",
		zone: "example.com",
		caps: Capabilities{
			TTLMin: 60,
			TTLMax: 86400,
			SupportedTypes: []RecordType{
				RecordTypeA, RecordTypeAAAA, RecordTypeCNAME, RecordTypeTXT,
			},
		},
	}
}

func (f *fakeAdapter) Name() string               { return f.name }
func (f *fakeAdapter) ZoneName() string           { return f.zone }
func (f *fakeAdapter) Capabilities() Capabilities { return f.caps }

func (f *fakeAdapter) Init(ctx context.Context) error {
	f.initCalls++
	return f.initErr
}

func (f *fakeAdapter) TestConnection(ctx context.Context) error { return nil }

func (f *fakeAdapter) ListRecords(ctx context.Context) ([]Record, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Record, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeAdapter) CreateRecord(ctx context.Context, intent Intent) (Record, error) {
	f.createCalls++
	f.nextID++
	rec := Record{
		ID:      fmt.Sprintf("r%d", f.nextID),
		Name:    intent.Name,
		Type:    intent.Type,
		Content: intent.Content,
		TTL:     intent.TTL,
		Extras:  intent.Extras,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeAdapter) UpdateRecord(ctx context.Context, id string, intent Intent) (Record, error) {
	f.updateCalls++
	for i, r := range f.records {
		if r.ID == id {
			f.records[i] = Record{ID: id, Name: intent.Name, Type: intent.Type,
				Content: intent.Content, TTL: intent.TTL, Extras: intent.Extras}
			return f.records[i], nil
		}
	}
	return Record{}, WrapError(f.name, "update", ReasonNotFound, ErrNotFound)
}

func (f *fakeAdapter) DeleteRecord(ctx context.Context, id string) error {
	f.deleteCalls++
	for i, r := range f.records {
		if r.ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return WrapError(f.name, "delete", ReasonNotFound, ErrNotFound)
}

func newTestManager(adapter Adapter) *Manager {
	return NewManager(adapter,
		WithManagerLogger(quietLogger()),
		WithCacheTTL(time.Hour),
	)
}

func TestManagerRecordsServesCache(t *testing.T) {
	fake := newFakeAdapter()
	fake.records = []Record{{ID: "r1", Name: "app.example.com", Type: RecordTypeA, Content: "192.0.2.1", TTL: 300}}
	m := newTestManager(fake)

	if _, err := m.Records(context.Background()); err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if _, err := m.Records(context.Background()); err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if fake.listCalls != 1 {
		t.Errorf("listCalls = %d, want 1 (second read should hit the cache)", fake.listCalls)
	}
}

func TestManagerRecordsServesStaleOnFailure(t *testing.T) {
	fake := newFakeAdapter()
	fake.records = []Record{{ID: "r1", Name: "app.example.com", Type: RecordTypeA, Content: "192.0.2.1", TTL: 300}}
	m := NewManager(fake,
		WithManagerLogger(quietLogger()),
		WithCacheTTL(time.Millisecond),
	)

	if _, err := m.Records(context.Background()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	fake.listErr = errors.New("backend down")
	records, err := m.Records(context.Background())
	if err != nil {
		t.Fatalf("Records() should serve stale snapshot, got error %v", err)
	}
	if len(records) != 1 {
		t.Errorf("stale snapshot has %d records, want 1", len(records))
	}

	// With the stale copy dropped the error propagates.
	m.InvalidateCache()
	if _, err := m.Records(context.Background()); err == nil {
		t.Error("Records() after invalidation should surface the list error")
	}
}

func TestManagerCreateRejectsInvalidIntent(t *testing.T) {
	fake := newFakeAdapter()
	m := newTestManager(fake)

	_, err := m.CreateRecord(context.Background(), Intent{
		Name: "app.example.com", Type: RecordTypeA, Content: "not-an-ip",
	})
	if !IsInvalid(err) {
		t.Errorf("CreateRecord(bad A) error = %v, want invalid", err)
	}
	if fake.createCalls != 0 {
		t.Error("invalid intent reached the adapter")
	}
}

func TestManagerCreatePatchesCache(t *testing.T) {
	fake := newFakeAdapter()
	m := newTestManager(fake)
	if _, err := m.Records(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec, err := m.CreateRecord(context.Background(), Intent{
		Name: "app.example.com", Type: RecordTypeA, Content: "192.0.2.1", TTL: 300,
	})
	if err != nil {
		t.Fatalf("CreateRecord() error = %v", err)
	}

	cached, ok := m.CachedRecords()
	if !ok || len(cached) != 1 || cached[0].ID != rec.ID {
		t.Errorf("cache after create = %+v, %v", cached, ok)
	}
	if fake.listCalls != 1 {
		t.Errorf("create should patch the cache, not relist (listCalls = %d)", fake.listCalls)
	}
}

func TestManagerDeleteAbsentIsSuccess(t *testing.T) {
	fake := newFakeAdapter()
	m := newTestManager(fake)

	if err := m.DeleteRecord(context.Background(), "missing"); err != nil {
		t.Errorf("DeleteRecord(absent) error = %v, want nil", err)
	}
}

func TestManagerSwap(t *testing.T) {
	oldA := newFakeAdapter()
	m := newTestManager(oldA)
	if _, err := m.Records(context.Background()); err != nil {
		t.Fatal(err)
	}

	bad := newFakeAdapter()
	bad.name = "bad"
	bad.initErr = errors.New("auth failed")
	if err := m.Swap(context.Background(), bad); err == nil {
		t.Fatal("Swap() with failing Init should error")
	}
	if m.Name() != "fake" {
		t.Errorf("failed swap replaced the adapter: %s", m.Name())
	}

	good := newFakeAdapter()
	good.name = "replacement"
	if err := m.Swap(context.Background(), good); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if m.Name() != "replacement" {
		t.Errorf("active adapter = %s, want replacement", m.Name())
	}
	if good.initCalls != 1 {
		t.Errorf("replacement Init calls = %d, want 1", good.initCalls)
	}
	if _, ok := m.CachedRecords(); ok {
		t.Error("swap should invalidate the zone cache")
	}
}

func TestManagerBatchEnsureFallback(t *testing.T) {
	fake := newFakeAdapter()
	fake.records = []Record{
		{ID: "r1", Name: "keep.example.com", Type: RecordTypeA, Content: "192.0.2.1", TTL: 300},
		{ID: "r2", Name: "stale.example.com", Type: RecordTypeA, Content: "192.0.2.9", TTL: 300},
	}
	fake.nextID = 2
	m := newTestManager(fake)

	result, err := m.BatchEnsure(context.Background(), []Intent{
		{Name: "keep.example.com", Type: RecordTypeA, Content: "192.0.2.1", TTL: 300},
		{Name: "stale.example.com", Type: RecordTypeA, Content: "192.0.2.10", TTL: 300},
		{Name: "new.example.com", Type: RecordTypeA, Content: "192.0.2.2", TTL: 300},
		{Name: "bad.example.com", Type: RecordTypeA, Content: "not-an-ip", TTL: 300},
	})
	if err != nil {
		t.Fatalf("BatchEnsure() error = %v", err)
	}

	want := BatchResult{Created: 1, Updated: 1, Unchanged: 1, Failed: 1}
	if result != want {
		t.Errorf("BatchEnsure() = %+v, want %+v", result, want)
	}
	if fake.createCalls != 1 || fake.updateCalls != 1 {
		t.Errorf("adapter calls: create=%d update=%d", fake.createCalls, fake.updateCalls)
	}
}

func TestClassifyCtxDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := classifyCtx(ctx, "fake", "list", ctx.Err())
	if !IsTransient(err) {
		t.Errorf("deadline error classified as %v, want transient", ReasonOf(err))
	}

	already := WrapError("fake", "list", ReasonAuth, errors.New("401"))
	if got := classifyCtx(context.Background(), "fake", "list", already); !IsAuth(got) {
		t.Error("pre-classified error should pass through unchanged")
	}
}
