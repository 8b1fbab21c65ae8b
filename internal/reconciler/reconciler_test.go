package reconciler

import (
	"context"
	"errors"
	"testing"

	"gitlab.bluewillows.net/root/zonewarden/internal/hostlist"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
)

func TestReconcileCreatesMissingRecord(t *testing.T) {
	prov := newFakeProvider()
	src := &fakeSource{set: hostnames("app.example.com")}
	r, st := newTestReconciler(t, src, prov)

	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if stats.Created != 1 {
		t.Errorf("Created = %d, want 1", stats.Created)
	}

	rec, ok := st.FindByTypeName("fake", provider.RecordTypeA, "app.example.com")
	if !ok || !rec.AppManaged {
		t.Fatalf("created record not tracked as owned: %+v, %v", rec, ok)
	}
	got, _ := prov.get(rec.RecordID)
	if got.Content != "203.0.113.7" {
		t.Errorf("record content = %q, want public IPv4", got.Content)
	}
}

func TestReconcileUnchangedWhenEquivalent(t *testing.T) {
	prov := newFakeProvider()
	prov.seed("r1", "app.example.com", provider.RecordTypeA, "203.0.113.7", 300)
	src := &fakeSource{set: hostnames("app.example.com")}
	r, st := newTestReconciler(t, src, prov)

	// First pass adopts the matching record.
	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Unchanged != 1 || stats.Created != 0 {
		t.Errorf("stats = %+v, want one unchanged", stats)
	}
	rec, ok := st.Get("fake", "r1")
	if !ok || !rec.AppManaged {
		t.Error("first pass should adopt the equivalent record")
	}

	// Second pass stays quiet.
	stats, err = r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Unchanged != 1 || prov.updates != 0 || prov.creates != 0 {
		t.Errorf("second pass mutated: stats=%+v updates=%d creates=%d", stats, prov.updates, prov.creates)
	}
}

func TestReconcileUpdatesOwnedRecord(t *testing.T) {
	prov := newFakeProvider()
	src := &fakeSource{set: hostnames("app.example.com")}
	r, st := newTestReconciler(t, src, prov)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec, _ := st.FindByTypeName("fake", provider.RecordTypeA, "app.example.com")

	// Content drifts at the provider.
	prov.seed(rec.RecordID, "app.example.com", provider.RecordTypeA, "198.51.100.1", 300)

	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 {
		t.Errorf("Updated = %d, want 1", stats.Updated)
	}
	got, _ := prov.get(rec.RecordID)
	if got.Content != "203.0.113.7" {
		t.Errorf("drifted record not converged: %q", got.Content)
	}
}

func TestReconcileAdoptsAndConvergesDriftedRecord(t *testing.T) {
	prov := newFakeProvider()
	// Pre-existing record in a desired slot with stale content and TTL.
	prov.seed("r1", "app.example.com", provider.RecordTypeA, "1.2.3.4", 300)
	set := source.NewHostnameSet()
	set.Add("app.example.com", source.IntentHints{TTL: 60})
	src := &fakeSource{set: set}
	r, st := newTestReconciler(t, src, prov)

	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Updated != 1 || stats.Created != 0 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want one updated", stats)
	}

	got, _ := prov.get("r1")
	if got.Content != "203.0.113.7" || got.TTL != 60 {
		t.Errorf("adopted record not converged: %+v", got)
	}
	rec, ok := st.Get("fake", "r1")
	if !ok || !rec.AppManaged || rec.OrphanedAt != nil {
		t.Errorf("adopted record should be tracked as owned: %+v, %v", rec, ok)
	}
}

func TestReconcileNeverTouchesForeignRecord(t *testing.T) {
	prov := newFakeProvider()
	// Existing record matching no intent: tracked unmanaged on the first
	// pass, never modified.
	prov.seed("r1", "other.example.com", provider.RecordTypeA, "198.51.100.9", 300)
	src := &fakeSource{set: hostnames("app.example.com")}
	r, st := newTestReconciler(t, src, prov)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}

	got, _ := prov.get("r1")
	if got.Content != "198.51.100.9" {
		t.Errorf("foreign record was modified: %q", got.Content)
	}
	rec, ok := st.Get("fake", "r1")
	if !ok || rec.AppManaged {
		t.Errorf("foreign record should be tracked unmanaged: %+v, %v", rec, ok)
	}

	// After the first pass the slot is occupied by an unmanaged record;
	// later intents for it are skipped, not forced through.
	src.set = hostnames("app.example.com", "other.example.com")
	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Skipped != 1 || prov.updates != 0 {
		t.Errorf("occupied slot not skipped after first pass: %+v updates=%d", stats, prov.updates)
	}
}

func TestReconcileOrphanAndReclaim(t *testing.T) {
	prov := newFakeProvider()
	src := &fakeSource{set: hostnames("app.example.com")}
	r, st := newTestReconciler(t, src, prov)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec, _ := st.FindByTypeName("fake", provider.RecordTypeA, "app.example.com")

	// Hostname disappears.
	src.set = hostnames()
	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Orphaned != 1 {
		t.Errorf("Orphaned = %d, want 1", stats.Orphaned)
	}
	tracked, _ := st.Get("fake", rec.RecordID)
	if tracked.OrphanedAt == nil {
		t.Fatal("record not stamped orphaned")
	}
	if _, ok := prov.get(rec.RecordID); !ok {
		t.Fatal("reconciler must not delete, that is the sweeper's job")
	}

	// Hostname returns within grace.
	src.set = hostnames("app.example.com")
	stats, err = r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Reclaimed != 1 {
		t.Errorf("Reclaimed = %d, want 1", stats.Reclaimed)
	}
	tracked, _ = st.Get("fake", rec.RecordID)
	if tracked.OrphanedAt != nil {
		t.Error("orphan stamp not cleared on return")
	}
}

func TestReconcilePreservedHostnameUntouched(t *testing.T) {
	prov := newFakeProvider()
	prov.seed("r1", "static.example.com", provider.RecordTypeA, "198.51.100.1", 300)
	src := &fakeSource{set: hostnames("static.example.com")}
	r, _ := newTestReconciler(t, src, prov,
		WithPreserved(hostlist.NewPreservedMatcher([]string{"static.example.com"})),
	)

	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Created != 0 && stats.Updated != 0 {
		t.Errorf("preserved hostname caused mutations: %+v", stats)
	}
	got, _ := prov.get("r1")
	if got.Content != "198.51.100.1" {
		t.Error("preserved record was modified")
	}
}

func TestReconcileManagedWinsOverDiscovered(t *testing.T) {
	prov := newFakeProvider()
	src := &fakeSource{set: hostnames("app.example.com")}
	r, _ := newTestReconciler(t, src, prov,
		WithManaged([]hostlist.ManagedEntry{
			{Name: "app.example.com", Type: provider.RecordTypeA, Content: "192.0.2.42", TTL: 600},
		}),
	)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, _ := prov.Records(context.Background())
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Content != "192.0.2.42" || records[0].TTL != 600 {
		t.Errorf("managed entry did not win: %+v", records[0])
	}
}

func TestReconcileManagedCNAMEDefaultsToApex(t *testing.T) {
	prov := newFakeProvider()
	src := &fakeSource{set: hostnames()}
	r, _ := newTestReconciler(t, src, prov,
		WithManaged([]hostlist.ManagedEntry{
			{Name: "alias.example.com", Type: provider.RecordTypeCNAME},
		}),
	)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, _ := prov.Records(context.Background())
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Type != provider.RecordTypeCNAME || records[0].Content != "example.com" {
		t.Errorf("bare CNAME entry should target the zone apex: %+v", records[0])
	}
}

func TestReconcileManagedIgnoresPreserved(t *testing.T) {
	// Managed entries are operator intent; preserved patterns only
	// shield discovered hostnames.
	prov := newFakeProvider()
	src := &fakeSource{set: hostnames()}
	r, _ := newTestReconciler(t, src, prov,
		WithPreserved(hostlist.NewPreservedMatcher([]string{"vpn.example.com"})),
		WithManaged([]hostlist.ManagedEntry{
			{Name: "vpn.example.com", Type: provider.RecordTypeA},
		}),
	)

	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Created != 1 {
		t.Errorf("Created = %d, managed entry must pass the preserved filter", stats.Created)
	}
}

func TestReconcileSourceFailureAbortsPass(t *testing.T) {
	prov := newFakeProvider()
	prov.seed("r1", "app.example.com", provider.RecordTypeA, "203.0.113.7", 300)
	src := &fakeSource{err: errors.New("api down")}
	r, st := newTestReconciler(t, src, prov)

	if _, err := r.Reconcile(context.Background()); err == nil {
		t.Fatal("Reconcile() should fail when the source is down")
	}
	// An empty-looking world from a failed fetch must not orphan anything.
	for _, rec := range st.List() {
		if rec.OrphanedAt != nil {
			t.Error("source failure caused orphan marking")
		}
	}
	if _, ok := r.ActiveKeys(); ok {
		t.Error("failed pass must not publish an intent set")
	}
}

func TestReconcileZoneListFailureAbortsPass(t *testing.T) {
	prov := newFakeProvider()
	prov.listErr = errors.New("provider down")
	src := &fakeSource{set: hostnames("app.example.com")}
	r, _ := newTestReconciler(t, src, prov)

	if _, err := r.Reconcile(context.Background()); err == nil {
		t.Fatal("Reconcile() should fail when the zone cannot be listed")
	}
	if prov.creates != 0 {
		t.Error("no mutations allowed without a zone view")
	}
}

func TestReconcileDryRun(t *testing.T) {
	prov := newFakeProvider()
	src := &fakeSource{set: hostnames("app.example.com")}
	r, st := newTestReconciler(t, src, prov, WithDryRun(true))

	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if prov.creates != 0 {
		t.Error("dry run must not call the provider")
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
	if len(st.List()) != 0 {
		t.Error("dry run must not track records")
	}
}

func TestReconcileCreateFailureCounted(t *testing.T) {
	prov := newFakeProvider()
	prov.createErr = provider.WrapError("fake", "create_record", provider.ReasonTransient, errors.New("rate limited"))
	src := &fakeSource{set: hostnames("app.example.com")}
	r, _ := newTestReconciler(t, src, prov)

	stats, err := r.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("individual record failures must not abort the pass: %v", err)
	}
	if stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}

func TestReconcileHintsRespected(t *testing.T) {
	prov := newFakeProvider()
	set := source.NewHostnameSet()
	set.Add("alias.example.com", source.IntentHints{
		Type:    provider.RecordTypeCNAME,
		Content: "origin.example.com",
		TTL:     120,
	})
	src := &fakeSource{set: set}
	r, _ := newTestReconciler(t, src, prov)

	if _, err := r.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}

	records, _ := prov.Records(context.Background())
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	rec := records[0]
	if rec.Type != provider.RecordTypeCNAME || rec.Content != "origin.example.com" || rec.TTL != 120 {
		t.Errorf("hints not applied: %+v", rec)
	}
}
