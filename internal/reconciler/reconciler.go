// Package reconciler implements the core control loop: each pass it
// derives the desired record set from the hostname source and the
// managed list, diffs it against the provider zone, converges the
// difference, and maintains ownership tracking so cleanup never touches
// records this process did not create.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/internal/bus"
	"gitlab.bluewillows.net/root/zonewarden/internal/hostlist"
	"gitlab.bluewillows.net/root/zonewarden/internal/metrics"
	"gitlab.bluewillows.net/root/zonewarden/internal/store"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
	"gitlab.bluewillows.net/root/zonewarden/pkg/source"
)

// Provider is the slice of the provider manager the reconciler needs.
type Provider interface {
	Name() string
	ZoneName() string
	Capabilities() provider.Capabilities
	Records(ctx context.Context) ([]provider.Record, error)
	CreateRecord(ctx context.Context, intent provider.Intent) (provider.Record, error)
	UpdateRecord(ctx context.Context, id string, intent provider.Intent) (provider.Record, error)
}

// Stats summarizes one reconciliation pass.
type Stats struct {
	Hostnames int           `json:"hostnames"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Unchanged int           `json:"unchanged"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Orphaned  int           `json:"orphaned"`
	Reclaimed int           `json:"reclaimed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Reconciler drives reconciliation passes. Passes are serialized; a
// trigger that arrives mid-pass waits for the current one to finish.
type Reconciler struct {
	src    source.Source
	prov   Provider
	store  *store.Store
	events *bus.Bus
	ips    IPSource
	logger *slog.Logger

	defaultTTL int
	dryRun     bool

	passMu   sync.Mutex
	firstRun bool

	listMu    sync.RWMutex
	preserved *hostlist.PreservedMatcher
	managed   []hostlist.ManagedEntry

	stateMu    sync.RWMutex
	lastStats  Stats
	lastError  string
	activeKeys map[provider.Key]struct{}
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultTTL sets the TTL applied when neither labels nor managed
// entries specify one.
func WithDefaultTTL(ttl int) Option {
	return func(r *Reconciler) {
		if ttl > 0 {
			r.defaultTTL = ttl
		}
	}
}

// WithDryRun makes passes log intended mutations without issuing them.
func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) {
		r.dryRun = dryRun
	}
}

// WithPreserved sets the initial preserved pattern matcher.
func WithPreserved(m *hostlist.PreservedMatcher) Option {
	return func(r *Reconciler) {
		if m != nil {
			r.preserved = m
		}
	}
}

// WithManaged sets the initial managed entries.
func WithManaged(entries []hostlist.ManagedEntry) Option {
	return func(r *Reconciler) {
		r.managed = entries
	}
}

// New creates a Reconciler. The first pass runs in adoption mode:
// untracked provider records occupying a desired (type, name) slot are
// taken over and converged; every other pre-existing record is tracked
// as unmanaged so it is never deleted.
func New(src source.Source, prov Provider, st *store.Store, events *bus.Bus, ips IPSource, opts ...Option) *Reconciler {
	r := &Reconciler{
		src:        src,
		prov:       prov,
		store:      st,
		events:     events,
		ips:        ips,
		logger:     slog.Default(),
		defaultTTL: 300,
		firstRun:   true,
		preserved:  hostlist.NewPreservedMatcher(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetPreserved replaces the preserved pattern matcher. Takes effect on
// the next pass.
func (r *Reconciler) SetPreserved(m *hostlist.PreservedMatcher) {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	r.preserved = m
}

// Preserved returns the active preserved matcher.
func (r *Reconciler) Preserved() *hostlist.PreservedMatcher {
	r.listMu.RLock()
	defer r.listMu.RUnlock()
	return r.preserved
}

// SetManaged replaces the managed entries. Takes effect on the next pass.
func (r *Reconciler) SetManaged(entries []hostlist.ManagedEntry) {
	r.listMu.Lock()
	defer r.listMu.Unlock()
	r.managed = entries
}

// Managed returns the active managed entries.
func (r *Reconciler) Managed() []hostlist.ManagedEntry {
	r.listMu.RLock()
	defer r.listMu.RUnlock()
	return r.managed
}

// LastStats returns the stats and error message of the most recent pass.
func (r *Reconciler) LastStats() (Stats, string) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.lastStats, r.lastError
}

// ActiveKeys returns the desired (type, name) set of the most recent
// successful pass. ok is false until a pass has produced one; the
// sweeper must not delete anything before then.
func (r *Reconciler) ActiveKeys() (map[provider.Key]struct{}, bool) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	if r.activeKeys == nil {
		return nil, false
	}
	keys := make(map[provider.Key]struct{}, len(r.activeKeys))
	for k := range r.activeKeys {
		keys[k] = struct{}{}
	}
	return keys, true
}

// Reconcile runs one pass. It returns the pass stats; the error is
// non-nil only when the pass could not run at all (source or zone
// listing unavailable). Individual record failures are counted in the
// stats and do not abort the pass.
func (r *Reconciler) Reconcile(ctx context.Context) (Stats, error) {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	stats := Stats{StartedAt: time.Now()}
	r.events.Publish(bus.Event{Kind: bus.KindReconcileStarted})

	finish := func(err error) (Stats, error) {
		stats.Duration = time.Since(stats.StartedAt)
		metrics.ReconcileDuration.Observe(stats.Duration.Seconds())

		r.stateMu.Lock()
		r.lastStats = stats
		if err != nil {
			r.lastError = err.Error()
		} else {
			r.lastError = ""
		}
		r.stateMu.Unlock()

		if err != nil {
			metrics.ReconcilePassesTotal.WithLabelValues("error").Inc()
			r.events.PublishError("reconciler", err.Error())
		} else {
			metrics.ReconcilePassesTotal.WithLabelValues("success").Inc()
		}
		r.events.Publish(bus.Event{
			Kind: bus.KindReconcileFinished,
			Stats: &bus.PassStats{
				Created:   stats.Created,
				Updated:   stats.Updated,
				Unchanged: stats.Unchanged,
				Failed:    stats.Failed,
				Total:     stats.Hostnames,
			},
		})
		r.updateGauges()
		return stats, err
	}

	discovered, err := r.src.Fetch(ctx)
	if err != nil {
		r.logger.Error("hostname source unavailable, pass aborted",
			slog.String("source", r.src.Name()),
			slog.String("error", err.Error()),
		)
		return finish(err)
	}
	stats.Hostnames = discovered.Len()
	metrics.HostnamesDiscovered.Set(float64(discovered.Len()))

	r.listMu.RLock()
	preserved := r.preserved
	managed := r.managed
	r.listMu.RUnlock()

	caps := r.prov.Capabilities()
	intents := buildIntents(discovered, managed, preserved, r.ips, r.prov.ZoneName(), r.defaultTTL, caps, r.logger)

	records, err := r.prov.Records(ctx)
	if err != nil {
		r.logger.Error("zone listing unavailable, pass aborted",
			slog.String("provider", r.prov.Name()),
			slog.String("error", err.Error()),
		)
		r.countProviderError(err)
		return finish(err)
	}

	// Persist the zone view so reads survive a restart during a provider
	// outage. Best effort.
	_ = r.store.SaveZoneSnapshot(store.CachedZone{
		Provider:  r.prov.Name(),
		Zone:      r.prov.ZoneName(),
		FetchedAt: time.Now(),
		Records:   records,
	})

	byKey := provider.ByKey(records)
	desired := make(map[provider.Key]struct{}, len(intents))

	adopting := r.firstRun
	for _, intent := range intents {
		desired[intent.Key()] = struct{}{}
		r.ensure(ctx, intent, byKey, caps, adopting, &stats)
	}
	if adopting {
		r.trackForeign(records, desired)
	}

	r.scanOrphans(desired, preserved, &stats)
	r.firstRun = false

	r.stateMu.Lock()
	r.activeKeys = desired
	r.stateMu.Unlock()

	r.logger.Info("reconciliation pass complete",
		slog.Int("hostnames", stats.Hostnames),
		slog.Int("created", stats.Created),
		slog.Int("updated", stats.Updated),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("skipped", stats.Skipped),
		slog.Int("failed", stats.Failed),
		slog.Int("orphaned", stats.Orphaned),
		slog.Bool("dry_run", r.dryRun),
	)
	return finish(nil)
}

// ensure converges one intent against the zone view.
func (r *Reconciler) ensure(
	ctx context.Context,
	intent provider.Intent,
	byKey map[provider.Key]provider.Record,
	caps provider.Capabilities,
	adopting bool,
	stats *Stats,
) {
	provName := r.prov.Name()
	existing, exists := byKey[intent.Key()]

	if !exists {
		if r.dryRun {
			r.logger.Info("dry run: would create record",
				slog.String("record", intent.String()),
			)
			stats.Skipped++
			return
		}

		created, err := r.prov.CreateRecord(ctx, intent)
		if err != nil {
			r.recordFailure("create", intent, err, stats)
			return
		}

		r.store.Track(store.TrackedRecord{
			Provider:   provName,
			RecordID:   created.ID,
			Type:       created.Type,
			Name:       created.Name,
			Content:    created.Content,
			TTL:        created.TTL,
			AppManaged: true,
		})
		stats.Created++
		metrics.RecordActionsTotal.WithLabelValues("create", "success").Inc()
		r.logger.Info("record created",
			slog.String("record", created.String()),
		)
		r.events.Publish(bus.Event{
			Kind:   bus.KindRecordCreated,
			Record: recordRef(provName, created),
		})
		return
	}

	owned := false
	if tracked, ok := r.store.Get(provName, existing.ID); ok {
		owned = tracked.AppManaged
	} else if tracked, ok := r.store.FindByTypeName(provName, intent.Type, intent.Name); ok {
		// We own this slot but the provider regenerated the record ID.
		if err := r.store.UpdateID(provName, tracked.RecordID, existing.ID); err == nil {
			owned = true
		}
	} else if adopting {
		// First pass: a record occupying a desired (type, name) slot is
		// taken over. Content or TTL drift is converged below.
		r.logger.Info("adopting record on first pass",
			slog.String("record", existing.String()),
		)
		owned = true
	}

	if !owned {
		r.logger.Debug("slot occupied by a record this process does not own",
			slog.String("record", existing.String()),
		)
		r.store.Track(store.TrackedRecord{
			Provider:   provName,
			RecordID:   existing.ID,
			Type:       existing.Type,
			Name:       existing.Name,
			Content:    existing.Content,
			TTL:        existing.TTL,
			AppManaged: false,
		})
		stats.Skipped++
		return
	}

	if provider.Equivalent(existing, intent, caps) {
		r.store.Track(store.TrackedRecord{
			Provider:   provName,
			RecordID:   existing.ID,
			Type:       existing.Type,
			Name:       existing.Name,
			Content:    existing.Content,
			TTL:        existing.TTL,
			AppManaged: true,
		})
		stats.Unchanged++
		return
	}

	if r.dryRun {
		r.logger.Info("dry run: would update record",
			slog.String("from", existing.String()),
			slog.String("to", intent.String()),
		)
		stats.Skipped++
		return
	}

	updated, err := r.prov.UpdateRecord(ctx, existing.ID, intent)
	if err != nil {
		r.recordFailure("update", intent, err, stats)
		return
	}

	r.store.Track(store.TrackedRecord{
		Provider:   provName,
		RecordID:   updated.ID,
		Type:       updated.Type,
		Name:       updated.Name,
		Content:    updated.Content,
		TTL:        updated.TTL,
		AppManaged: true,
	})
	if updated.ID != existing.ID {
		r.store.Untrack(provName, existing.ID)
	}
	stats.Updated++
	metrics.RecordActionsTotal.WithLabelValues("update", "success").Inc()
	r.logger.Info("record updated",
		slog.String("record", updated.String()),
	)
	r.events.Publish(bus.Event{
		Kind:   bus.KindRecordUpdated,
		Record: recordRef(provName, updated),
	})
}

// trackForeign records the first-pass zone inventory that matches no
// intent as unmanaged, so cleanup can never touch it.
func (r *Reconciler) trackForeign(records []provider.Record, desired map[provider.Key]struct{}) {
	provName := r.prov.Name()

	for _, rec := range records {
		if _, want := desired[rec.Key()]; want {
			continue
		}
		if _, ok := r.store.Get(provName, rec.ID); ok {
			continue
		}
		r.store.Track(store.TrackedRecord{
			Provider: provName,
			RecordID: rec.ID,
			Type:     rec.Type,
			Name:     rec.Name,
			Content:  rec.Content,
			TTL:      rec.TTL,
		})
	}
}

// scanOrphans stamps owned records that fell out of the desired set and
// clears the stamp on records that came back.
func (r *Reconciler) scanOrphans(desired map[provider.Key]struct{}, preserved *hostlist.PreservedMatcher, stats *Stats) {
	provName := r.prov.Name()

	for _, tracked := range r.store.List() {
		if tracked.Provider != provName || !tracked.AppManaged {
			continue
		}

		key := provider.Key{Type: tracked.Type, Name: tracked.Name}
		if _, want := desired[key]; want {
			if tracked.OrphanedAt != nil {
				if err := r.store.UnmarkOrphaned(provName, tracked.RecordID); err == nil {
					stats.Reclaimed++
					r.logger.Info("record reclaimed before cleanup",
						slog.String("name", tracked.Name),
						slog.String("type", string(tracked.Type)),
					)
					r.events.Publish(bus.Event{
						Kind: bus.KindRecordReclaimed,
						Record: &bus.RecordRef{
							Provider: provName,
							Type:     string(tracked.Type),
							Name:     tracked.Name,
						},
					})
				}
			}
			continue
		}

		if preserved.Matches(tracked.Name) {
			continue
		}
		if tracked.OrphanedAt != nil {
			continue
		}
		if err := r.store.MarkOrphaned(provName, tracked.RecordID); err == nil {
			stats.Orphaned++
			r.logger.Info("record orphaned, grace period started",
				slog.String("name", tracked.Name),
				slog.String("type", string(tracked.Type)),
			)
			r.events.Publish(bus.Event{
				Kind: bus.KindRecordOrphaned,
				Record: &bus.RecordRef{
					Provider: provName,
					Type:     string(tracked.Type),
					Name:     tracked.Name,
				},
			})
		}
	}
}

func (r *Reconciler) recordFailure(action string, intent provider.Intent, err error, stats *Stats) {
	stats.Failed++
	metrics.RecordActionsTotal.WithLabelValues(action, "failed").Inc()
	r.countProviderError(err)
	r.logger.Error("record "+action+" failed",
		slog.String("record", intent.String()),
		slog.String("reason", string(provider.ReasonOf(err))),
		slog.String("error", err.Error()),
	)
	r.events.PublishError("reconciler", err.Error())
}

func (r *Reconciler) countProviderError(err error) {
	metrics.ProviderErrorsTotal.WithLabelValues(r.prov.Name(), string(provider.ReasonOf(err))).Inc()
}

func (r *Reconciler) updateGauges() {
	managed, unmanaged, orphaned := r.store.Counts()
	metrics.TrackedRecords.WithLabelValues("managed").Set(float64(managed))
	metrics.TrackedRecords.WithLabelValues("unmanaged").Set(float64(unmanaged))
	metrics.OrphanedRecords.Set(float64(orphaned))
}

func recordRef(providerName string, rec provider.Record) *bus.RecordRef {
	return &bus.RecordRef{
		Provider: providerName,
		Type:     string(rec.Type),
		Name:     rec.Name,
		Content:  rec.Content,
	}
}
