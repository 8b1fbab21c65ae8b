// Package sweeper implements orphan cleanup: owned records that are no
// longer desired are stamped, given a grace period, and only then
// deleted at the provider. Records this process does not own are never
// deleted, and nothing is deleted while the tracking store is degraded.
package sweeper

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
)

// Provider is the slice of the provider manager the sweeper needs.
type Provider interface {
	Name() string
	Records(ctx context.Context) ([]provider.Record, error)
	CachedRecords() ([]provider.Record, bool)
	DeleteRecord(ctx context.Context, id string) error
}

// IntentView exposes the reconciler's view of what is currently desired.
type IntentView interface {
	// ActiveKeys returns the desired set of the last pass; ok is false
	// before the first pass completes.
	ActiveKeys() (map[provider.Key]struct{}, bool)

	// Preserved returns the active preserved matcher.
	Preserved() *hostlist.PreservedMatcher
}

// Result summarizes one sweep.
type Result struct {
	Marked    int `json:"marked"`
	Deleted   int `json:"deleted"`
	Pruned    int `json:"pruned"`
	Reclaimed int `json:"reclaimed"`
	Waiting   int `json:"waiting"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`
}

// Sweeper runs cleanup sweeps. Sweeps are serialized.
type Sweeper struct {
	prov    Provider
	store   *store.Store
	intents IntentView
	events  *bus.Bus
	logger  *slog.Logger

	grace  time.Duration
	dryRun bool
	clock  func() time.Time

	mu sync.Mutex
}

// Option is a functional option for configuring the Sweeper.
type Option func(*Sweeper)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDryRun makes sweeps log intended deletions without issuing them.
func WithDryRun(dryRun bool) Option {
	return func(s *Sweeper) {
		s.dryRun = dryRun
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New creates a Sweeper with the given grace period.
func New(prov Provider, st *store.Store, intents IntentView, events *bus.Bus, grace time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		prov:    prov,
		store:   st,
		intents: intents,
		events:  events,
		logger:  slog.Default(),
		grace:   grace,
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one cleanup pass. force deletes orphans immediately,
// skipping the remaining grace time. The sweep is a no-op until the
// reconciler has completed a pass, so a fresh process never deletes
// based on stale intent.
func (s *Sweeper) Sweep(ctx context.Context, force bool) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result Result

	active, ok := s.intents.ActiveKeys()
	if !ok {
		s.logger.Debug("no reconciliation pass yet, skipping sweep")
		return result
	}
	preserved := s.intents.Preserved()

	// Prefer a live zone view, fall back to the in-memory cache, then the
	// zone snapshot persisted by the reconciler, and without any of them
	// run database-only: prune expired rows without provider calls.
	dbOnly := false
	var zoneIDs map[string]struct{}
	records, err := s.prov.Records(ctx)
	if err != nil {
		if cached, ok := s.prov.CachedRecords(); ok {
			s.logger.Warn("zone listing unavailable, sweeping against cached snapshot",
				slog.String("error", err.Error()),
			)
			records = cached
		} else if snap, ok, snapErr := s.store.LoadZoneSnapshot(); snapErr == nil && ok && snap.Provider == s.prov.Name() {
			s.logger.Warn("zone listing unavailable, sweeping against persisted snapshot",
				slog.String("error", err.Error()),
				slog.Duration("snapshot_age", s.clock().Sub(snap.FetchedAt)),
			)
			records = snap.Records
		} else {
			s.logger.Warn("no zone view available, database-only sweep",
				slog.String("error", err.Error()),
			)
			dbOnly = true
		}
	}
	if !dbOnly {
		zoneIDs = make(map[string]struct{}, len(records))
		for _, rec := range records {
			zoneIDs[rec.ID] = struct{}{}
		}
	}

	degraded := s.store.Degraded()
	now := s.clock()
	provName := s.prov.Name()

	for _, tracked := range s.store.List() {
		if tracked.Provider != provName {
			continue
		}
		if !tracked.AppManaged {
			s.logger.Debug("unmanaged record, cleanup never touches it",
				slog.String("name", tracked.Name),
				slog.String("type", string(tracked.Type)),
			)
			continue
		}

		key := provider.Key{Type: tracked.Type, Name: tracked.Name}
		if _, want := active[key]; want {
			if tracked.OrphanedAt != nil {
				if err := s.store.UnmarkOrphaned(provName, tracked.RecordID); err == nil {
					result.Reclaimed++
				}
			}
			continue
		}

		if preserved.Matches(tracked.Name) {
			continue
		}

		// Row whose provider record is already gone: drop the row, the
		// zone needs nothing.
		if !dbOnly {
			if _, inZone := zoneIDs[tracked.RecordID]; !inZone {
				s.store.Untrack(provName, tracked.RecordID)
				result.Pruned++
				s.logger.Info("record vanished at provider, dropping tracking row",
					slog.String("name", tracked.Name),
					slog.String("type", string(tracked.Type)),
				)
				continue
			}
		}

		if tracked.OrphanedAt == nil {
			if s.dryRun {
				s.logger.Info("dry run: would orphan record",
					slog.String("name", tracked.Name),
					slog.String("type", string(tracked.Type)),
				)
				continue
			}
			if err := s.store.MarkOrphaned(provName, tracked.RecordID); err == nil {
				result.Marked++
				s.logger.Info("record orphaned, grace period started",
					slog.String("name", tracked.Name),
					slog.String("type", string(tracked.Type)),
					slog.Duration("grace", s.grace),
				)
				s.events.Publish(bus.Event{
					Kind:   bus.KindRecordOrphaned,
					Record: trackedRef(tracked),
				})
			}
			continue
		}

		if !force && now.Sub(*tracked.OrphanedAt) < s.grace {
			result.Waiting++
			continue
		}

		if degraded {
			result.Blocked++
			continue
		}
		if s.dryRun {
			s.logger.Info("dry run: would delete orphaned record",
				slog.String("name", tracked.Name),
				slog.String("type", string(tracked.Type)),
			)
			result.Blocked++
			continue
		}

		if dbOnly {
			s.store.Untrack(provName, tracked.RecordID)
			result.Pruned++
			continue
		}

		if err := s.prov.DeleteRecord(ctx, tracked.RecordID); err != nil {
			result.Failed++
			metrics.RecordActionsTotal.WithLabelValues("delete", "failed").Inc()
			metrics.ProviderErrorsTotal.WithLabelValues(provName, string(provider.ReasonOf(err))).Inc()
			s.logger.Error("orphan delete failed, will retry next sweep",
				slog.String("name", tracked.Name),
				slog.String("type", string(tracked.Type)),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.store.Untrack(provName, tracked.RecordID)
		result.Deleted++
		metrics.RecordActionsTotal.WithLabelValues("delete", "success").Inc()
		s.logger.Info("orphaned record deleted",
			slog.String("name", tracked.Name),
			slog.String("type", string(tracked.Type)),
			slog.String("content", tracked.Content),
		)
		s.events.Publish(bus.Event{
			Kind:   bus.KindRecordDeleted,
			Record: trackedRef(tracked),
		})
	}

	if degraded && result.Blocked > 0 {
		s.logger.Warn("store degraded, destructive cleanup suspended",
			slog.Int("blocked", result.Blocked),
		)
	}

	managed, unmanaged, orphaned := s.store.Counts()
	metrics.TrackedRecords.WithLabelValues("managed").Set(float64(managed))
	metrics.TrackedRecords.WithLabelValues("unmanaged").Set(float64(unmanaged))
	metrics.OrphanedRecords.Set(float64(orphaned))

	return result
}

func trackedRef(rec store.TrackedRecord) *bus.RecordRef {
	return &bus.RecordRef{
		Provider: rec.Provider,
		Type:     string(rec.Type),
		Name:     rec.Name,
		Content:  rec.Content,
	}
}
