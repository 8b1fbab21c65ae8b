package provider

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider/zonecache"
)

// DefaultCallTimeout bounds every outbound provider call. A timeout is
// classified transient and never treated as success.
const DefaultCallTimeout = 30 * time.Second

// DefaultCacheTTL is how long a zone snapshot is served before the next
// read goes back to the provider.
const DefaultCacheTTL = 60 * time.Minute

// Manager owns the active adapter and the zone snapshot cache. It is the
// provider capability the reconciler and the sweeper hold; they never touch
// an Adapter directly. Hot swapping replaces the adapter atomically and
// only after the replacement initialized successfully.
type Manager struct {
	active      atomic.Pointer[adapterSlot]
	cache       *zonecache.Cache[Record]
	callTimeout time.Duration
	logger      *slog.Logger
}

type adapterSlot struct {
	adapter Adapter
}

// ManagerOption is a functional option for configuring the Manager.
type ManagerOption func(*Manager)

// WithCallTimeout overrides the per-call deadline.
func WithCallTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.callTimeout = d
		}
	}
}

// WithCacheTTL overrides the zone snapshot TTL.
func WithCacheTTL(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.cache = zonecache.New[Record](d)
		}
	}
}

// WithManagerLogger sets a custom logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a manager around an initialized adapter.
func NewManager(adapter Adapter, opts ...ManagerOption) *Manager {
	m := &Manager{
		cache:       zonecache.New[Record](DefaultCacheTTL),
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.active.Store(&adapterSlot{adapter: adapter})
	return m
}

// Adapter returns the currently active adapter.
func (m *Manager) Adapter() Adapter {
	return m.active.Load().adapter
}

// Name returns the active adapter's type name.
func (m *Manager) Name() string { return m.Adapter().Name() }

// ZoneName returns the zone the active adapter manages.
func (m *Manager) ZoneName() string { return m.Adapter().ZoneName() }

// Capabilities returns the active adapter's capability descriptor.
func (m *Manager) Capabilities() Capabilities { return m.Adapter().Capabilities() }

// Swap initializes replacement and, only on success, makes it the active
// adapter and invalidates the zone cache. On failure the current adapter
// stays in service.
func (m *Manager) Swap(ctx context.Context, replacement Adapter) error {
	callCtx, cancel := m.deadline(ctx)
	defer cancel()

	if err := replacement.Init(callCtx); err != nil {
		m.logger.Error("provider swap rejected, keeping current adapter",
			slog.String("candidate", replacement.Name()),
			slog.String("error", err.Error()),
		)
		return err
	}

	old := m.Adapter()
	m.active.Store(&adapterSlot{adapter: replacement})
	m.cache.Invalidate()

	m.logger.Info("provider swapped",
		slog.String("from", old.Name()),
		slog.String("to", replacement.Name()),
		slog.String("zone", replacement.ZoneName()),
	)
	return nil
}

// TestConnection checks the active adapter's connectivity.
func (m *Manager) TestConnection(ctx context.Context) error {
	callCtx, cancel := m.deadline(ctx)
	defer cancel()
	return m.Adapter().TestConnection(callCtx)
}

// Records returns the zone contents, serving the cached snapshot when it
// is still fresh. On a refresh failure with a stale snapshot available,
// the stale snapshot is served and the error swallowed at DEBUG; with no
// snapshot at all the error propagates.
func (m *Manager) Records(ctx context.Context) ([]Record, error) {
	if !m.cache.NeedsRefresh() {
		if records, ok := m.cache.Snapshot(); ok {
			return records, nil
		}
	}

	records, err := m.RefreshCache(ctx)
	if err != nil {
		if stale, ok := m.cache.Snapshot(); ok {
			m.logger.Debug("zone refresh failed, serving stale snapshot",
				slog.String("provider", m.Name()),
				slog.String("error", err.Error()),
			)
			return stale, nil
		}
		return nil, err
	}
	return records, nil
}

// CachedRecords returns the snapshot without triggering a refresh.
func (m *Manager) CachedRecords() ([]Record, bool) {
	return m.cache.Snapshot()
}

// CacheAge returns how old the current snapshot is.
func (m *Manager) CacheAge() time.Duration {
	return m.cache.Age()
}

// RefreshCache forces a provider list and replaces the snapshot. Uses
// compare-and-set so a concurrent writer's patch is not clobbered by an
// older list result.
func (m *Manager) RefreshCache(ctx context.Context) ([]Record, error) {
	gen := m.cache.Generation()

	callCtx, cancel := m.deadline(ctx)
	defer cancel()

	records, err := m.Adapter().ListRecords(callCtx)
	if err != nil {
		return nil, classifyCtx(callCtx, m.Name(), "list_records", err)
	}

	if !m.cache.ReplaceIfUnchanged(records, gen) {
		// A write patched the cache while we were listing; its view is
		// newer than ours, so keep it and retry from the snapshot.
		if current, ok := m.cache.Snapshot(); ok {
			return current, nil
		}
		m.cache.Replace(records)
	}
	return records, nil
}

// InvalidateCache drops the snapshot.
func (m *Manager) InvalidateCache() {
	m.cache.Invalidate()
}

// CreateRecord validates the intent, creates it at the provider, and
// patches the snapshot with the new row.
func (m *Manager) CreateRecord(ctx context.Context, intent Intent) (Record, error) {
	adapter := m.Adapter()
	if err := ValidateIntent(adapter.Name(), intent, adapter.Capabilities()); err != nil {
		return Record{}, err
	}

	callCtx, cancel := m.deadline(ctx)
	defer cancel()

	record, err := adapter.CreateRecord(callCtx, intent)
	if err != nil {
		return Record{}, classifyCtx(callCtx, adapter.Name(), "create_record", err)
	}

	m.cache.Update(func(records []Record) []Record {
		return append(records, record)
	})
	return record, nil
}

// UpdateRecord validates the intent, updates the record at the provider,
// and patches the snapshot row in place. The returned record's ID may
// differ from id on backends that regenerate IDs.
func (m *Manager) UpdateRecord(ctx context.Context, id string, intent Intent) (Record, error) {
	adapter := m.Adapter()
	if err := ValidateIntent(adapter.Name(), intent, adapter.Capabilities()); err != nil {
		return Record{}, err
	}

	callCtx, cancel := m.deadline(ctx)
	defer cancel()

	record, err := adapter.UpdateRecord(callCtx, id, intent)
	if err != nil {
		return Record{}, classifyCtx(callCtx, adapter.Name(), "update_record", err)
	}

	m.cache.Update(func(records []Record) []Record {
		patched := make([]Record, 0, len(records))
		for _, r := range records {
			if r.ID == id {
				continue
			}
			patched = append(patched, r)
		}
		return append(patched, record)
	})
	return record, nil
}

// DeleteRecord removes the record at the provider and evicts the snapshot
// row. An already-absent record is treated as deleted.
func (m *Manager) DeleteRecord(ctx context.Context, id string) error {
	adapter := m.Adapter()

	callCtx, cancel := m.deadline(ctx)
	defer cancel()

	err := adapter.DeleteRecord(callCtx, id)
	if err != nil && !IsNotFound(err) {
		return classifyCtx(callCtx, adapter.Name(), "delete_record", err)
	}

	m.cache.Update(func(records []Record) []Record {
		kept := make([]Record, 0, len(records))
		for _, r := range records {
			if r.ID != id {
				kept = append(kept, r)
			}
		}
		return kept
	})
	return nil
}

// BatchEnsure brings a set of intents into existence, delegating to the
// backend's batch API when it has one and otherwise falling back to the
// single-record operations against the cached zone view.
func (m *Manager) BatchEnsure(ctx context.Context, intents []Intent) (BatchResult, error) {
	adapter := m.Adapter()

	if adapter.Capabilities().BatchOperations {
		if batch, ok := adapter.(BatchAdapter); ok {
			callCtx, cancel := m.deadline(ctx)
			defer cancel()

			result, err := batch.BatchEnsureRecords(callCtx, intents)
			if err != nil {
				return result, classifyCtx(callCtx, adapter.Name(), "batch_ensure", err)
			}
			m.cache.Invalidate()
			return result, nil
		}
	}

	var result BatchResult
	records, err := m.Records(ctx)
	if err != nil {
		result.Failed = len(intents)
		return result, err
	}
	byKey := ByKey(records)
	caps := adapter.Capabilities()

	for _, intent := range intents {
		existing, ok := byKey[intent.Key()]
		switch {
		case !ok:
			if _, err := m.CreateRecord(ctx, intent); err != nil {
				result.Failed++
				continue
			}
			result.Created++
		case Equivalent(existing, intent, caps):
			result.Unchanged++
		default:
			if _, err := m.UpdateRecord(ctx, existing.ID, intent); err != nil {
				result.Failed++
				continue
			}
			result.Updated++
		}
	}
	return result, nil
}

func (m *Manager) deadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.callTimeout)
}

// classifyCtx upgrades a deadline expiry into a transient provider error
// so the reconciler retries instead of treating it as permanent.
func classifyCtx(ctx context.Context, providerName, op string, err error) error {
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return WrapError(providerName, op, ReasonTransient, err)
	}
	return WrapError(providerName, op, ReasonOther, err)
}
