// Package control is the runtime control surface: pause and resume the
// periodic loops, trigger one-shot passes, inspect status and tracked
// records, and update the managed and preserved lists without a restart.
package control

import (
	"context"
	"log/slog"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/internal/hostlist"
	"gitlab.bluewillows.net/root/zonewarden/internal/reconciler"
	"gitlab.bluewillows.net/root/zonewarden/internal/scheduler"
	"gitlab.bluewillows.net/root/zonewarden/internal/store"
	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// Triggers is the scheduler capability the controller needs.
type Triggers interface {
	TriggerReconcile()
	TriggerCleanup(force bool)
}

// ProviderInfo is the provider-manager capability the controller needs.
type ProviderInfo interface {
	Name() string
	ZoneName() string
	CacheAge() time.Duration
	RefreshCache(ctx context.Context) ([]provider.Record, error)
}

// IPInfo reports the discovered public addresses.
type IPInfo interface {
	IPv4() string
	IPv6() string
}

// Status is the operator-facing state summary.
type Status struct {
	Version    string                `json:"version"`
	Provider   string                `json:"provider"`
	Zone       string                `json:"zone"`
	Mode       string                `json:"mode"`
	UptimeSecs int64                 `json:"uptime_seconds"`
	Pause      scheduler.PauseStatus `json:"pause"`
	PublicIPv4 string                `json:"public_ipv4,omitempty"`
	PublicIPv6 string                `json:"public_ipv6,omitempty"`

	StoreDegraded bool `json:"store_degraded"`
	Managed       int  `json:"managed_records"`
	Unmanaged     int  `json:"unmanaged_records"`
	Orphaned      int  `json:"orphaned_records"`

	CacheAgeSecs int64            `json:"cache_age_seconds"`
	LastPass     reconciler.Stats `json:"last_pass"`
	LastError    string           `json:"last_error,omitempty"`

	Preserved []string `json:"preserved_hostnames"`
}

// Controller wires the control operations to the running components.
type Controller struct {
	pause   *scheduler.PauseManager
	trigger Triggers
	rec     *reconciler.Reconciler
	store   *store.Store
	prov    ProviderInfo
	ips     IPInfo
	logger  *slog.Logger

	version   string
	mode      string
	startedAt time.Time
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithVersion sets the version string reported by Status.
func WithVersion(version string) Option {
	return func(c *Controller) {
		c.version = version
	}
}

// WithMode sets the operation mode string reported by Status.
func WithMode(mode string) Option {
	return func(c *Controller) {
		c.mode = mode
	}
}

// New creates a Controller.
func New(pause *scheduler.PauseManager, trigger Triggers, rec *reconciler.Reconciler, st *store.Store, prov ProviderInfo, ips IPInfo, opts ...Option) *Controller {
	c := &Controller{
		pause:     pause,
		trigger:   trigger,
		rec:       rec,
		store:     st,
		prov:      prov,
		ips:       ips,
		logger:    slog.Default(),
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pause stops the periodic loops, optionally for a bounded duration.
// Indefinite pauses are persisted so they survive a restart.
func (c *Controller) Pause(reason string, duration time.Duration, actor string) {
	c.pause.Pause(reason, duration, actor)
	if duration <= 0 {
		c.savePauseState(store.PauseState{Paused: true, Reason: reason})
	}
}

// Resume restarts the periodic loops.
func (c *Controller) Resume(actor string) {
	c.pause.Resume(actor)
	c.savePauseState(store.PauseState{})
}

func (c *Controller) savePauseState(state store.PauseState) {
	if err := c.store.SavePauseState(state); err != nil {
		c.logger.Warn("persisting pause state failed",
			slog.Bool("paused", state.Paused),
			slog.String("error", err.Error()),
		)
	}
}

// TriggerReconcile requests a one-shot reconcile pass.
func (c *Controller) TriggerReconcile() {
	c.trigger.TriggerReconcile()
}

// TriggerCleanup requests a one-shot cleanup sweep.
func (c *Controller) TriggerCleanup(force bool) {
	c.trigger.TriggerCleanup(force)
}

// RefreshProviderCache forces a fresh zone listing.
func (c *Controller) RefreshProviderCache(ctx context.Context) error {
	_, err := c.prov.RefreshCache(ctx)
	return err
}

// Status returns the operator-facing state summary.
func (c *Controller) Status() Status {
	managed, unmanaged, orphaned := c.store.Counts()
	lastStats, lastErr := c.rec.LastStats()

	return Status{
		Version:       c.version,
		Provider:      c.prov.Name(),
		Zone:          c.prov.ZoneName(),
		Mode:          c.mode,
		UptimeSecs:    int64(time.Since(c.startedAt).Seconds()),
		Pause:         c.pause.Status(),
		PublicIPv4:    c.ips.IPv4(),
		PublicIPv6:    c.ips.IPv6(),
		StoreDegraded: c.store.Degraded(),
		Managed:       managed,
		Unmanaged:     unmanaged,
		Orphaned:      orphaned,
		CacheAgeSecs:  int64(c.prov.CacheAge().Seconds()),
		LastPass:      lastStats,
		LastError:     lastErr,
		Preserved:     c.rec.Preserved().Patterns(),
	}
}

// RecordFilter selects which tracked records ListTrackedRecords returns.
type RecordFilter string

const (
	FilterAll       RecordFilter = "all"
	FilterManaged   RecordFilter = "managed"
	FilterUnmanaged RecordFilter = "unmanaged"
	FilterOrphaned  RecordFilter = "orphaned"
)

// ListTrackedRecords returns the tracked records matching the filter.
func (c *Controller) ListTrackedRecords(filter RecordFilter) []store.TrackedRecord {
	all := c.store.List()
	if filter == "" || filter == FilterAll {
		return all
	}

	out := make([]store.TrackedRecord, 0, len(all))
	for _, rec := range all {
		switch filter {
		case FilterManaged:
			if rec.AppManaged {
				out = append(out, rec)
			}
		case FilterUnmanaged:
			if !rec.AppManaged {
				out = append(out, rec)
			}
		case FilterOrphaned:
			if rec.OrphanedAt != nil {
				out = append(out, rec)
			}
		}
	}
	return out
}

// SetPreserved replaces the preserved pattern list, persists it, and
// triggers a pass so the new shielding takes effect immediately.
func (c *Controller) SetPreserved(patterns []string) error {
	c.rec.SetPreserved(hostlist.NewPreservedMatcher(patterns))
	if err := c.store.SavePreserved(patterns); err != nil {
		c.logger.Warn("preserved list active but not persisted",
			slog.String("error", err.Error()),
		)
	}
	c.logger.Info("preserved hostnames updated",
		slog.Int("patterns", len(patterns)),
	)
	c.trigger.TriggerReconcile()
	return nil
}

// SetManaged replaces the managed hostname entries, persists the raw
// list, and triggers a pass.
func (c *Controller) SetManaged(entries []string) error {
	parsed := hostlist.ParseManaged(entries, c.logger)
	c.rec.SetManaged(parsed)
	if err := c.store.SaveManaged(entries); err != nil {
		c.logger.Warn("managed list active but not persisted",
			slog.String("error", err.Error()),
		)
	}
	c.logger.Info("managed hostnames updated",
		slog.Int("entries", len(parsed)),
		slog.Int("rejected", len(entries)-len(parsed)),
	)
	c.trigger.TriggerReconcile()
	return nil
}
