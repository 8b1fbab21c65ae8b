// Package scheduler drives the periodic reconcile and cleanup loops. It
// owns the tickers and the pause gate; the actual work lives in the
// reconciler and the sweeper.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// ReconcileFunc runs one reconciliation pass.
type ReconcileFunc func(ctx context.Context)

// CleanupFunc runs one cleanup sweep; force skips the grace period.
type CleanupFunc func(ctx context.Context, force bool)

// Scheduler runs the two periodic loops. Scheduled ticks are dropped
// while paused; explicit triggers bypass the gate and coalesce when they
// arrive faster than passes complete.
type Scheduler struct {
	reconcile ReconcileFunc
	cleanup   CleanupFunc
	pause     *PauseManager

	pollInterval    time.Duration
	cleanupInterval time.Duration
	logger          *slog.Logger

	reconcileCh chan struct{}
	cleanupCh   chan bool
}

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a Scheduler.
func New(reconcile ReconcileFunc, cleanup CleanupFunc, pause *PauseManager, pollInterval, cleanupInterval time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		reconcile:       reconcile,
		cleanup:         cleanup,
		pause:           pause,
		pollInterval:    pollInterval,
		cleanupInterval: cleanupInterval,
		logger:          slog.Default(),
		reconcileCh:     make(chan struct{}, 1),
		cleanupCh:       make(chan bool, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TriggerReconcile requests a one-shot reconcile pass. Triggers bypass
// the pause gate; if one is already pending the request coalesces.
func (s *Scheduler) TriggerReconcile() {
	select {
	case s.reconcileCh <- struct{}{}:
	default:
	}
}

// TriggerCleanup requests a one-shot cleanup sweep. A forced request is
// not downgraded by coalescing with a pending unforced one.
func (s *Scheduler) TriggerCleanup(force bool) {
	select {
	case s.cleanupCh <- force:
	default:
		if force {
			// Replace a pending unforced request.
			select {
			case <-s.cleanupCh:
			default:
			}
			select {
			case s.cleanupCh <- true:
			default:
			}
		}
	}
}

// Run blocks, driving both loops until ctx is canceled. An immediate
// reconcile pass runs at startup.
func (s *Scheduler) Run(ctx context.Context) {
	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()
	cleanupTicker := time.NewTicker(s.cleanupInterval)
	defer cleanupTicker.Stop()

	s.logger.Info("scheduler started",
		slog.Duration("poll_interval", s.pollInterval),
		slog.Duration("cleanup_interval", s.cleanupInterval),
	)

	s.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return

		case <-pollTicker.C:
			if s.pause.Paused() {
				s.logger.Debug("paused, dropping reconcile tick")
				continue
			}
			s.reconcile(ctx)

		case <-cleanupTicker.C:
			if s.pause.Paused() {
				s.logger.Debug("paused, dropping cleanup tick")
				continue
			}
			s.cleanup(ctx, false)

		case <-s.reconcileCh:
			s.reconcile(ctx)

		case force := <-s.cleanupCh:
			s.cleanup(ctx, force)
		}
	}
}
