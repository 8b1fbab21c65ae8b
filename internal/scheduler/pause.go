package scheduler

import (
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/internal/bus"
	"gitlab.bluewillows.net/root/zonewarden/internal/metrics"
)

// PauseStatus describes the pause gate for the control surface.
type PauseStatus struct {
	Paused   bool      `json:"paused"`
	Reason   string    `json:"reason,omitempty"`
	Actor    string    `json:"actor,omitempty"`
	PausedAt time.Time `json:"paused_at,omitempty"`
	Until    time.Time `json:"until,omitempty"`
}

// PauseManager gates the periodic loops. While paused, scheduled ticks
// are dropped; one-shot triggers are unaffected.
type PauseManager struct {
	mu          sync.Mutex
	status      PauseStatus
	resumeTimer *time.Timer

	events *bus.Bus
	logger *slog.Logger
}

// NewPauseManager creates an unpaused gate.
func NewPauseManager(events *bus.Bus, logger *slog.Logger) *PauseManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PauseManager{events: events, logger: logger}
}

// Pause stops the periodic loops. A non-zero duration schedules an
// automatic resume; pausing again replaces any earlier schedule.
func (p *PauseManager) Pause(reason string, duration time.Duration, actor string) {
	p.mu.Lock()
	if p.resumeTimer != nil {
		p.resumeTimer.Stop()
		p.resumeTimer = nil
	}

	p.status = PauseStatus{
		Paused:   true,
		Reason:   reason,
		Actor:    actor,
		PausedAt: time.Now(),
	}
	if duration > 0 {
		p.status.Until = p.status.PausedAt.Add(duration)
		p.resumeTimer = time.AfterFunc(duration, func() {
			p.Resume("auto")
		})
	}
	p.mu.Unlock()

	metrics.Paused.Set(1)
	p.logger.Info("periodic loops paused",
		slog.String("reason", reason),
		slog.String("actor", actor),
		slog.Duration("duration", duration),
	)
	p.events.Publish(bus.Event{
		Kind:    bus.KindPauseChanged,
		Paused:  true,
		Actor:   actor,
		Message: reason,
	})
}

// Resume restarts the periodic loops and cancels any scheduled
// auto-resume. Resuming an unpaused gate is a no-op.
func (p *PauseManager) Resume(actor string) {
	p.mu.Lock()
	if !p.status.Paused {
		p.mu.Unlock()
		return
	}
	if p.resumeTimer != nil {
		p.resumeTimer.Stop()
		p.resumeTimer = nil
	}
	p.status = PauseStatus{}
	p.mu.Unlock()

	metrics.Paused.Set(0)
	p.logger.Info("periodic loops resumed",
		slog.String("actor", actor),
	)
	p.events.Publish(bus.Event{
		Kind:   bus.KindPauseChanged,
		Paused: false,
		Actor:  actor,
	})
}

// Paused reports whether the gate is closed.
func (p *PauseManager) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status.Paused
}

// Status returns the current gate state.
func (p *PauseManager) Status() PauseStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}
