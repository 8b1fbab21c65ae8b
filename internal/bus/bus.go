// Package bus implements the in-process publish/subscribe channel for
// domain events. Delivery is best effort: each subscriber has a bounded
// queue and a slow subscriber loses its oldest events rather than
// blocking publishers.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/internal/metrics"
)

// Kind identifies a domain event.
type Kind string

const (
	KindReconcileStarted  Kind = "reconcile_started"
	KindReconcileFinished Kind = "reconcile_finished"
	KindRecordCreated     Kind = "record_created"
	KindRecordUpdated     Kind = "record_updated"
	KindRecordDeleted     Kind = "record_deleted"
	KindRecordOrphaned    Kind = "record_orphaned"
	KindRecordReclaimed   Kind = "record_reclaimed"
	KindError             Kind = "error"
	KindPauseChanged      Kind = "pause_changed"
)

// RecordRef identifies the record an event is about.
type RecordRef struct {
	Provider string `json:"provider"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Content  string `json:"content,omitempty"`
}

// PassStats summarizes a reconciliation pass for reconcile_finished.
type PassStats struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Event is a single domain event. Only the fields relevant to the Kind
// are populated.
type Event struct {
	Kind   Kind       `json:"kind"`
	Time   time.Time  `json:"time"`
	Record *RecordRef `json:"record,omitempty"`
	Stats  *PassStats `json:"stats,omitempty"`

	// Source names the component an error event came from.
	Source  string `json:"source,omitempty"`
	Message string `json:"message,omitempty"`

	// Actor and Paused describe pause_changed events.
	Actor  string `json:"actor,omitempty"`
	Paused bool   `json:"paused,omitempty"`
}

// dropWarnWindow rate-limits the "subscriber queue full" warning.
const dropWarnWindow = time.Minute

// DefaultBuffer is the subscriber queue size used by SubscribeDefault.
const DefaultBuffer = 64

type subscriber struct {
	ch       chan Event
	dropped  uint64
	lastWarn time.Time
}

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	nextID int
	closed bool
	logger *slog.Logger
}

// Option is a functional option for configuring the Bus.
type Option func(*Bus)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates an event bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[int]*subscriber),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a subscriber with the given queue size and returns
// its event channel plus a cancel function. The channel is closed on
// cancel or when the bus shuts down.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan Event, buffer)}
	b.subs[id] = sub

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber without blocking. When a
// subscriber's queue is full the oldest queued event is dropped to make
// room, counted, and warned about at most once per window.
func (b *Bus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
			continue
		default:
		}

		// Queue full: drop the oldest event, then retry once.
		select {
		case <-sub.ch:
			sub.dropped++
			metrics.EventsDroppedTotal.Inc()
		default:
		}

		select {
		case sub.ch <- event:
		default:
			sub.dropped++
			metrics.EventsDroppedTotal.Inc()
		}

		if time.Since(sub.lastWarn) > dropWarnWindow {
			sub.lastWarn = time.Now()
			b.logger.Warn("slow event subscriber, dropping oldest events",
				slog.Uint64("dropped_total", sub.dropped),
				slog.String("kind", string(event.Kind)),
			)
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// PublishError is a convenience for error events.
func (b *Bus) PublishError(source, message string) {
	b.Publish(Event{Kind: KindError, Source: source, Message: message})
}
