package docker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
)

// TriggerFunc is called when container changes warrant a reconcile pass.
type TriggerFunc func()

// Watcher defaults.
const (
	DefaultDebounceInterval  = 2 * time.Second
	DefaultReconnectInterval = 5 * time.Second
)

// Watcher subscribes to container lifecycle events and fires a debounced
// trigger, so a burst of events from a deployment causes a single pass.
type Watcher struct {
	client    *Client
	onTrigger TriggerFunc
	debounceI time.Duration
	reconnect time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	running  bool
	debounce *time.Timer
}

// WatcherOption is a functional option for configuring the Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a trigger fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceI = d
		}
	}
}

// WithWatcherLogger sets a custom logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a container event watcher.
func NewWatcher(client *Client, onTrigger TriggerFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		client:    client,
		onTrigger: onTrigger,
		debounceI: DefaultDebounceInterval,
		reconnect: DefaultReconnectInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.running = true
	w.mu.Unlock()

	go w.watchLoop(ctx)

	w.logger.Info("docker event watcher started",
		slog.Duration("debounce", w.debounceI),
	)
}

// Stop halts the watcher and any pending debounce timer.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.debounce != nil {
		w.debounce.Stop()
		w.debounce = nil
	}
	w.running = false
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := w.watch(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn("event stream error, reconnecting",
					slog.String("error", err.Error()),
					slog.Duration("retry_in", w.reconnect),
				)
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.reconnect):
				}
			}
		}
	}
}

func (w *Watcher) watch(ctx context.Context) error {
	filterArgs := filters.NewArgs()
	filterArgs.Add("type", string(events.ContainerEventType))
	for _, action := range []string{"start", "stop", "die", "destroy"} {
		filterArgs.Add("event", action)
	}

	eventsChan, errChan := w.client.RawClient().Events(ctx, events.ListOptions{
		Filters: filterArgs,
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			return err
		case event := <-eventsChan:
			w.handleEvent(event)
		}
	}
}

func (w *Watcher) handleEvent(event events.Message) {
	w.logger.Debug("docker event",
		slog.String("action", string(event.Action)),
		slog.String("container", event.Actor.Attributes["name"]),
	)

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.debounceI, func() {
		if w.onTrigger != nil {
			w.onTrigger()
		}
	})
	w.mu.Unlock()
}
