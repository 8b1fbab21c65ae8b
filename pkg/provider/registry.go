package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory builds an adapter from its credential/config map. Keys are
// uppercase (ZONE, API_TOKEN, ...) matching the per-provider environment
// variables with the provider prefix stripped.
type Factory func(config map[string]string, logger *slog.Logger) (Adapter, error)

// Registry maps provider type names to factories. The DNS_PROVIDER
// setting selects which factory builds the active adapter; hot swaps go
// through the same path.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *slog.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
}

// Register adds a factory for a provider type. Registering the same type
// twice replaces the earlier factory.
func (r *Registry) Register(typeName string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeName] = factory
}

// Build constructs an adapter of the given type. The adapter is not
// initialized; callers run Init (the Manager does this during Swap).
func (r *Registry) Build(typeName string, config map[string]string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[typeName]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown provider type %q (registered: %v)", typeName, r.Types())
	}

	adapter, err := factory(config, r.logger)
	if err != nil {
		return nil, fmt.Errorf("building provider %s: %w", typeName, err)
	}
	return adapter, nil
}

// Types returns the registered provider type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for name := range r.factories {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}
