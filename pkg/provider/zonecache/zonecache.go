// Package zonecache holds an in-memory snapshot of a provider zone with
// TTL-based refresh. All adapter reads in the reconciler and the sweeper
// pass through it so a steady-state pass costs no provider API calls.
package zonecache

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// freshKey is the single cache entry marking the snapshot as fresh.
// ttlcache owns the expiry bookkeeping; the records themselves stay
// readable after expiry so a failed refresh can still serve stale data.
const freshKey = "zone"

// Cache is a TTL-bounded zone snapshot. The zero value is not usable;
// call New.
type Cache[T any] struct {
	mu          sync.Mutex
	fresh       *ttlcache.Cache[string, struct{}]
	records     []T
	hasSnapshot bool
	lastUpdated time.Time
	generation  uint64
}

// New creates a cache whose snapshot goes stale after ttl.
func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		fresh: ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](ttl),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		),
	}
}

// Snapshot returns the cached zone contents and whether a snapshot
// exists. A stale snapshot is still returned; check NeedsRefresh for
// freshness. The returned slice is shared; callers must not mutate it.
func (c *Cache[T]) Snapshot() ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.records, c.hasSnapshot
}

// NeedsRefresh reports whether the snapshot is missing or expired.
func (c *Cache[T]) NeedsRefresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.fresh.Has(freshKey)
}

// Replace installs a fresh snapshot and resets its TTL.
func (c *Cache[T]) Replace(records []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceLocked(records)
}

// Update applies fn to the current snapshot, if there is one, and stores
// the result. Used to patch single rows after a write so the next read
// does not need a full refresh.
//
// Update is a no-op when no snapshot exists: a write against a cold cache
// just leaves the cache cold.
func (c *Cache[T]) Update(fn func(records []T) []T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasSnapshot {
		return false
	}
	c.replaceLocked(fn(c.records))
	return true
}

// ReplaceIfUnchanged installs records only when no other replace happened
// since the caller observed generation gen. Returns false if the snapshot
// moved underneath the caller.
func (c *Cache[T]) ReplaceIfUnchanged(records []T, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false
	}
	c.replaceLocked(records)
	return true
}

// Generation returns the current snapshot generation for use with
// ReplaceIfUnchanged.
func (c *Cache[T]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Invalidate drops the snapshot entirely, stale copy included. The next
// read must come from the provider.
func (c *Cache[T]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fresh.Delete(freshKey)
	c.records = nil
	c.hasSnapshot = false
	c.generation++
}

// LastUpdated returns when the snapshot was last replaced, zero if never.
func (c *Cache[T]) LastUpdated() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdated
}

// Age returns how old the current snapshot is. Returns a very large
// duration when no snapshot was ever installed.
func (c *Cache[T]) Age() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastUpdated.IsZero() {
		return 1<<63 - 1
	}
	return time.Since(c.lastUpdated)
}

func (c *Cache[T]) replaceLocked(records []T) {
	c.fresh.Set(freshKey, struct{}{}, ttlcache.DefaultTTL)
	c.records = records
	c.hasSnapshot = true
	c.lastUpdated = time.Now()
	c.generation++
}
