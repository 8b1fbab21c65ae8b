// Package store tracks which provider records this process created and
// therefore owns. The working set lives in memory and is written through
// to an embedded bolt database; when persistence fails the store keeps
// serving from memory in a degraded mode that callers must treat as
// unsafe for destructive cleanup.
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// TrackedRecord is one owned (or observed) provider record.
type TrackedRecord struct {
	Provider   string              `json:"provider"`
	RecordID   string              `json:"record_id"`
	Type       provider.RecordType `json:"type"`
	Name       string              `json:"name"`
	Content    string              `json:"content"`
	TTL        int                 `json:"ttl"`
	AppManaged bool                `json:"app_managed"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	OrphanedAt *time.Time          `json:"orphaned_at,omitempty"`
}

// Key returns the (provider, recordID) identity.
func (r TrackedRecord) Key() string {
	return recordKey(r.Provider, r.RecordID)
}

func recordKey(providerName, recordID string) string {
	return providerName + "\x00" + recordID
}

func nameKey(providerName string, rtype provider.RecordType, name string) string {
	return providerName + "\x00" + string(rtype) + "\x00" + strings.ToLower(name)
}

// Store errors.
var (
	// ErrNotTracked indicates the record is not in the store.
	ErrNotTracked = errors.New("record not tracked")

	// ErrNotAppManaged indicates an operation that requires ownership was
	// attempted on a record the process does not own.
	ErrNotAppManaged = errors.New("record not app managed")
)

// degradedWarnWindow rate-limits the degraded-mode warning.
const degradedWarnWindow = time.Minute

// Store is the record tracker. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]TrackedRecord // recordKey -> record
	byName  map[string]string        // nameKey -> recordKey, appManaged only

	persist  persister
	logger   *slog.Logger
	clock    func() time.Time
	degraded bool
	lastWarn time.Time
}

// persister is the durability backend. The bolt implementation is the
// only production one; tests may substitute a failing persister.
type persister interface {
	LoadAll() ([]TrackedRecord, error)
	Put(rec TrackedRecord) error
	Delete(key string) error
	PutSetting(name string, value []byte) error
	GetSetting(name string) ([]byte, error)
	PutCache(name string, value []byte) error
	GetCache(name string) ([]byte, error)
	Close() error
}

// Option is a functional option for configuring the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Open opens (or creates) the record database under dataDir and loads
// the working set. When the database cannot be opened the store starts
// degraded, memory only, rather than failing the process.
func Open(dataDir string, opts ...Option) (*Store, error) {
	s := &Store{
		records: make(map[string]TrackedRecord),
		byName:  make(map[string]string),
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	backend, err := openBolt(dataDir)
	if err != nil {
		s.degraded = true
		s.logger.Error("record database unavailable, running memory only",
			slog.String("data_dir", dataDir),
			slog.String("error", err.Error()),
		)
		return s, nil
	}
	s.persist = backend

	loaded, err := backend.LoadAll()
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("loading tracked records: %w", err)
	}
	for _, rec := range loaded {
		s.records[rec.Key()] = rec
		if rec.AppManaged {
			s.byName[nameKey(rec.Provider, rec.Type, rec.Name)] = rec.Key()
		}
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist == nil {
		return nil
	}
	err := s.persist.Close()
	s.persist = nil
	return err
}

// Degraded reports whether persistence has been lost. While degraded the
// cleanup path must not delete anything.
func (s *Store) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// markDegraded flips to degraded mode. Caller holds the write lock.
func (s *Store) markDegraded(op string, err error) {
	s.degraded = true
	if time.Since(s.lastWarn) > degradedWarnWindow {
		s.lastWarn = time.Now()
		s.logger.Warn("record database write failed, store is degraded",
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) persistPut(op string, rec TrackedRecord) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Put(rec); err != nil {
		s.markDegraded(op, err)
	}
}

func (s *Store) persistDelete(op, key string) {
	if s.persist == nil {
		return
	}
	if err := s.persist.Delete(key); err != nil {
		s.markDegraded(op, err)
	}
}

// Track upserts a record. An appManaged record replaces any previous
// appManaged record with the same (provider, type, name) so that at most
// one owned record exists per name and type.
func (s *Store) Track(rec TrackedRecord) {
	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.Key()
	if existing, ok := s.records[key]; ok {
		rec.CreatedAt = existing.CreatedAt
		rec.OrphanedAt = existing.OrphanedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if !rec.AppManaged {
		rec.OrphanedAt = nil
	}

	if rec.AppManaged {
		nk := nameKey(rec.Provider, rec.Type, rec.Name)
		if oldKey, ok := s.byName[nk]; ok && oldKey != key {
			delete(s.records, oldKey)
			s.persistDelete("track", oldKey)
		}
		s.byName[nk] = key
	} else {
		// Losing appManaged status drops the name index entry.
		nk := nameKey(rec.Provider, rec.Type, rec.Name)
		if s.byName[nk] == key {
			delete(s.byName, nk)
		}
	}

	s.records[key] = rec
	s.persistPut("track", rec)
}

// Untrack removes a record from the store. Removing an unknown record is
// not an error.
func (s *Store) Untrack(providerName, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(providerName, recordID)
	rec, ok := s.records[key]
	if !ok {
		return
	}
	delete(s.records, key)
	nk := nameKey(rec.Provider, rec.Type, rec.Name)
	if s.byName[nk] == key {
		delete(s.byName, nk)
	}
	s.persistDelete("untrack", key)
}

// Get returns a tracked record by identity.
func (s *Store) Get(providerName, recordID string) (TrackedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(providerName, recordID)]
	return rec, ok
}

// IsTracked reports whether the record identity is known.
func (s *Store) IsTracked(providerName, recordID string) bool {
	_, ok := s.Get(providerName, recordID)
	return ok
}

// FindByTypeName returns the appManaged record for (provider, type, name).
func (s *Store) FindByTypeName(providerName string, rtype provider.RecordType, name string) (TrackedRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.byName[nameKey(providerName, rtype, name)]
	if !ok {
		return TrackedRecord{}, false
	}
	rec, ok := s.records[key]
	return rec, ok
}

// UpdateID rebinds a tracked record to a new provider record ID, for
// providers whose update calls replace the record.
func (s *Store) UpdateID(providerName, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey := recordKey(providerName, oldID)
	rec, ok := s.records[oldKey]
	if !ok {
		return ErrNotTracked
	}

	delete(s.records, oldKey)
	s.persistDelete("update_id", oldKey)

	rec.RecordID = newID
	rec.UpdatedAt = s.clock()
	newKey := rec.Key()
	s.records[newKey] = rec
	if rec.AppManaged {
		s.byName[nameKey(rec.Provider, rec.Type, rec.Name)] = newKey
	}
	s.persistPut("update_id", rec)
	return nil
}

// UpdateIDByTypeName rebinds the appManaged record occupying
// (provider, type, name) to a new provider record ID.
func (s *Store) UpdateIDByTypeName(providerName string, rtype provider.RecordType, name, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldKey, ok := s.byName[nameKey(providerName, rtype, name)]
	if !ok {
		return ErrNotTracked
	}
	rec, ok := s.records[oldKey]
	if !ok {
		return ErrNotTracked
	}

	delete(s.records, oldKey)
	s.persistDelete("update_id", oldKey)

	rec.RecordID = newID
	rec.UpdatedAt = s.clock()
	newKey := rec.Key()
	s.records[newKey] = rec
	s.byName[nameKey(rec.Provider, rec.Type, rec.Name)] = newKey
	s.persistPut("update_id", rec)
	return nil
}

// MarkOrphaned stamps an appManaged record as no longer desired. The
// timestamp is only set on the first call so the grace period is not
// extended by repeated sweeps.
func (s *Store) MarkOrphaned(providerName, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(providerName, recordID)
	rec, ok := s.records[key]
	if !ok {
		return ErrNotTracked
	}
	if !rec.AppManaged {
		return ErrNotAppManaged
	}
	if rec.OrphanedAt != nil {
		return nil
	}

	now := s.clock()
	rec.OrphanedAt = &now
	rec.UpdatedAt = now
	s.records[key] = rec
	s.persistPut("mark_orphaned", rec)
	return nil
}

// UnmarkOrphaned clears the orphan stamp when a record becomes desired
// again.
func (s *Store) UnmarkOrphaned(providerName, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(providerName, recordID)
	rec, ok := s.records[key]
	if !ok {
		return ErrNotTracked
	}
	if rec.OrphanedAt == nil {
		return nil
	}

	rec.OrphanedAt = nil
	rec.UpdatedAt = s.clock()
	s.records[key] = rec
	s.persistPut("unmark_orphaned", rec)
	return nil
}

// ListOrphansOlderThan returns appManaged records whose orphan stamp is
// older than the cutoff.
func (s *Store) ListOrphansOlderThan(cutoff time.Time) []TrackedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []TrackedRecord
	for _, rec := range s.records {
		if rec.AppManaged && rec.OrphanedAt != nil && rec.OrphanedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sortRecords(out)
	return out
}

// List returns all tracked records, sorted by name then type.
func (s *Store) List() []TrackedRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]TrackedRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sortRecords(out)
	return out
}

// Counts returns how many records are appManaged, observed only, and
// currently orphaned.
func (s *Store) Counts() (managed, unmanaged, orphaned int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.AppManaged {
			managed++
			if rec.OrphanedAt != nil {
				orphaned++
			}
		} else {
			unmanaged++
		}
	}
	return managed, unmanaged, orphaned
}

func sortRecords(recs []TrackedRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Name != recs[j].Name {
			return recs[i].Name < recs[j].Name
		}
		if recs[i].Type != recs[j].Type {
			return recs[i].Type < recs[j].Type
		}
		return recs[i].RecordID < recs[j].RecordID
	})
}
