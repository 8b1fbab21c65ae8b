package store

import (
	"encoding/json"
	"time"

	"gitlab.bluewillows.net/root/zonewarden/pkg/provider"
)

// Setting names persisted across restarts.
const (
	settingPreserved = "preserved_hostnames"
	settingManaged   = "managed_hostnames"
	settingPaused    = "paused"
	cacheZoneRecords = "zone_records"
)

// SaveStringList persists a runtime-updated hostname list.
func (s *Store) SaveStringList(name string, values []string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist == nil {
		return nil
	}
	if err := s.persist.PutSetting(name, data); err != nil {
		s.markDegraded("save_setting", err)
		return err
	}
	return nil
}

// LoadStringList returns a persisted hostname list, or nil when unset.
func (s *Store) LoadStringList(name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.persist == nil {
		return nil, nil
	}

	data, err := s.persist.GetSetting(name)
	if err != nil || data == nil {
		return nil, err
	}
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// SavePreserved persists the preserved pattern list set through the
// control surface.
func (s *Store) SavePreserved(patterns []string) error {
	return s.SaveStringList(settingPreserved, patterns)
}

// LoadPreserved returns the persisted preserved patterns, or nil.
func (s *Store) LoadPreserved() ([]string, error) { return s.LoadStringList(settingPreserved) }

// SaveManaged persists the managed hostname entries set at runtime.
func (s *Store) SaveManaged(entries []string) error { return s.SaveStringList(settingManaged, entries) }

// LoadManaged returns the persisted managed entries, or nil.
func (s *Store) LoadManaged() ([]string, error) { return s.LoadStringList(settingManaged) }

// PauseState is the persisted pause flag, restored across restarts so a
// paused controller stays paused. Bounded pauses are not persisted with
// their deadline; a restart resumes them indefinitely until resumed.
type PauseState struct {
	Paused bool   `json:"paused"`
	Reason string `json:"reason,omitempty"`
}

// SavePauseState persists the pause flag.
func (s *Store) SavePauseState(state PauseState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist == nil {
		return nil
	}
	if err := s.persist.PutSetting(settingPaused, data); err != nil {
		s.markDegraded("save_pause_state", err)
		return err
	}
	return nil
}

// LoadPauseState returns the persisted pause flag, zero when unset.
func (s *Store) LoadPauseState() (PauseState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.persist == nil {
		return PauseState{}, nil
	}

	data, err := s.persist.GetSetting(settingPaused)
	if err != nil || data == nil {
		return PauseState{}, err
	}
	var state PauseState
	if err := json.Unmarshal(data, &state); err != nil {
		return PauseState{}, err
	}
	return state, nil
}

// CachedZone is the persisted provider zone snapshot, used to answer
// reads across restarts before the first live list succeeds.
type CachedZone struct {
	Provider  string            `json:"provider"`
	Zone      string            `json:"zone"`
	FetchedAt time.Time         `json:"fetched_at"`
	Records   []provider.Record `json:"records"`
}

// SaveZoneSnapshot persists the latest provider zone listing.
func (s *Store) SaveZoneSnapshot(snap CachedZone) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist == nil {
		return nil
	}
	if err := s.persist.PutCache(cacheZoneRecords, data); err != nil {
		s.markDegraded("save_zone_snapshot", err)
		return err
	}
	return nil
}

// LoadZoneSnapshot returns the persisted zone snapshot, if any.
func (s *Store) LoadZoneSnapshot() (CachedZone, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.persist == nil {
		return CachedZone{}, false, nil
	}

	data, err := s.persist.GetCache(cacheZoneRecords)
	if err != nil || data == nil {
		return CachedZone{}, false, err
	}
	var snap CachedZone
	if err := json.Unmarshal(data, &snap); err != nil {
		return CachedZone{}, false, err
	}
	return snap, true, nil
}
