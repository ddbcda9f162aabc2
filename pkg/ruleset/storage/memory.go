package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mercator-hq/minerva/pkg/ruleset"
)

// MemoryStore is an in-memory ruleset.Store. It keeps every version row in
// a map keyed by id and serves copies, so callers can never mutate stored
// state through a returned ruleset.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*ruleset.Ruleset
	lineages map[ruleset.ScopeKey][]string // version ids, insertion order
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*ruleset.Ruleset),
		lineages: make(map[ruleset.ScopeKey][]string),
	}
}

// Put inserts a ruleset version with its rules.
func (s *MemoryStore) Put(_ context.Context, rs *ruleset.Ruleset) error {
	if rs.ID == "" {
		return fmt.Errorf("ruleset id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[rs.ID]; exists {
		return fmt.Errorf("%w: id %s", ruleset.ErrVersionExists, rs.ID)
	}

	scope := ruleset.ScopeKey{TenantID: rs.TenantID, Code: rs.Code}
	for _, id := range s.lineages[scope] {
		if s.byID[id].Version == rs.Version {
			return fmt.Errorf("%w: %s v%d", ruleset.ErrVersionExists, scope, rs.Version)
		}
	}

	s.byID[rs.ID] = copyRuleset(rs)
	s.lineages[scope] = append(s.lineages[scope], rs.ID)
	return nil
}

// Get returns a ruleset version by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*ruleset.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, ok := s.byID[id]
	if !ok || rs.Deleted {
		return nil, &ruleset.NotFoundError{ID: id}
	}
	return copyRuleset(rs), nil
}

// GetVersion returns one version of a lineage.
func (s *MemoryStore) GetVersion(_ context.Context, scope ruleset.ScopeKey, version int) (*ruleset.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.lineages[scope] {
		rs := s.byID[id]
		if rs.Version == version && !rs.Deleted {
			return copyRuleset(rs), nil
		}
	}
	return nil, &ruleset.NotFoundError{Scope: scope, Version: version}
}

// GetActive returns the Active version of a lineage.
func (s *MemoryStore) GetActive(_ context.Context, scope ruleset.ScopeKey) (*ruleset.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.lineages[scope] {
		rs := s.byID[id]
		if rs.Status == ruleset.StatusActive && !rs.Deleted {
			return copyRuleset(rs), nil
		}
	}
	return nil, &ruleset.NoActiveVersionError{Scope: scope}
}

// ListVersions returns all versions of a lineage ordered by version
// ascending, without rules.
func (s *MemoryStore) ListVersions(_ context.Context, scope ruleset.ScopeKey) ([]*ruleset.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ruleset.Ruleset
	for _, id := range s.lineages[scope] {
		rs := s.byID[id]
		if rs.Deleted {
			continue
		}
		header := copyRuleset(rs)
		header.Rules = nil
		out = append(out, header)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Swap atomically activates one version and retires another.
func (s *MemoryStore) Swap(_ context.Context, activateID, retireID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.byID[activateID]
	if !ok || target.Deleted {
		return &ruleset.NotFoundError{ID: activateID}
	}
	var retired *ruleset.Ruleset
	if retireID != "" {
		retired, ok = s.byID[retireID]
		if !ok || retired.Deleted {
			return &ruleset.NotFoundError{ID: retireID}
		}
	}

	target.Status = ruleset.StatusActive
	target.ActivatedAt = nowUTC()
	if retired != nil {
		retired.Status = ruleset.StatusRetired
		target.PreviousVersionID = retired.ID
	}
	return nil
}

// Delete marks a version row as soft-deleted. Deleted rows stop appearing
// in any query but stay in memory for the life of the store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, ok := s.byID[id]
	if !ok || rs.Deleted {
		return &ruleset.NotFoundError{ID: id}
	}
	rs.Deleted = true
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func nowUTC() time.Time { return time.Now().UTC() }

func copyRuleset(rs *ruleset.Ruleset) *ruleset.Ruleset {
	out := *rs
	if rs.Rules != nil {
		out.Rules = make([]*ruleset.Rule, len(rs.Rules))
		for i, r := range rs.Rules {
			rc := *r
			out.Rules[i] = &rc
		}
	}
	return &out
}
