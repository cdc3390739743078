package override

import (
	"context"
	"sort"
	"sync"

	"residency/internal/presence/conflict"
	id "residency/pkg/domain"
	"residency/pkg/platform/sentinel"
)

// InMemoryStore keeps pins and conflict references in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	pins      map[id.UserID]map[pinKey]conflict.Override
	revisions map[id.UserID]int64
	conflicts map[id.UserID]map[id.ConflictID]ConflictRef
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		pins:      make(map[id.UserID]map[pinKey]conflict.Override),
		revisions: make(map[id.UserID]int64),
		conflicts: make(map[id.UserID]map[id.ConflictID]ConflictRef),
	}
}

// Save upserts a pin and returns the user's new revision.
func (s *InMemoryStore) Save(_ context.Context, userID id.UserID, o conflict.Override) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pins, ok := s.pins[userID]
	if !ok {
		pins = make(map[pinKey]conflict.Override)
		s.pins[userID] = pins
	}
	pins[pinKey{date: o.Date, attribution: o.Attribution}] = o
	s.revisions[userID]++
	return s.revisions[userID], nil
}

// List returns the user's pins ordered by date, then attribution.
func (s *InMemoryStore) List(_ context.Context, userID id.UserID) ([]conflict.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]conflict.Override, 0, len(s.pins[userID]))
	for _, o := range s.pins[userID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Attribution < out[j].Attribution
	})
	return out, nil
}

// Revision returns the number of pins ever saved for the user.
func (s *InMemoryStore) Revision(_ context.Context, userID id.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revisions[userID], nil
}

// RecordConflicts remembers conflicts shown to the user. Known ids are
// left untouched.
func (s *InMemoryStore) RecordConflicts(_ context.Context, userID id.UserID, refs []ConflictRef) error {
	if len(refs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	known, ok := s.conflicts[userID]
	if !ok {
		known = make(map[id.ConflictID]ConflictRef)
		s.conflicts[userID] = known
	}
	for _, ref := range refs {
		if _, seen := known[ref.ID]; !seen {
			known[ref.ID] = ref
		}
	}
	return nil
}

// FindConflict returns a recorded conflict or sentinel.ErrNotFound.
func (s *InMemoryStore) FindConflict(_ context.Context, userID id.UserID, conflictID id.ConflictID) (ConflictRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.conflicts[userID][conflictID]
	if !ok {
		return ConflictRef{}, sentinel.ErrNotFound
	}
	return ref, nil
}
