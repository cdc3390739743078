// Package evidence holds each user's current evidence snapshot. Snapshots
// are immutable; a replacement with different content gets a new id.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	presence "residency/internal/presence/evidence"
	id "residency/pkg/domain"
	"residency/pkg/platform/sentinel"
	"residency/pkg/requestcontext"
)

// Snapshot is one immutable set of evidence records for a user.
type Snapshot struct {
	ID        id.SnapshotID
	UserID    id.UserID
	Records   []presence.Record
	CreatedAt time.Time
}

// InMemoryStore keeps the latest snapshot per user.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[id.UserID]*Snapshot
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[id.UserID]*Snapshot)}
}

// Put replaces the user's snapshot. Replacing it with identical content
// returns the existing snapshot unchanged.
func (s *InMemoryStore) Put(ctx context.Context, userID id.UserID, records []presence.Record) (*Snapshot, error) {
	snapID, err := contentID(records)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.snapshots[userID]; ok && cur.ID == snapID {
		return cur, nil
	}
	snap := &Snapshot{
		ID:        snapID,
		UserID:    userID,
		Records:   append([]presence.Record(nil), records...),
		CreatedAt: requestcontext.Now(ctx).UTC(),
	}
	s.snapshots[userID] = snap
	return snap, nil
}

// Latest returns the user's current snapshot or sentinel.ErrNotFound.
func (s *InMemoryStore) Latest(_ context.Context, userID id.UserID) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return snap, nil
}

func contentID(records []presence.Record) (id.SnapshotID, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode evidence snapshot: %w", err)
	}
	sum := sha256.Sum256(data)
	return id.SnapshotID("ev-" + hex.EncodeToString(sum[:12])), nil
}
