// Package memory provides an in-process SnapshotStore.
package memory

import (
	"context"
	"sync"
	"time"

	"solana-token-feed/internal/domain"
	"solana-token-feed/internal/storage"
)

type entry struct {
	snap      *domain.Snapshot
	expiresAt time.Time // zero means no expiry
}

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]entry
	now  func() time.Time
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return NewSnapshotStoreWithClock(time.Now)
}

// NewSnapshotStoreWithClock creates a store that reads time from now.
func NewSnapshotStoreWithClock(now func() time.Time) *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]entry),
		now:  now,
	}
}

// Get returns a copy of the snapshot under key.
func (s *SnapshotStore) Get(_ context.Context, key string) (*domain.Snapshot, bool) {
	s.mu.RLock()
	e, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		s.mu.Lock()
		// A concurrent Set may have refreshed the entry.
		if cur, ok := s.data[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(s.data, key)
		}
		s.mu.Unlock()
		return nil, false
	}

	return domain.NewSnapshot(e.snap.Records, e.snap.CapturedAt), true
}

// Set stores a copy of snap.
func (s *SnapshotStore) Set(_ context.Context, key string, snap *domain.Snapshot, ttl time.Duration) {
	if snap == nil {
		return
	}

	e := entry{snap: domain.NewSnapshot(snap.Records, snap.CapturedAt)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = e
}

// SetMany stores one shared copy of snap under every key.
func (s *SnapshotStore) SetMany(_ context.Context, keys []string, snap *domain.Snapshot, ttl time.Duration) {
	if snap == nil || len(keys) == 0 {
		return
	}

	e := entry{snap: domain.NewSnapshot(snap.Records, snap.CapturedAt)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		s.data[key] = e
	}
}

// Delete removes key.
func (s *SnapshotStore) Delete(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Ping always succeeds.
func (s *SnapshotStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (s *SnapshotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
