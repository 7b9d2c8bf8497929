package store

import (
	"errors"
	"sync"

	"github.com/i474232898/itbi-price-aggregation/internal/itbi"
)

var (
	// ErrNotLoaded is returned when no snapshot has been loaded yet.
	ErrNotLoaded = errors.New("itbi data not loaded")
)

// MemoryStore is a concurrency-safe holder of the current snapshot.
// Snapshots are never mutated; Replace swaps the pointer as a whole.
type MemoryStore struct {
	mu      sync.RWMutex
	current *itbi.Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Replace installs snapshot as the current one. A nil snapshot is ignored.
func (s *MemoryStore) Replace(snapshot *itbi.Snapshot) {
	if snapshot == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = snapshot
}

// Current returns the most recent snapshot.
func (s *MemoryStore) Current() (*itbi.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return nil, ErrNotLoaded
	}
	return s.current, nil
}
