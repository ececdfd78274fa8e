// Package memory keeps cached process entries in-memory for tests/dev.
package memory

import (
	"context"
	"sync"

	"github.com/crawjud/pje-pipeline/internal/pje"
)

// ProcessStore stores cached entries in a map keyed by process number.
type ProcessStore struct {
	mu      sync.RWMutex
	entries map[string]pje.CachedEntry
}

// NewProcessStore creates a new in-memory process store.
func NewProcessStore() *ProcessStore {
	return &ProcessStore{entries: make(map[string]pje.CachedEntry)}
}

// SaveProcess stores the entry, overwriting any previous one.
func (s *ProcessStore) SaveProcess(_ context.Context, entry pje.CachedEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ProcessNumber] = entry
	return nil
}

// GetProcess loads an entry or reports a cache miss.
func (s *ProcessStore) GetProcess(_ context.Context, processNumber string) (pje.CachedEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[processNumber]
	if !ok {
		return pje.CachedEntry{}, pje.ErrEntryNotCached
	}
	return entry, nil
}

// Len returns the number of stored entries.
func (s *ProcessStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
