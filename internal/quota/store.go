package quota

import (
	"context"
	"sync"
)

// Store persists quota records. Get returns a zero Record for unknown users.
type Store interface {
	Get(ctx context.Context, userID string) (Record, error)
	Put(ctx context.Context, userID string, rec Record) error
}

// MemoryStore keeps records in process memory. State is lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[userID], nil
}

func (s *MemoryStore) Put(_ context.Context, userID string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = rec
	return nil
}

// Len returns the number of known users.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
