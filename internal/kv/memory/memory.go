package memory

import (
	"context"
	"slices"
	"sync"

	"pharmapos/backend/internal/kv"
)

// Store keeps blobs in process memory. Values are copied on the way in and out
// so callers can never alias the stored bytes.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

func (s *Store) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.blobs[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	return slices.Clone(value), nil
}

func (s *Store) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blobs[key] = slices.Clone(value)
	return nil
}

func (s *Store) Close() error {
	return nil
}
