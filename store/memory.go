package store

import (
	"context"
	"sync"
)

// MemoryStore keeps pairs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	pairs map[string]Pair
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pairs: make(map[string]Pair)}
}

func (s *MemoryStore) Load(_ context.Context, scope string) (Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pair, ok := s.pairs[normalizeScope(scope)]
	if !ok {
		return Pair{}, ErrNoTokens
	}
	return pair, nil
}

func (s *MemoryStore) Save(_ context.Context, scope string, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pairs[normalizeScope(scope)] = pair
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pairs, normalizeScope(scope))
	return nil
}
