package stock

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]Counters
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]Counters)}
}

// Set seeds counters for a product, bypassing the ledger. Intended for setup only.
func (s *MemoryStore) Set(productID string, stock, reserved int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[productID]
	s.counters[productID] = Counters{Stock: stock, Reserved: reserved, Version: c.Version + 1}
}

func (s *MemoryStore) Load(_ context.Context, productID string) (Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[productID]
	if !ok {
		return Counters{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, productID string, old, next Counters) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[productID]
	if !ok {
		return false, ErrNotFound
	}
	if c.Version != old.Version {
		return false, nil
	}
	next.Version = c.Version + 1
	s.counters[productID] = next
	return true, nil
}
