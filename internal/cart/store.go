package cart

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store persists sessions. The service never deletes them; a store may age out
// settled ones (converted, or expired with nothing held).
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	// ActiveByOwner returns the owner's session in status active, or ErrNotFound.
	ActiveByOwner(ctx context.Context, ownerKey string) (*Session, error)
	// Save writes s if the stored version still equals s.Version (0 for a new
	// session) and advances s.Version. Otherwise it returns ErrConflict.
	Save(ctx context.Context, s *Session) error
	// ListExpired returns sessions past ExpiresAt that may still hold stock
	// (active, or expired with holds left), oldest first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Session, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	owners   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		owners:   make(map[string]string),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) ActiveByOwner(_ context.Context, ownerKey string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.owners[ownerKey]
	if !ok {
		return nil, ErrNotFound
	}
	s := m.sessions[id]
	if s == nil || s.Status != StatusActive {
		return nil, ErrNotFound
	}
	return s.clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var cur int64
	if old, ok := m.sessions[s.ID]; ok {
		cur = old.Version
	}
	if cur != s.Version {
		return fmt.Errorf("%w: %s", ErrConflict, s.ID)
	}
	s.Version++
	m.sessions[s.ID] = s.clone()
	key := s.Owner.Key()
	if s.Status == StatusActive {
		m.owners[key] = s.ID
	} else if m.owners[key] == s.ID {
		delete(m.owners, key)
	}
	return nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.pendingRelease() && s.IsExpired(now) {
			out = append(out, s.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
