package orders

import (
	"context"
	"sort"
	"sync"
)

type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// Update writes o only if the stored version equals o.Version, then bumps o.Version.
	Update(ctx context.Context, o *Order) error
	ListByOwner(ctx context.Context, ownerKey string, limit int) ([]*Order, error)
	// ListHistoryOver returns orders whose status history is longer than limit.
	ListHistoryOver(ctx context.Context, limit int) ([]*Order, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]*Order
	byNumber map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]*Order),
		byNumber: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return ErrConflict
	}
	if _, ok := m.byNumber[o.Number]; ok {
		return ErrConflict
	}
	o.Version = 1
	m.orders[o.ID] = o.clone()
	m.byNumber[o.Number] = o.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.clone(), nil
}

func (m *MemoryStore) GetByNumber(ctx context.Context, number string) (*Order, error) {
	m.mu.RLock()
	id, ok := m.byNumber[number]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) Update(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != o.Version {
		return ErrConflict
	}
	o.Version++
	m.orders[o.ID] = o.clone()
	return nil
}

func (m *MemoryStore) ListByOwner(_ context.Context, ownerKey string, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Order
	for _, o := range m.orders {
		if o.Owner.Key() == ownerKey {
			out = append(out, o.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListHistoryOver(_ context.Context, limit int) ([]*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Order
	for _, o := range m.orders {
		if len(o.StatusHistory) > limit {
			out = append(out, o.clone())
		}
	}
	return out, nil
}
