package approvals

import (
	"context"
	"sync"
)

// MemoryStore keeps items in a map for the life of the process
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]ApprovalItem
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]ApprovalItem)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (ApprovalItem, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[id]
	if !ok {
		return ApprovalItem{}, false, nil
	}
	return item.Clone(), true, nil
}

func (m *MemoryStore) List(_ context.Context) ([]ApprovalItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]ApprovalItem, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item.Clone())
	}
	sortItems(items)
	return items, nil
}

func (m *MemoryStore) Put(_ context.Context, item ApprovalItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[item.ID] = item.Clone()
	return nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func (m *MemoryStore) Close() error { return nil }
