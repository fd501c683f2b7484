package store

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/friggog/tree-gen/internal/mesh"
)

// Memory keeps descriptors in process. With a positive limit the oldest
// entry is evicted once the limit is exceeded.
type Memory struct {
	mu     sync.RWMutex
	limit  int
	meshes map[uuid.UUID]*mesh.Descriptor
	order  []uuid.UUID
}

func NewMemory(limit int) *Memory {
	return &Memory{
		limit:  limit,
		meshes: make(map[uuid.UUID]*mesh.Descriptor),
	}
}

func (m *Memory) Load(id uuid.UUID) (*mesh.Descriptor, bool, error) {
	m.mu.RLock()
	d, ok := m.meshes[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return clone(d), true, nil
}

func (m *Memory) Save(d *mesh.Descriptor) error {
	dup := clone(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.meshes[d.ID]; ok {
		m.order = slices.DeleteFunc(m.order, func(id uuid.UUID) bool { return id == d.ID })
	}
	m.meshes[d.ID] = dup
	m.order = append(m.order, d.ID)
	for m.limit > 0 && len(m.order) > m.limit {
		delete(m.meshes, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

func (m *Memory) Delete(id uuid.UUID) error {
	m.mu.Lock()
	if _, ok := m.meshes[id]; ok {
		delete(m.meshes, id)
		m.order = slices.DeleteFunc(m.order, func(other uuid.UUID) bool { return other == id })
	}
	m.mu.Unlock()
	return nil
}

// ForEach visits descriptors oldest first.
func (m *Memory) ForEach(fn func(d *mesh.Descriptor) bool) error {
	m.mu.RLock()
	snapshot := make([]*mesh.Descriptor, 0, len(m.order))
	for _, id := range m.order {
		snapshot = append(snapshot, m.meshes[id])
	}
	m.mu.RUnlock()
	for _, d := range snapshot {
		if !fn(clone(d)) {
			break
		}
	}
	return nil
}

func (m *Memory) Len() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.meshes), nil
}

func (m *Memory) Close() error {
	return nil
}
