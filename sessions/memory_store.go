package sessions

import (
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a map-backed Store. Expiry is recorded but not enforced.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	maxAge map[string]time.Duration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		maxAge: make(map[string]time.Duration),
	}
}

func (m *MemoryStore) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

func (m *MemoryStore) Set(name, value string, maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	m.maxAge[name] = maxAge
}

func (m *MemoryStore) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, name)
	delete(m.maxAge, name)
}

// MaxAge returns the lifetime the slot was last written with.
func (m *MemoryStore) MaxAge(name string) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.maxAge[name]
	return d, ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
