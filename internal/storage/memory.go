package storage

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"
)

// Memory is an in-process Storage, used by tests and the memory canvas backend.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// List matches keys with path.Match semantics.
func (m *Memory) List(ctx context.Context, pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []string
	for key := range m.data {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, fmt.Errorf("listing keys: %w", err)
		}
		if ok {
			results = append(results, key)
		}
	}
	sort.Strings(results)
	return results, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.data, key)
	return nil
}
