package exampledb

import (
	"bytes"
	"sync"
)

// Memory is an in-process database.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory returns an empty in-process database.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Lookup(key []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[string(key)]
	if !ok {
		return nil, false, nil
	}

	return bytes.Clone(v), true, nil
}

func (m *Memory) Store(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[string(key)] = bytes.Clone(value)

	return nil
}

func (m *Memory) Delete(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.values[string(key)]; ok && bytes.Equal(cur, value) {
		delete(m.values, string(key))
	}

	return nil
}

// Keys returns the stored keys in byte order.
func (m *Memory) Keys() ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([][]byte, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, []byte(k))
	}

	return sortKeys(keys), nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.values)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
