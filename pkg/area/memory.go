package area

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// Memory is an in-memory area. It stands in for the extension's local
// storage in tests and single-process deployments.
type Memory struct {
	mu       sync.RWMutex
	data     map[string][]byte
	closed   bool
	watchers watchers

	// writeMu orders writes together with their notifications, so
	// every watcher sees changes in the order they were applied.
	writeMu sync.Mutex
}

// NewMemory creates an empty in-memory area.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errors.New("S022")
	}
	return clone(m.data[key]), nil
}

// Set stores a copy of value.
func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("S022")
	}
	old, exists := m.data[key]
	if exists && bytes.Equal(old, value) {
		m.mu.Unlock()
		return nil
	}
	stored := clone(value)
	if stored == nil {
		stored = []byte{}
	}
	m.data[key] = stored
	m.mu.Unlock()

	m.watchers.notify(Change{Key: key, OldValue: clone(old), NewValue: clone(stored)}, "")
	return nil
}

// Remove deletes key.
func (m *Memory) Remove(ctx context.Context, key string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("S022")
	}
	old, exists := m.data[key]
	if !exists {
		m.mu.Unlock()
		return nil
	}
	delete(m.data, key)
	m.mu.Unlock()

	m.watchers.notify(Change{Key: key, OldValue: old}, "")
	return nil
}

// Watch registers fn for every change, including the caller's own writes.
func (m *Memory) Watch(fn func(Change)) func() {
	return m.watchers.add("", fn)
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Close shuts down the area and drops all watchers.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	m.data = nil
	m.watchers.clear()
	return nil
}
