package area

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// Shared is a same-origin page storage shared by several tabs.
// Each tab reads and writes through its own Tab view; a write from one
// tab is announced to the watchers of every other tab, never to the
// writer itself.
type Shared struct {
	mu       sync.RWMutex
	data     map[string][]byte
	watchers watchers

	// writeMu orders writes together with their notifications, so
	// every watcher sees changes in the order they were applied.
	writeMu sync.Mutex
}

// NewShared creates an empty shared page storage.
func NewShared() *Shared {
	return &Shared{data: make(map[string][]byte)}
}

// Tab returns a view of the storage for one tab. An empty id gets a
// random one.
func (s *Shared) Tab(id string) *Tab {
	if id == "" {
		id = uuid.NewString()
	}
	return &Tab{shared: s, id: id}
}

// Snapshot returns the stored value for key without going through a tab.
func (s *Shared) Snapshot(key string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.data[key])
}

func (s *Shared) set(origin, key string, value []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old, exists := s.data[key]
	if exists && bytes.Equal(old, value) {
		s.mu.Unlock()
		return
	}
	stored := clone(value)
	if stored == nil {
		stored = []byte{}
	}
	s.data[key] = stored
	s.mu.Unlock()

	s.watchers.notify(Change{Key: key, OldValue: clone(old), NewValue: clone(stored)}, origin)
}

func (s *Shared) remove(origin, key string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	old, exists := s.data[key]
	if !exists {
		s.mu.Unlock()
		return
	}
	delete(s.data, key)
	s.mu.Unlock()

	s.watchers.notify(Change{Key: key, OldValue: old}, origin)
}

// Tab is one tab's view of a Shared storage. It implements Area.
type Tab struct {
	shared *Shared
	id     string

	mu     sync.Mutex
	closed bool
}

// ID returns the tab identifier.
func (t *Tab) ID() string {
	return t.id
}

func (t *Tab) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Get returns the stored value.
func (t *Tab) Get(ctx context.Context, key string) ([]byte, error) {
	if t.isClosed() {
		return nil, errors.New("S022")
	}
	return t.shared.Snapshot(key), nil
}

// Set stores value and notifies the other tabs.
func (t *Tab) Set(ctx context.Context, key string, value []byte) error {
	if t.isClosed() {
		return errors.New("S022")
	}
	t.shared.set(t.id, key, value)
	return nil
}

// Remove deletes key and notifies the other tabs.
func (t *Tab) Remove(ctx context.Context, key string) error {
	if t.isClosed() {
		return errors.New("S022")
	}
	t.shared.remove(t.id, key)
	return nil
}

// Watch registers fn for writes made by other tabs.
func (t *Tab) Watch(fn func(Change)) func() {
	return t.shared.watchers.add(t.id, fn)
}

// Close detaches the tab; the shared storage keeps its data.
func (t *Tab) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.shared.watchers.removeOwner(t.id)
	return nil
}
