package area

import (
	"context"
	"sort"
	"sync"
)

// Area is a key/value persistence backend.
// Implementations must be safe for concurrent use.
type Area interface {
	// Get returns the stored value for key.
	// Returns (nil, nil) if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key and notifies watchers if the stored
	// bytes changed.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Watch registers fn for change notifications and returns a function
	// that unregisters it.
	Watch(fn func(Change)) (stop func())

	// Close releases resources held by the area.
	Close() error
}

// Change describes a single key mutation.
// NewValue is nil when the key was removed.
type Change struct {
	Key      string
	OldValue []byte
	NewValue []byte
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.NewValue == nil
}

// watchers is an ordered set of change callbacks. The owner tag lets
// Shared skip the writing tab's own watchers.
type watchers struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]watcher
}

type watcher struct {
	owner string
	fn    func(Change)
}

func (w *watchers) add(owner string, fn func(Change)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fns == nil {
		w.fns = make(map[uint64]watcher)
	}
	w.nextID++
	id := w.nextID
	w.fns[id] = watcher{owner: owner, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.fns, id)
			w.mu.Unlock()
		})
	}
}

func (w *watchers) removeOwner(owner string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, wt := range w.fns {
		if wt.owner == owner {
			delete(w.fns, id)
		}
	}
}

func (w *watchers) clear() {
	w.mu.Lock()
	w.fns = nil
	w.mu.Unlock()
}

// notify calls every watcher not owned by skipOwner, in registration
// order, outside the lock. An empty skipOwner notifies everyone.
func (w *watchers) notify(c Change, skipOwner string) {
	w.mu.Lock()
	ids := make([]uint64, 0, len(w.fns))
	for id, wt := range w.fns {
		if skipOwner != "" && wt.owner == skipOwner {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Change), len(ids))
	for i, id := range ids {
		fns[i] = w.fns[id].fn
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
