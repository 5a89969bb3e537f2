package syncstore

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// Instance is the type-erased view of a Store held by a Registry.
type Instance interface {
	Name() string
	Descriptor() Descriptor
	Context() Context
	Synced() bool
	State() State
	WaitSynced(ctx context.Context) error
	Flush(ctx context.Context) error
	Close() error
}

// Registry owns at most one store per tracked key name within one
// execution context.
type Registry struct {
	mu     sync.Mutex
	stores map[string]Instance
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[string]Instance)}
}

// Open creates, registers and starts a store for key. A second store
// for the same name is rejected.
func Open[T any](r *Registry, key TrackedKey[T], opts ...Option) (*Store[T], error) {
	r.mu.Lock()
	if _, ok := r.stores[key.Name]; ok {
		r.mu.Unlock()
		return nil, errors.New("S070").WithDetail(key.Name)
	}
	// Reserve the name while the store starts.
	r.stores[key.Name] = nil
	r.mu.Unlock()

	s, err := New(key, opts...)
	if err != nil {
		r.mu.Lock()
		delete(r.stores, key.Name)
		r.mu.Unlock()
		return nil, err
	}

	s.mu.Lock()
	s.onClose = func() { r.remove(key.Name, s) }
	s.mu.Unlock()

	r.mu.Lock()
	r.stores[key.Name] = s
	r.mu.Unlock()
	return s, nil
}

// Lookup returns the registered store for name if it holds values of
// type T.
func Lookup[T any](r *Registry, name string) (*Store[T], bool) {
	inst, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	s, ok := inst.(*Store[T])
	return s, ok
}

// Get returns the registered store for name.
func (r *Registry) Get(name string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.stores[name]
	if !ok || inst == nil {
		return nil, false
	}
	return inst, true
}

// Names returns the registered key names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.stores))
	for name, inst := range r.stores {
		if inst != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the descriptors of every registered store, sorted
// by name.
func (r *Registry) Descriptors() []Descriptor {
	insts := r.instances()
	out := make([]Descriptor, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.Descriptor())
	}
	return out
}

// WaitSynced blocks until every registered store is synced.
func (r *Registry) WaitSynced(ctx context.Context) error {
	for _, inst := range r.instances() {
		if err := inst.WaitSynced(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every registered store.
func (r *Registry) Flush(ctx context.Context) error {
	for _, inst := range r.instances() {
		if err := inst.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every registered store.
func (r *Registry) Close() error {
	var errs []error
	for _, inst := range r.instances() {
		if err := inst.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

func (r *Registry) instances() []Instance {
	names := r.Names()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Instance, 0, len(names))
	for _, name := range names {
		if inst := r.stores[name]; inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

func (r *Registry) remove(name string, inst Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stores[name] == inst {
		delete(r.stores, name)
	}
}
