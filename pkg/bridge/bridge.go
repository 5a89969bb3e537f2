// Package bridge relays tracked values between a page-side messenger.Port
// and the authoritative extension area.
//
// The bridge never decodes values. It answers GET requests from the
// area, applies SET requests to it, and announces every area change of a
// tracked key back over the port. New tracked keys need only a new
// syncstore.Descriptor.
package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/messenger"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

var nullPayload = []byte("null")

type route struct {
	desc syncstore.Descriptor
	set  bool
}

// Bridge is the content-script relay for one page.
type Bridge struct {
	port   messenger.Port
	store  area.Area
	logger *slog.Logger

	routes map[string]route
	byName map[string]syncstore.Descriptor

	// out serialises every post to the port off the caller's goroutine.
	out *outbox

	mu      sync.Mutex
	started bool
	closed  bool
	stops   []func()
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// New creates a bridge between port and the authoritative store for
// the given keys. Call Start to begin relaying.
func New(port messenger.Port, store area.Area, keys []syncstore.Descriptor, opts ...Option) *Bridge {
	b := &Bridge{
		port:   port,
		store:  store,
		logger: slog.Default(),
		routes: make(map[string]route, len(keys)*2),
		byName: make(map[string]syncstore.Descriptor, len(keys)),
	}
	for _, opt := range opts {
		opt(b)
	}
	for _, d := range keys {
		b.routes[d.GetTopic] = route{desc: d}
		b.routes[d.SetTopic] = route{desc: d, set: true}
		b.byName[d.Name] = d
	}
	return b
}

// Start subscribes to the port and to area changes. Calling Start more
// than once has no effect.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	b.out = newOutbox(b.port, b.logger)
	b.stops = append(b.stops,
		b.store.Watch(b.onAreaChange),
		b.port.Listen(b.onMessage),
	)
	b.logger.Debug("bridge started", "keys", len(b.byName))
}

// Close stops relaying. The port and the area stay open.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	stops := b.stops
	b.stops = nil
	out := b.out
	b.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	if out != nil {
		out.close()
	}
	return nil
}

// Flush waits until every reply and broadcast queued so far has been
// handed to the port.
func (b *Bridge) Flush(ctx context.Context) error {
	b.mu.Lock()
	out := b.out
	b.mu.Unlock()
	if out == nil {
		return nil
	}
	return out.flush(ctx)
}

// Keys returns the descriptors the bridge relays.
func (b *Bridge) Keys() []syncstore.Descriptor {
	out := make([]syncstore.Descriptor, 0, len(b.byName))
	for _, d := range b.byName {
		out = append(out, d)
	}
	return out
}

func (b *Bridge) onMessage(msg messenger.Message) {
	r, ok := b.routes[msg.Type]
	if !ok {
		return
	}
	ctx := context.Background()
	if r.set {
		b.handleSet(ctx, r.desc, msg)
		return
	}
	b.handleGet(ctx, r.desc, msg)
}

func (b *Bridge) handleGet(ctx context.Context, d syncstore.Descriptor, msg messenger.Message) {
	data, err := b.store.Get(ctx, d.Name)
	if err != nil {
		// No reply: the page falls back on its reconciliation deadline.
		b.logger.Warn("bridge read failed", "key", d.Name, "error", err)
		return
	}
	if data == nil {
		data = nullPayload
	}
	// Replies share the broadcast queue so a reply never overtakes an
	// older change announcement.
	b.out.post(messenger.Message{Type: d.UpdatedTopic, Payload: data, ReplyTo: msg.ID})
}

func (b *Bridge) handleSet(ctx context.Context, d syncstore.Descriptor, msg messenger.Message) {
	var err error
	if msg.IsNull() {
		err = b.store.Remove(ctx, d.Name)
	} else {
		err = b.store.Set(ctx, d.Name, msg.Payload)
	}
	if err != nil {
		b.logger.Warn("bridge write failed", "key", d.Name, "error", err)
	}
}

func (b *Bridge) onAreaChange(c area.Change) {
	d, ok := b.byName[c.Key]
	if !ok {
		return
	}
	payload := c.NewValue
	if c.Removed() {
		payload = nullPayload
	}
	b.out.post(messenger.Message{Type: d.UpdatedTopic, Payload: payload})
}
