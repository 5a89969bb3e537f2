package messenger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// Window is an in-process page message bus. Every listener receives
// every posted message, including the poster's own, asynchronously and
// in post order, from a single dispatch goroutine.
type Window struct {
	listeners listeners
	logger    *slog.Logger

	mu     sync.Mutex
	queue  []windowItem
	wake   chan struct{}
	closed bool
	done   chan struct{}
}

type windowItem struct {
	msg     Message
	barrier chan struct{}
}

// WindowOption configures a Window.
type WindowOption func(*Window)

// WithWindowLogger sets the logger used for dispatch diagnostics.
func WithWindowLogger(l *slog.Logger) WindowOption {
	return func(w *Window) {
		w.logger = l
	}
}

// NewWindow creates a message bus and starts its dispatch goroutine.
func NewWindow(opts ...WindowOption) *Window {
	w := &Window{
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.dispatchLoop()
	return w
}

// Post queues msg for delivery to every listener.
func (w *Window) Post(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return errors.New("S040").Wrap(err)
	}
	if !w.enqueue(windowItem{msg: msg}) {
		return errors.New("S041").WithDetail("window")
	}
	return nil
}

// Listen registers fn for every posted message.
func (w *Window) Listen(fn func(Message)) func() {
	return w.listeners.add(fn)
}

// Flush blocks until every message posted before the call has been
// delivered.
func (w *Window) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !w.enqueue(windowItem{barrier: barrier}) {
		return errors.New("S041").WithDetail("window")
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops dispatching. Queued messages are dropped.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.queue = nil
	close(w.done)
	w.listeners.clear()
	return nil
}

func (w *Window) enqueue(item windowItem) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, item)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
	return true
}

func (w *Window) dispatchLoop() {
	for {
		select {
		case <-w.wake:
		case <-w.done:
			return
		}

		for {
			w.mu.Lock()
			if w.closed || len(w.queue) == 0 {
				w.mu.Unlock()
				break
			}
			item := w.queue[0]
			w.queue = w.queue[1:]
			w.mu.Unlock()

			if item.barrier != nil {
				close(item.barrier)
				continue
			}
			w.deliver(item.msg)
		}
	}
}

func (w *Window) deliver(msg Message) {
	for _, fn := range w.listeners.snapshot() {
		w.call(fn, msg)
	}
}

func (w *Window) call(fn func(Message), msg Message) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("window listener panicked", "type", msg.Type, "panic", r)
		}
	}()
	fn(msg)
}
