package bridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/uprent-dev/commutesync/pkg/messenger"
)

// outbox posts messages to a port in order from its own goroutine, so a
// slow port never holds up the area writer that triggered the message.
type outbox struct {
	port   messenger.Port
	logger *slog.Logger

	mu     sync.Mutex
	queue  []outItem
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

type outItem struct {
	msg     messenger.Message
	barrier chan struct{}
}

func newOutbox(port messenger.Port, logger *slog.Logger) *outbox {
	o := &outbox{
		port:   port,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go o.loop()
	return o
}

// post queues msg. It reports false once the outbox is closed.
func (o *outbox) post(msg messenger.Message) bool {
	return o.enqueue(outItem{msg: msg})
}

// flush waits until every message queued before the call was posted.
func (o *outbox) flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !o.enqueue(outItem{barrier: barrier}) {
		return nil
	}
	select {
	case <-barrier:
		return nil
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close drops queued messages and stops the loop. A post already in
// progress is not waited for.
func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.queue = nil
	close(o.done)
}

func (o *outbox) enqueue(item outItem) bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.queue = append(o.queue, item)
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return true
}

func (o *outbox) loop() {
	for {
		select {
		case <-o.wake:
		case <-o.done:
			return
		}

		for {
			o.mu.Lock()
			if o.closed || len(o.queue) == 0 {
				o.mu.Unlock()
				break
			}
			item := o.queue[0]
			o.queue[0] = outItem{}
			o.queue = o.queue[1:]
			o.mu.Unlock()

			if item.barrier != nil {
				close(item.barrier)
				continue
			}
			if err := o.port.Post(context.Background(), item.msg); err != nil {
				o.logger.Warn("bridge post failed", "type", item.msg.Type, "error", err)
			}
		}
	}
}
