package messenger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// HandlerFunc answers a request message.
type HandlerFunc func(ctx context.Context, msg Message) (Message, error)

// Runtime is an in-process request/response channel keyed by message
// type, the equivalent of the extension runtime messaging API.
type Runtime struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRuntime creates a Runtime with no handlers.
func NewRuntime() *Runtime {
	return &Runtime{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for messages of type typ, replacing any previous
// handler, and returns a function that unregisters it.
func (r *Runtime) Handle(typ string, h HandlerFunc) func() {
	r.mu.Lock()
	r.handlers[typ] = h
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.handlers, typ)
		r.mu.Unlock()
	}
}

func (r *Runtime) handler(typ string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Send delivers msg to its handler and waits for the reply or ctx.
func (r *Runtime) Send(ctx context.Context, msg Message) (Message, error) {
	h, ok := r.handler(msg.Type)
	if !ok {
		return Message{}, errors.New("S042").WithDetail(msg.Type)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	type result struct {
		reply Message
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("handler panicked: %v", p)}
			}
		}()
		reply, err := h(ctx, msg)
		ch <- result{reply: reply, err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return Message{}, errors.New("S040").WithDetail(msg.Type).Wrap(res.err)
		}
		res.reply.ReplyTo = msg.ID
		return res.reply, nil
	case <-ctx.Done():
		return Message{}, errors.New("S040").WithDetail(msg.Type).Wrap(ctx.Err())
	}
}

// Serve answers request messages (those carrying an ID) arriving on port
// whose type has a handler in r. Replies are posted back on the same
// port. It returns a function that stops serving.
func Serve(port Port, r *Runtime, logger *slog.Logger) func() {
	if logger == nil {
		logger = slog.Default()
	}
	return port.Listen(func(msg Message) {
		if msg.ID == "" || msg.ReplyTo != "" {
			return
		}
		if _, ok := r.handler(msg.Type); !ok {
			return
		}
		go func() {
			ctx := context.Background()
			reply, err := r.Send(ctx, msg)
			if err != nil {
				reply = Message{Type: msg.Type, ReplyTo: msg.ID, Error: err.Error()}
			}
			reply.Type = msg.Type
			reply.ReplyTo = msg.ID
			if err := port.Post(ctx, reply); err != nil {
				logger.Warn("runtime reply failed", "type", msg.Type, "error", err)
			}
		}()
	})
}
