package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Message is the envelope exchanged between contexts.
type Message struct {
	// Type is the topic, e.g. "UPRENT_GET_ADDRESSES".
	Type string `json:"type"`

	// Payload is the JSON-encoded body. Absent and "null" mean the same.
	Payload json.RawMessage `json:"payload,omitempty"`

	// ID identifies a request expecting a reply.
	ID string `json:"id,omitempty"`

	// ReplyTo is set on replies to the ID of the request.
	ReplyTo string `json:"replyTo,omitempty"`

	// Error is set on replies whose handler failed.
	Error string `json:"error,omitempty"`
}

// NewMessage builds a message with payload encoded as JSON. A nil
// payload is encoded as null.
func NewMessage(typ string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Payload: data}, nil
}

// IsNull reports whether the payload is absent or JSON null.
func (m Message) IsNull() bool {
	p := bytes.TrimSpace(m.Payload)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Port is a one-way message channel.
type Port interface {
	// Post sends msg. It returns once the message is handed to the
	// transport; delivery is not confirmed.
	Post(ctx context.Context, msg Message) error

	// Listen registers fn for every message arriving on the port and
	// returns a function that unregisters it.
	Listen(fn func(Message)) (cancel func())
}

// Sender is a request/response channel.
type Sender interface {
	Send(ctx context.Context, msg Message) (Message, error)
}

// listeners is an ordered set of message callbacks.
type listeners struct {
	mu     sync.Mutex
	nextID uint64
	fns    map[uint64]func(Message)
}

func (l *listeners) add(fn func(Message)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[uint64]func(Message))
	}
	l.nextID++
	id := l.nextID
	l.fns[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.fns, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) snapshot() []func(Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]uint64, 0, len(l.fns))
	for id := range l.fns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(Message), len(ids))
	for i, id := range ids {
		fns[i] = l.fns[id]
	}
	return fns
}

func (l *listeners) dispatch(msg Message) {
	for _, fn := range l.snapshot() {
		fn(msg)
	}
}

func (l *listeners) clear() {
	l.mu.Lock()
	l.fns = nil
	l.mu.Unlock()
}
