package messenger

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/uprent-dev/commutesync/internal/errors"
)

// DefaultWriteTimeout bounds a single websocket write when the caller's
// context has no deadline.
const DefaultWriteTimeout = 10 * time.Second

// Conn is a Port and Sender carried over a websocket connection, one
// JSON text frame per message. Incoming messages are delivered to
// listeners from a single read goroutine, so per-sender order holds.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu   sync.Mutex
	listeners listeners

	pendingMu sync.Mutex
	pending   map[string]chan Message

	closeOnce sync.Once
	done      chan struct{}
}

// ConnOption configures a Conn.
type ConnOption func(*Conn)

// WithConnLogger sets the logger for read loop diagnostics.
func WithConnLogger(l *slog.Logger) ConnOption {
	return func(c *Conn) {
		c.logger = l
	}
}

// NewConn wraps an established websocket and starts its read loop.
func NewConn(ws *websocket.Conn, opts ...ConnOption) *Conn {
	c := &Conn{
		ws:      ws,
		logger:  slog.Default(),
		pending: make(map[string]chan Message),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop()
	return c
}

// Dial connects to a websocket endpoint such as the one served by
// bridge.Handler.
func Dial(ctx context.Context, url string, opts ...ConnOption) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.New("S043").WithDetail(url).Wrap(err)
	}
	return NewConn(ws, opts...), nil
}

// Accept upgrades an HTTP request to a websocket Conn.
func Accept(w http.ResponseWriter, r *http.Request, upgrader *websocket.Upgrader, opts ...ConnOption) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, errors.New("S043").Wrap(err)
	}
	return NewConn(ws, opts...), nil
}

// Post writes msg as a single text frame.
func (c *Conn) Post(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return errors.New("S041").WithDetail("websocket")
	default:
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return errors.New("S040").Wrap(err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultWriteTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.New("S040").WithDetail(msg.Type).Wrap(err)
	}
	return nil
}

// Listen registers fn for every non-reply message read from the socket.
func (c *Conn) Listen(fn func(Message)) func() {
	return c.listeners.add(fn)
}

// Send posts msg with a fresh ID and waits for the matching reply.
func (c *Conn) Send(ctx context.Context, msg Message) (Message, error) {
	msg.ID = uuid.NewString()
	ch := make(chan Message, 1)

	c.pendingMu.Lock()
	c.pending[msg.ID] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, msg.ID)
		c.pendingMu.Unlock()
	}()

	if err := c.Post(ctx, msg); err != nil {
		return Message{}, err
	}

	select {
	case reply := <-ch:
		if reply.Error != "" {
			return Message{}, errors.New("S040").WithDetail(msg.Type + ": " + reply.Error)
		}
		return reply, nil
	case <-c.done:
		return Message{}, errors.New("S041").WithDetail("websocket")
	case <-ctx.Done():
		return Message{}, errors.New("S040").WithDetail(msg.Type).Wrap(ctx.Err())
	}
}

// Done is closed when the connection has terminated.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and tears down the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
		close(c.done)
	})
	return err
}

// readLoop reads frames until the connection closes. Replies are routed
// to their pending Send; everything else goes to listeners.
func (c *Conn) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.logger.Error("read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("message decode error", "error", err)
			continue
		}

		if msg.ReplyTo != "" {
			c.pendingMu.Lock()
			ch, ok := c.pending[msg.ReplyTo]
			c.pendingMu.Unlock()
			if ok {
				select {
				case ch <- msg:
				default:
				}
				continue
			}
		}

		c.listeners.dispatch(msg)
	}
}
