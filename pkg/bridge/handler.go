package bridge

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/messenger"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

// Handler accepts websocket connections from page processes and runs a
// Bridge per connection against one shared authoritative area. When a
// runtime is configured, requests on the same connection (FETCH_PROXY)
// are answered by it.
type Handler struct {
	store   area.Area
	keys    []syncstore.Descriptor
	runtime *messenger.Runtime
	origins []string
	logger  *slog.Logger

	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*messenger.Conn
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithRuntime answers runtime requests arriving on bridge connections.
func WithRuntime(rt *messenger.Runtime) HandlerOption {
	return func(h *Handler) {
		h.runtime = rt
	}
}

// WithAllowedOrigins restricts cross-origin connections to origins.
// "*" allows any origin. Without it only same-origin requests pass.
func WithAllowedOrigins(origins []string) HandlerOption {
	return func(h *Handler) {
		h.origins = origins
	}
}

// NewHandler creates a websocket bridge handler.
func NewHandler(store area.Area, keys []syncstore.Descriptor, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:  store,
		keys:   keys,
		logger: slog.Default(),
		conns:  make(map[string]*messenger.Conn),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// ServeHTTP upgrades the request and relays until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	logger := h.logger.With("conn", id, "remote", r.RemoteAddr)

	conn, err := messenger.Accept(w, r, &h.upgrader, messenger.WithConnLogger(logger))
	if err != nil {
		logger.Warn("bridge upgrade failed", "error", err)
		return
	}

	b := New(conn, h.store, h.keys, WithLogger(logger))
	b.Start()
	stopServe := func() {}
	if h.runtime != nil {
		stopServe = messenger.Serve(conn, h.runtime, logger)
	}

	h.track(id, conn)
	logger.Info("page connected")

	<-conn.Done()

	stopServe()
	b.Close()
	h.untrack(id)
	logger.Info("page disconnected")
}

// Connections returns the number of open page connections.
func (h *Handler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close closes every open connection.
func (h *Handler) Close() error {
	h.mu.Lock()
	conns := make([]*messenger.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return nil
}

func (h *Handler) track(id string, c *messenger.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = c
}

func (h *Handler) untrack(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return r.Host != "" && u.Host == r.Host
}
