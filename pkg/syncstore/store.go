package syncstore

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uprent-dev/commutesync/internal/clock"
	"github.com/uprent-dev/commutesync/internal/errors"
	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/messenger"
)

// Store is one context's instance of a tracked value.
type Store[T any] struct {
	key     TrackedKey[T]
	desc    Descriptor
	kind    Context
	local   area.Area
	cache   area.Area
	port    messenger.Port
	clock   clock.Clock
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	value   T
	encoded []byte
	state   State
	synced  bool
	pending int
	closed  bool
	subs    map[uint64]func(Change[T])
	order   []uint64
	nextSub uint64
	timer   clock.Timer
	reqID   string

	// cacheMu orders cache events against the read-back that follows
	// each cache write.
	cacheMu sync.Mutex

	syncedCh chan struct{}
	stops    []func()
	queue    *writer
	onClose  func()
}

// New creates and starts an unregistered store for key. Exactly one of
// Extension or Page must be given.
func New[T any](key TrackedKey[T], opts ...Option) (*Store[T], error) {
	if err := key.validate(); err != nil {
		return nil, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	switch o.context {
	case ContextExtension:
		if o.local == nil {
			return nil, errors.New("S071").WithDetail("extension store needs an area")
		}
	case ContextPage:
		if o.cache == nil || o.port == nil {
			return nil, errors.New("S071").WithDetail("page store needs a cache and a port")
		}
	default:
		return nil, errors.New("S071").
			WithDetail("no execution context for " + key.Name).
			WithSuggestion("Pass syncstore.Extension or syncstore.Page")
	}

	s := &Store[T]{
		key:      key,
		desc:     key.Descriptor(),
		kind:     o.context,
		local:    o.local,
		cache:    o.cache,
		port:     o.port,
		clock:    o.clock,
		timeout:  o.timeout,
		logger:   o.logger.With("key", key.Name, "context", o.context.String()),
		metrics:  o.metrics,
		state:    StateLoading,
		subs:     make(map[uint64]func(Change[T])),
		syncedCh: make(chan struct{}),
	}

	def, encoded, err := s.copyDefault()
	if err != nil {
		return nil, errors.New("S071").WithDetail("default value is not serializable").Wrap(err)
	}
	s.value, s.encoded = def, encoded

	if s.kind == ContextPage {
		s.loadCache()
	}

	s.queue = newWriter(s.persist)
	s.start()
	return s, nil
}

// copyDefault returns a private copy of the default value so callers
// mutating a returned slice never alter the key's default.
func (s *Store[T]) copyDefault() (T, []byte, error) {
	var v T
	data, err := json.Marshal(s.key.Default)
	if err != nil {
		return v, nil, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, nil, err
	}
	return v, data, nil
}

func (s *Store[T]) loadCache() {
	data, err := s.cache.Get(context.Background(), s.key.Name)
	if err != nil {
		s.logger.Warn("page cache read failed", "error", err)
		return
	}
	if data == nil {
		return
	}
	v, encoded, err := decode[T](data)
	if err != nil {
		s.metrics.decodeError(s.key.Name)
		s.logger.Warn("discarding malformed cached value", "error", err)
		return
	}
	s.value, s.encoded = v, encoded
}

func (s *Store[T]) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.kind == ContextPage {
		s.reqID = uuid.NewString()
	}

	// Subscribe to change sources before asking for the current value so
	// nothing written in between is missed.
	switch s.kind {
	case ContextExtension:
		s.stops = append(s.stops, s.local.Watch(s.onAreaChange))
	case ContextPage:
		s.stops = append(s.stops,
			s.port.Listen(s.onMessage),
			s.cache.Watch(s.onCacheChange),
		)
	}

	s.state = StateReconciling
	s.timer = s.clock.AfterFunc(s.timeout, s.onReconcileTimeout)

	switch s.kind {
	case ContextExtension:
		go s.readAuthoritative()
	case ContextPage:
		msg := messenger.Message{Type: s.desc.GetTopic, ID: s.reqID}
		go func() {
			if err := s.port.Post(context.Background(), msg); err != nil {
				s.logger.Warn("reconcile request failed", "error", err)
			}
		}()
	}
}

func (s *Store[T]) readAuthoritative() {
	data, err := s.local.Get(context.Background(), s.key.Name)
	if err != nil {
		s.metrics.reconciled(s.key.Name, "error")
		s.logger.Warn("reading authoritative value failed", "error", err)
		return
	}
	s.reconcile(data, "area")
}

// reconcile applies an authoritative reply. A null reply keeps the
// current value: the authority holds nothing yet.
func (s *Store[T]) reconcile(data []byte, source string) {
	if !isNull(data) {
		s.applyExternal(data, source, false)
	}
	if !s.markSynced("reply") {
		s.metrics.reconciled(s.key.Name, "late")
	}
}

func (s *Store[T]) onReconcileTimeout() {
	if s.markSynced("timeout") {
		s.logger.Info("no authoritative reply before deadline, continuing with local value",
			"timeout", s.timeout)
	}
}

// markSynced flips the store to synced. It reports whether this call
// did it.
func (s *Store[T]) markSynced(outcome string) bool {
	s.mu.Lock()
	if s.synced || s.closed {
		s.mu.Unlock()
		return false
	}
	s.synced = true
	s.state = StateSynced
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.syncedCh)
	s.mu.Unlock()

	s.metrics.reconciled(s.key.Name, outcome)
	s.metrics.syncedAdd(s.kind, 1)
	s.logger.Debug("store synced", "outcome", outcome)
	return true
}

func (s *Store[T]) onAreaChange(c area.Change) {
	if c.Key != s.key.Name {
		return
	}
	if c.Removed() {
		s.resetDefault("area")
		return
	}
	s.applyExternal(c.NewValue, "area", true)
}

func (s *Store[T]) onCacheChange(c area.Change) {
	// Removals in the page cache are not propagated.
	if c.Key != s.key.Name || c.Removed() {
		return
	}
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.applyExternal(c.NewValue, "cache", true)
}

// catchUpCache re-reads the page cache after our write to it. Another
// tab may have written after us while our write was still pending, and
// its storage event was skipped then; the cache now holds the latest
// value of every tab.
func (s *Store[T]) catchUpCache(ctx context.Context, written []byte) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	data, err := s.cache.Get(ctx, s.key.Name)
	if err != nil {
		s.logger.Warn("page cache read failed", "error", err)
		return
	}
	if data == nil || bytes.Equal(data, written) {
		return
	}
	s.applyExternal(data, "cache", true)
}

func (s *Store[T]) onMessage(msg messenger.Message) {
	if msg.Type != s.desc.UpdatedTopic {
		return
	}
	if s.reqID != "" && msg.ReplyTo == s.reqID {
		s.reconcile(msg.Payload, "bridge")
		return
	}
	if msg.IsNull() {
		s.resetDefault("bridge")
	} else {
		s.applyExternal(msg.Payload, "bridge", true)
	}
	// Any broadcast proves the extension is answering.
	s.markSynced("reply")
}

func (s *Store[T]) resetDefault(source string) {
	_, encoded, err := s.copyDefault()
	if err != nil {
		return
	}
	s.applyExternal(encoded, source, true)
}

// applyExternal installs a value received from another context and
// notifies subscribers with OriginExternal. It never persists.
func (s *Store[T]) applyExternal(data []byte, source string, skipWhilePending bool) {
	v, encoded, err := decode[T](data)
	if err != nil {
		s.metrics.decodeError(s.key.Name)
		s.logger.Warn("discarding malformed value", "source", source, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if skipWhilePending && s.pending > 0 {
		s.mu.Unlock()
		s.metrics.stale(s.key.Name)
		s.logger.Debug("skipping external change superseded by queued write", "source", source)
		return
	}
	if bytes.Equal(encoded, s.encoded) {
		s.mu.Unlock()
		s.metrics.duplicate(s.key.Name)
		return
	}
	s.value, s.encoded = v, encoded
	subs := s.subscribers()
	s.mu.Unlock()

	s.metrics.applied(s.key.Name, source)
	notify(subs, Change[T]{Key: s.key.Name, Value: v, Origin: OriginExternal})
}

// Get returns the current value. Callers must not mutate it.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Set replaces the value, notifies subscribers synchronously and queues
// persistence. Persistence failures are logged, never returned.
func (s *Store[T]) Set(v T) {
	encoded, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("value is not serializable", "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("set on closed store ignored")
		return
	}
	s.value, s.encoded = v, encoded
	s.pending++
	synced := s.synced
	subs := s.subscribers()
	s.mu.Unlock()

	if !s.queue.push(writeJob{encoded: encoded, synced: synced}) {
		s.donePending()
	}
	notify(subs, Change[T]{Key: s.key.Name, Value: v, Origin: OriginLocal})
}

// Update sets the value returned by fn applied to the current value.
func (s *Store[T]) Update(fn func(T) T) {
	s.Set(fn(s.Get()))
}

// Subscribe calls fn with the current value (OriginReplay) and then on
// every change, until the returned function is called.
func (s *Store[T]) Subscribe(fn func(Change[T])) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.order = append(s.order, id)
	v := s.value
	s.mu.Unlock()

	fn(Change[T]{Key: s.key.Name, Value: v, Origin: OriginReplay})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			for i, o := range s.order {
				if o == id {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		})
	}
}

// subscribers returns a snapshot in registration order. Caller holds mu.
func (s *Store[T]) subscribers() []func(Change[T]) {
	out := make([]func(Change[T]), 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.subs[id])
	}
	return out
}

func notify[T any](subs []func(Change[T]), c Change[T]) {
	for _, fn := range subs {
		fn(c)
	}
}

// persist runs on the writer goroutine. The pending count is released
// once the write has landed in the page cache, before it is handed to
// the authority's transport: events arriving later may follow our write
// and must be applied.
func (s *Store[T]) persist(job writeJob) {
	released := false
	release := func() {
		if !released {
			released = true
			s.donePending()
		}
	}
	defer release()
	ctx := context.Background()

	switch s.kind {
	case ContextExtension:
		if !job.synced {
			s.metrics.suppress(s.key.Name)
			s.logger.Debug("holding back write before sync")
			return
		}
		err := s.local.Set(ctx, s.key.Name, job.encoded)
		s.metrics.wrote(s.key.Name, "local", err)
		if err != nil {
			s.logger.Warn("persisting value failed", "error", err)
		}

	case ContextPage:
		err := s.cache.Set(ctx, s.key.Name, job.encoded)
		s.metrics.wrote(s.key.Name, "cache", err)
		release()
		if err != nil {
			s.logger.Warn("page cache write failed", "error", err)
		} else {
			s.catchUpCache(ctx, job.encoded)
		}
		if !job.synced {
			s.metrics.suppress(s.key.Name)
			s.logger.Debug("holding back bridge write before sync")
			return
		}
		msg := messenger.Message{Type: s.desc.SetTopic, Payload: job.encoded}
		err = s.port.Post(ctx, msg)
		s.metrics.wrote(s.key.Name, "bridge", err)
		if err != nil {
			s.logger.Warn("posting value to bridge failed", "error", err)
		}
	}
}

func (s *Store[T]) donePending() {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.mu.Unlock()
}

// Key returns the tracked key.
func (s *Store[T]) Key() TrackedKey[T] {
	return s.key
}

// Name returns the persistence key.
func (s *Store[T]) Name() string {
	return s.key.Name
}

// Descriptor returns the key's name and topics.
func (s *Store[T]) Descriptor() Descriptor {
	return s.desc
}

// Context returns the execution context the store runs in.
func (s *Store[T]) Context() Context {
	return s.kind
}

// Synced reports whether reconciliation has finished.
func (s *Store[T]) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

// State returns the reconciliation state.
func (s *Store[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WaitSynced blocks until the store is synced or ctx is done.
func (s *Store[T]) WaitSynced(ctx context.Context) error {
	select {
	case <-s.syncedCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every write queued before the call has been
// handed to its target.
func (s *Store[T]) Flush(ctx context.Context) error {
	return s.queue.flush(ctx)
}

// Close stops listening, cancels the deadline and drains queued writes.
// Close is idempotent.
func (s *Store[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	stops := s.stops
	s.stops = nil
	synced := s.synced
	onClose := s.onClose
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	s.queue.close()
	if synced {
		s.metrics.syncedAdd(s.kind, -1)
	}
	if onClose != nil {
		onClose()
	}
	return nil
}

func decode[T any](data []byte) (T, []byte, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, nil, errors.New("S060").Wrap(err)
	}
	// Re-encode so formatting differences never defeat duplicate detection.
	encoded, err := json.Marshal(v)
	if err != nil {
		return v, nil, errors.New("S060").Wrap(err)
	}
	return v, encoded, nil
}

func isNull(data []byte) bool {
	p := bytes.TrimSpace(data)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}
