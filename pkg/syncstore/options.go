package syncstore

import (
	"log/slog"
	"time"

	"github.com/uprent-dev/commutesync/internal/clock"
	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/messenger"
)

// DefaultReconcileTimeout is the reconciliation deadline.
const DefaultReconcileTimeout = 1000 * time.Millisecond

// Option configures a Store.
type Option func(*options)

type options struct {
	context Context
	local   area.Area
	cache   area.Area
	port    messenger.Port
	timeout time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics
}

func defaultOptions() options {
	return options{
		timeout: DefaultReconcileTimeout,
		clock:   clock.Real{},
		logger:  slog.Default(),
	}
}

// Extension runs the store in the extension context against the
// authoritative area.
func Extension(local area.Area) Option {
	return func(o *options) {
		o.context = ContextExtension
		o.local = local
	}
}

// Page runs the store in a page context with a page-local cache and a
// port towards the storage bridge.
func Page(cache area.Area, port messenger.Port) Option {
	return func(o *options) {
		o.context = ContextPage
		o.cache = cache
		o.port = port
	}
}

// WithReconcileTimeout sets the reconciliation deadline.
func WithReconcileTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock sets the clock used for the reconciliation deadline.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records store activity in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
