package commutesync

import (
	"log/slog"

	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/bridge"
	"github.com/uprent-dev/commutesync/pkg/commute"
	"github.com/uprent-dev/commutesync/pkg/durations"
	"github.com/uprent-dev/commutesync/pkg/fetchproxy"
	"github.com/uprent-dev/commutesync/pkg/messenger"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

// Extension is the privileged process holding the authoritative area.
type Extension struct {
	*Stores

	// Area is the authoritative area.
	Area area.Area

	// Runtime answers requests from pages: FETCH_PROXY and, when a
	// durations service is configured, GET_COMMUTE_DURATIONS.
	Runtime *messenger.Runtime

	cfg    Config
	logger *slog.Logger
}

// NewExtension starts the extension-side stores against a.
func NewExtension(a area.Area, cfg Config) (*Extension, error) {
	logger := cfg.logger().With("process", "extension")
	stores, err := openStores(cfg, syncstore.Extension(a), logger)
	if err != nil {
		return nil, err
	}

	e := &Extension{
		Stores:  stores,
		Area:    a,
		Runtime: messenger.NewRuntime(),
		cfg:     cfg,
		logger:  logger,
	}
	fetchproxy.NewHandler(fetchproxy.WithHandlerLogger(logger)).Register(e.Runtime)
	if cfg.DurationsURL != "" {
		client := durations.NewClient(cfg.DurationsURL)
		e.Runtime.Handle(durations.MessageType, durations.RuntimeHandler(client, e.Addresses.Get))
	}
	return e, nil
}

// Descriptors returns the tracked keys relayed by bridges.
func (e *Extension) Descriptors() []syncstore.Descriptor {
	return commute.Descriptors(e.cfg.namespace())
}

// Attach starts a storage bridge between port and the authoritative area.
func (e *Extension) Attach(port messenger.Port) *bridge.Bridge {
	b := bridge.New(port, e.Area, e.Descriptors(), bridge.WithLogger(e.logger))
	b.Start()
	return b
}

// Handler returns the websocket endpoint for remote page processes.
func (e *Extension) Handler(opts ...bridge.HandlerOption) *bridge.Handler {
	base := []bridge.HandlerOption{
		bridge.WithHandlerLogger(e.logger),
		bridge.WithRuntime(e.Runtime),
	}
	return bridge.NewHandler(e.Area, e.Descriptors(), append(base, opts...)...)
}

// Close closes the extension stores. The area stays open.
func (e *Extension) Close() error {
	return e.Registry.Close()
}
