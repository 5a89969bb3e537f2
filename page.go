package commutesync

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/durations"
	"github.com/uprent-dev/commutesync/pkg/fetchproxy"
	"github.com/uprent-dev/commutesync/pkg/messenger"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

// Page is a website page process.
type Page struct {
	*Stores

	// Cache is the page-local cache.
	Cache area.Area

	// Port reaches the storage bridge.
	Port messenger.Port

	sender messenger.Sender
	cfg    Config
	logger *slog.Logger
}

// NewPage starts the page-side stores. sender reaches the extension
// runtime and may be nil when the page has none.
func NewPage(cache area.Area, port messenger.Port, sender messenger.Sender, cfg Config) (*Page, error) {
	logger := cfg.logger().With("process", "page")
	stores, err := openStores(cfg, syncstore.Page(cache, port), logger)
	if err != nil {
		return nil, err
	}
	return &Page{
		Stores: stores,
		Cache:  cache,
		Port:   port,
		sender: sender,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// HTTPClient returns a client whose requests to local-only hosts are
// tunneled through the extension. Without a sender it is a plain client.
func (p *Page) HTTPClient() *http.Client {
	if p.sender == nil {
		return &http.Client{}
	}
	opts := []fetchproxy.TransportOption{fetchproxy.WithTransportLogger(p.logger)}
	if len(p.cfg.ProxyHosts) > 0 {
		opts = append(opts, fetchproxy.WithHosts(p.cfg.ProxyHosts...))
	}
	return &http.Client{Transport: fetchproxy.NewTransport(p.sender, opts...)}
}

// Durations asks the extension for the durations of the saved
// addresses.
func (p *Page) Durations(ctx context.Context) durations.Result {
	if p.sender == nil {
		return durations.Result{Error: "no extension runtime"}
	}
	return durations.FetchViaRuntime(ctx, p.sender)
}

// Close closes the page stores.
func (p *Page) Close() error {
	return p.Registry.Close()
}
