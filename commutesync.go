// Package commutesync wires the synchronized commute stores into the two
// kinds of process that share them.
//
// An Extension owns the authoritative area, its own store instances and
// the runtime that answers page requests. A Page owns a page-local cache,
// a port towards a storage bridge, and its store instances. Browser
// simulates several same-origin tabs talking to one extension in process.
//
// Usage:
//
//	ext, err := commutesync.NewExtension(area.NewMemory(), commutesync.Config{})
//	if err != nil {
//	    return err
//	}
//	defer ext.Close()
//
//	browser := commutesync.NewBrowser(ext)
//	tab, err := browser.OpenTab(commutesync.Config{})
//	if err != nil {
//	    return err
//	}
//	tab.Addresses.Set([]string{"Main St"})
package commutesync

import (
	"log/slog"
	"time"

	"github.com/uprent-dev/commutesync/internal/clock"
	"github.com/uprent-dev/commutesync/internal/config"
	"github.com/uprent-dev/commutesync/pkg/commute"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

// Config configures an Extension or a Page.
type Config struct {
	// Logger is the base logger. Default: slog.Default().
	Logger *slog.Logger

	// Metrics records store activity. Optional.
	Metrics *syncstore.Metrics

	// Clock drives reconciliation deadlines. Default: the system clock.
	Clock clock.Clock

	// ReconcileTimeout is the reconciliation deadline.
	// Default: syncstore.DefaultReconcileTimeout.
	ReconcileTimeout time.Duration

	// Namespace prefixes bridge topics. Default: commute.Namespace.
	Namespace string

	// DurationsURL is the base URL of the durations service the
	// extension fetches from. Empty disables GET_COMMUTE_DURATIONS.
	DurationsURL string

	// ProxyHosts are the hosts a page tunnels through the extension.
	// Default: fetchproxy.DefaultHosts.
	ProxyHosts []string
}

// FromFileConfig maps a loaded commutesync.json onto a Config.
func FromFileConfig(c *config.Config, logger *slog.Logger) Config {
	return Config{
		Logger:           logger,
		ReconcileTimeout: c.ReconcileTimeout(),
		Namespace:        c.Sync.Namespace,
		DurationsURL:     "http://" + c.Address(),
		ProxyHosts:       c.Proxy.Hosts,
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c Config) namespace() string {
	if c.Namespace == "" {
		return commute.Namespace
	}
	return c.Namespace
}

// storeOptions returns the options shared by every store of a process.
func (c Config) storeOptions(logger *slog.Logger) []syncstore.Option {
	opts := []syncstore.Option{
		syncstore.WithLogger(logger),
		syncstore.WithMetrics(c.Metrics),
	}
	if c.Clock != nil {
		opts = append(opts, syncstore.WithClock(c.Clock))
	}
	if c.ReconcileTimeout > 0 {
		opts = append(opts, syncstore.WithReconcileTimeout(c.ReconcileTimeout))
	}
	return opts
}

// Stores holds the commute stores of one process.
type Stores struct {
	Registry   *syncstore.Registry
	Addresses  *syncstore.Store[[]string]
	Thresholds *syncstore.Store[commute.Durations]
}

func openStores(cfg Config, ctxOpt syncstore.Option, logger *slog.Logger) (*Stores, error) {
	reg := syncstore.NewRegistry()
	opts := append(cfg.storeOptions(logger), ctxOpt)
	ns := cfg.namespace()

	addrs, err := syncstore.Open(reg, commute.Addresses.WithNamespace(ns), opts...)
	if err != nil {
		return nil, err
	}
	thresholds, err := syncstore.Open(reg, commute.Thresholds.WithNamespace(ns), opts...)
	if err != nil {
		reg.Close()
		return nil, err
	}
	return &Stores{Registry: reg, Addresses: addrs, Thresholds: thresholds}, nil
}
