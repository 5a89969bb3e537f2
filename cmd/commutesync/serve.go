package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/uprent-dev/commutesync"
	"github.com/uprent-dev/commutesync/internal/config"
	"github.com/uprent-dev/commutesync/internal/telemetry"
	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/bridge"
	"github.com/uprent-dev/commutesync/pkg/durations"
	"github.com/uprent-dev/commutesync/pkg/middleware"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		port   int
		host   string
		driver string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the extension host",
		Long: `Run the extension host.

The host owns the authoritative storage area and serves:
  • the storage bridge websocket (default /ws)
  • the mock durations service (/durations)
  • Prometheus metrics (default /metrics, when enabled)

Examples:
  commutesync serve
  commutesync serve --port=8080
  commutesync serve --storage=memory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			if host != "" {
				cfg.Server.Host = host
			}
			if driver != "" {
				cfg.Storage.Driver = driver
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (default from "+config.ConfigFileName+")")
	cmd.Flags().StringVarP(&host, "host", "H", "", "Host to bind to (default from "+config.ConfigFileName+")")
	cmd.Flags().StringVar(&driver, "storage", "", "Storage driver: memory, sqlite or s3")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	store, err := area.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()

	ccfg := commutesync.FromFileConfig(cfg, logger)
	ccfg.Metrics = syncstore.NewMetrics(reg, cfg.Metrics.Namespace)
	ext, err := commutesync.NewExtension(store, ccfg)
	if err != nil {
		return err
	}
	defer ext.Close()

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	bridgeHandler := ext.Handler(bridge.WithAllowedOrigins(origins))
	defer bridgeHandler.Close()

	r := chi.NewRouter()
	r.Use(middleware.OpenTelemetry(middleware.WithTracerName("commutesync")))
	if cfg.Metrics.Enabled {
		mwOpts := []middleware.MetricsOption{
			middleware.WithRegistry(reg),
			middleware.WithNamespace(cfg.Metrics.Namespace),
		}
		if cfg.Name != "" {
			mwOpts = append(mwOpts, middleware.WithConstLabels(prometheus.Labels{"deployment": cfg.Name}))
		}
		r.Use(middleware.Prometheus(mwOpts...))
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	durations.NewService(durations.WithServiceLogger(logger)).Routes(r)
	r.Handle(cfg.Server.WebSocketPath, bridgeHandler)

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	printBanner()
	fmt.Println("  serve")
	fmt.Println()
	info("Storage:    %s", cfg.Storage.Driver)
	info("Bridge:     %s", cfg.WebSocketURL())
	info("Durations:  http://%s%s", cfg.Address(), durations.Path)
	if cfg.Metrics.Enabled {
		info("Metrics:    http://%s%s", cfg.Address(), cfg.Metrics.Path)
	}
	fmt.Println()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	success("Listening on %s", cfg.Address())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println()
	info("Shutting down...")
	bridgeHandler.Close()

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := ext.Registry.Flush(sctx); err != nil {
		warn("pending writes not flushed: %v", err)
	}
	return nil
}
