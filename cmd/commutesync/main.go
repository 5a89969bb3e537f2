package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/uprent-dev/commutesync/internal/config"
	"github.com/uprent-dev/commutesync/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ┌─┐┌─┐┌┬┐┌┬┐┬ ┬┌┬┐┌─┐┌─┐┬ ┬┌┐┌┌─┐
  │  │ │││││││││ │ │ ├┤ └─┐└┬┘││││
  └─┘└─┘┴ ┴┴ ┴└─┘ ┴ └─┘└─┘ ┴ ┘└┘└─┘
`

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "commutesync",
		Short: "Synchronized commute addresses and thresholds",
		Long: `commutesync keeps saved commute addresses and travel-time
thresholds in sync between an extension host and any number of pages.

The serve command runs the extension host: the authoritative storage
area, the websocket storage bridge, the fetch proxy and the durations
service. The get, set and watch commands connect as a page.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to "+config.ConfigFileName+" (default: search upwards from the working directory)")

	loadConfig := func() (*config.Config, error) {
		var (
			cfg *config.Config
			err error
		)
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.LoadFromWorkingDir()
		}
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	rootCmd.AddCommand(
		serveCmd(loadConfig),
		getCmd(loadConfig),
		setCmd(loadConfig),
		watchCmd(loadConfig),
		durationsCmd(loadConfig),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var se *errors.SyncError
		if stderrors.As(err, &se) {
			fmt.Fprintln(os.Stderr, se.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// newLogger builds the process logger from the log settings.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(h)
	if cfg.Name != "" {
		logger = logger.With("deployment", cfg.Name)
	}
	return logger
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
