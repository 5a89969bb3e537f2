package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/uprent-dev/commutesync"
	"github.com/uprent-dev/commutesync/internal/config"
	"github.com/uprent-dev/commutesync/internal/errors"
	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/commute"
	"github.com/uprent-dev/commutesync/pkg/messenger"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

const dialTimeout = 5 * time.Second

// pageSession is a page connected to a running extension host.
type pageSession struct {
	*commutesync.Page
	conn  *messenger.Conn
	cache area.Area
}

// connectPage dials the host and waits for the page stores to sync.
// cachePath selects a SQLite page cache; empty keeps it in memory.
func connectPage(ctx context.Context, cfg *config.Config, cachePath string) (*pageSession, error) {
	logger := newLogger(cfg)

	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, err := messenger.Dial(dctx, cfg.WebSocketURL(), messenger.WithConnLogger(logger))
	if err != nil {
		return nil, err
	}

	var cache area.Area = area.NewMemory()
	if cachePath != "" {
		cache, err = area.OpenSQLite(cachePath)
		if err != nil {
			conn.Close()
			return nil, err
		}
	}

	page, err := commutesync.NewPage(cache, conn, conn, commutesync.FromFileConfig(cfg, logger))
	if err != nil {
		cache.Close()
		conn.Close()
		return nil, err
	}
	s := &pageSession{Page: page, conn: conn, cache: cache}

	wctx, cancel := context.WithTimeout(ctx, cfg.ReconcileTimeout()+dialTimeout)
	defer cancel()
	if err := page.Registry.WaitSynced(wctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes pending writes and disconnects.
func (s *pageSession) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	err := s.Registry.Flush(ctx)
	s.Page.Close()
	s.conn.Close()
	s.cache.Close()
	return err
}

// instance resolves a key argument ("addresses", "thresholds" or a full
// store name).
func (s *pageSession) instance(arg string) (syncstore.Instance, error) {
	switch strings.ToLower(arg) {
	case "addresses", commute.Addresses.Name:
		return s.Addresses, nil
	case "thresholds", commute.Thresholds.Name:
		return s.Thresholds, nil
	}
	return nil, errors.New("S090").WithDetail("got " + arg)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func getCmd(load func() (*config.Config, error)) *cobra.Command {
	var cachePath string

	cmd := &cobra.Command{
		Use:   "get <addresses|thresholds>",
		Short: "Print the synchronized value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			s, err := connectPage(cmd.Context(), cfg, cachePath)
			if err != nil {
				return err
			}
			defer s.Close()

			inst, err := s.instance(args[0])
			if err != nil {
				return err
			}
			switch inst.Name() {
			case commute.Addresses.Name:
				return printJSON(s.Addresses.Get())
			default:
				return printJSON(s.Thresholds.Get())
			}
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "SQLite file used as the page cache")
	return cmd
}

func setCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		cachePath string
		add       []string
		remove    []string
		mode      string
		minutes   int
	)

	cmd := &cobra.Command{
		Use:   "set <addresses|thresholds> [json]",
		Short: "Write a synchronized value",
		Long: `Write a synchronized value through the storage bridge.

Examples:
  commutesync set addresses '["Main St", "Oak Ave"]'
  commutesync set addresses --add "Elm St" --remove "Main St"
  commutesync set thresholds '{"walking":30,"biking":20,"transit":45,"driving":25}'
  commutesync set thresholds --mode=walking --minutes=25`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			s, err := connectPage(cmd.Context(), cfg, cachePath)
			if err != nil {
				return err
			}

			inst, err := s.instance(args[0])
			if err != nil {
				s.Close()
				return err
			}
			var raw string
			if len(args) == 2 {
				raw = args[1]
			}

			switch inst.Name() {
			case commute.Addresses.Name:
				err = setAddresses(s.Addresses, raw, add, remove)
			default:
				err = setThresholds(s.Thresholds, raw, mode, minutes)
			}
			if err != nil {
				s.Close()
				return err
			}
			if err := s.Close(); err != nil {
				return err
			}
			success("%s updated", inst.Name())
			return nil
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "SQLite file used as the page cache")
	cmd.Flags().StringSliceVar(&add, "add", nil, "Address to add (repeatable)")
	cmd.Flags().StringSliceVar(&remove, "remove", nil, "Address to remove (repeatable)")
	cmd.Flags().StringVar(&mode, "mode", "", "Travel mode whose threshold to change")
	cmd.Flags().IntVar(&minutes, "minutes", 0, "New threshold in minutes, used with --mode")
	return cmd
}

func setAddresses(st *syncstore.Store[[]string], raw string, add, remove []string) error {
	if raw != "" {
		var v []string
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return errors.New("S091").Wrap(err)
		}
		if v == nil {
			v = []string{}
		}
		st.Set(v)
		return nil
	}
	if len(add) == 0 && len(remove) == 0 {
		return errors.New("S091").WithDetail("pass a JSON value, --add or --remove")
	}
	st.Update(func(cur []string) []string {
		for _, a := range add {
			cur = commute.AddAddress(cur, a)
		}
		for _, r := range remove {
			cur = commute.RemoveAddress(cur, r)
		}
		return cur
	})
	return nil
}

func setThresholds(st *syncstore.Store[commute.Durations], raw, mode string, minutes int) error {
	if raw != "" {
		var v commute.Durations
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return errors.New("S091").Wrap(err)
		}
		st.Set(v)
		return nil
	}
	if mode == "" {
		return errors.New("S091").WithDetail("pass a JSON value or --mode with --minutes")
	}
	next, err := st.Get().With(mode, minutes)
	if err != nil {
		return errors.New("S091").Wrap(err)
	}
	st.Set(next)
	return nil
}

func watchCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print every change to the synchronized keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := connectPage(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer s.Close()

			unsubAddrs := s.Addresses.Subscribe(func(c syncstore.Change[[]string]) {
				printChange(c.Key, c.Origin, c.Value)
			})
			defer unsubAddrs()
			unsubThresholds := s.Thresholds.Subscribe(func(c syncstore.Change[commute.Durations]) {
				printChange(c.Key, c.Origin, c.Value)
			})
			defer unsubThresholds()

			select {
			case <-ctx.Done():
			case <-s.conn.Done():
				warn("connection to host closed")
			}
			return nil
		},
	}
	return cmd
}

func printChange(key string, origin syncstore.Origin, v any) {
	data, _ := json.Marshal(v)
	fmt.Printf("%s  %-10s %-8s %s\n", time.Now().Format(time.TimeOnly), key, origin, data)
}

func durationsCmd(load func() (*config.Config, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "durations",
		Short: "Fetch commute durations for the saved addresses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s, err := connectPage(ctx, cfg, "")
			if err != nil {
				return err
			}
			defer s.Close()

			res := s.Durations(ctx)
			if !res.OK() {
				return fmt.Errorf("durations: %s", res.Error)
			}

			limits := s.Thresholds.Get()
			addrs := make([]string, 0, len(res.Data))
			for a := range res.Data {
				addrs = append(addrs, a)
			}
			sort.Strings(addrs)
			for _, a := range addrs {
				fmt.Println(a)
				d := res.Data[a]
				within := d.Within(limits)
				for _, m := range commute.Modes {
					minutes, _ := d.Get(m)
					mark := " "
					if within[m] {
						mark = "✓"
					}
					info("%s %-8s %3d min", mark, m, minutes)
				}
			}
			return nil
		},
	}
	return cmd
}
