package area

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/uprent-dev/commutesync/internal/config"
	"github.com/uprent-dev/commutesync/internal/errors"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("Memory", func(t *testing.T) {
		cfg := config.New()
		cfg.Storage.Driver = config.DriverMemory
		a, err := Open(ctx, cfg)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer a.Close()
		if _, ok := a.(*Memory); !ok {
			t.Errorf("Open returned %T, want *Memory", a)
		}
	})

	t.Run("SQLite", func(t *testing.T) {
		cfg := config.New()
		cfg.Storage.Path = filepath.Join(t.TempDir(), "sync.db")
		a, err := Open(ctx, cfg)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		defer a.Close()
		if _, ok := a.(*SQLite); !ok {
			t.Errorf("Open returned %T, want *SQLite", a)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		cfg := config.New()
		cfg.Storage.Driver = "etcd"
		if _, err := Open(ctx, cfg); errors.CodeOf(err) != "S023" {
			t.Errorf("Open(etcd) = %v, want S023", err)
		}
	})
}
