package syncstore

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/uprent-dev/commutesync/internal/errors"
	"github.com/uprent-dev/commutesync/pkg/area"
)

type limits struct {
	Walking int `json:"walking"`
	Biking  int `json:"biking"`
}

var limitsKey = Key("test-limits", "LIMITS", limits{Walking: 50, Biking: 40}).WithNamespace("T_")

func TestRegistry(t *testing.T) {
	mem := area.NewMemory()
	reg := NewRegistry()
	t.Cleanup(func() { reg.Close() })

	addrs, err := Open(reg, testKey, Extension(mem))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(reg, limitsKey, Extension(mem)); err != nil {
		t.Fatal(err)
	}

	t.Run("DuplicateRejected", func(t *testing.T) {
		_, err := Open(reg, testKey, Extension(mem))
		if got := errors.CodeOf(err); got != "S070" {
			t.Errorf("CodeOf(err) = %q, want S070", got)
		}
	})

	t.Run("InvalidKeyReleasesName", func(t *testing.T) {
		_, err := Open(reg, Key("broken", "", 0))
		if err == nil {
			t.Fatal("expected error")
		}
		if _, ok := reg.Get("broken"); ok {
			t.Error("failed open left a registration")
		}
	})

	t.Run("Lookup", func(t *testing.T) {
		got, ok := Lookup[[]string](reg, testKey.Name)
		if !ok || got != addrs {
			t.Errorf("Lookup = %v, %v", got, ok)
		}
		if _, ok := Lookup[int](reg, testKey.Name); ok {
			t.Error("Lookup with the wrong type succeeded")
		}
		if _, ok := Lookup[[]string](reg, "missing"); ok {
			t.Error("Lookup of a missing key succeeded")
		}
	})

	t.Run("Names", func(t *testing.T) {
		want := []string{"test-addresses", "test-limits"}
		if got := reg.Names(); !reflect.DeepEqual(got, want) {
			t.Errorf("Names() = %v, want %v", got, want)
		}
		descs := reg.Descriptors()
		if len(descs) != 2 || descs[1].SetTopic != "T_SET_LIMITS" {
			t.Errorf("Descriptors() = %+v", descs)
		}
	})

	t.Run("WaitSyncedAndFlush", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := reg.WaitSynced(ctx); err != nil {
			t.Fatal(err)
		}

		lim, _ := Lookup[limits](reg, limitsKey.Name)
		lim.Set(limits{Walking: 30, Biking: 20})
		if err := reg.Flush(ctx); err != nil {
			t.Fatal(err)
		}
		data, _ := mem.Get(ctx, limitsKey.Name)
		if string(data) != `{"walking":30,"biking":20}` {
			t.Errorf("stored = %s", data)
		}
	})

	t.Run("CloseUnregisters", func(t *testing.T) {
		if err := addrs.Close(); err != nil {
			t.Fatal(err)
		}
		if _, ok := reg.Get(testKey.Name); ok {
			t.Error("closed store still registered")
		}
		again, err := Open(reg, testKey, Extension(mem))
		if err != nil {
			t.Fatalf("reopen after close: %v", err)
		}
		if again == addrs {
			t.Error("reopen returned the closed store")
		}
	})
}

func TestDefaultIsCopied(t *testing.T) {
	key := Key("copy", "COPY", []string{"seed"})
	s, err := New(key, Extension(area.NewMemory()), WithClock(fakeClock()))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Get()[0] = "mutated"
	if key.Default[0] != "seed" {
		t.Error("store aliases the key default")
	}
}

func TestMetrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := NewMetrics(promReg, "test")

	clk := fakeClock()
	w := newWindow(t)
	s := newPage(t, area.NewMemory(), w, WithClock(clk), WithMetrics(m))

	s.Set([]string{"early"})
	flush(t, s)
	if got := testutil.ToFloat64(m.suppressed.WithLabelValues(testKey.Name)); got != 1 {
		t.Errorf("suppressed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.writes.WithLabelValues(testKey.Name, "cache")); got != 1 {
		t.Errorf("cache writes = %v, want 1", got)
	}

	clk.Advance(DefaultReconcileTimeout)
	if got := testutil.ToFloat64(m.reconciliations.WithLabelValues(testKey.Name, "timeout")); got != 1 {
		t.Errorf("timeout reconciliations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.syncedStores.WithLabelValues("page")); got != 1 {
		t.Errorf("synced stores = %v, want 1", got)
	}

	s.Close()
	if got := testutil.ToFloat64(m.syncedStores.WithLabelValues("page")); got != 0 {
		t.Errorf("synced stores after close = %v, want 0", got)
	}

	t.Run("NilSafe", func(t *testing.T) {
		var nilMetrics *Metrics
		nilMetrics.reconciled("k", "reply")
		nilMetrics.wrote("k", "local", nil)
		nilMetrics.syncedAdd(ContextPage, 1)
	})
}
