package commutesync

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/uprent-dev/commutesync/internal/clock"
	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/commute"
	"github.com/uprent-dev/commutesync/pkg/durations"
	"github.com/uprent-dev/commutesync/pkg/messenger"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func ctxT(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newExtension(t *testing.T, a area.Area, cfg Config) *Extension {
	t.Helper()
	ext, err := NewExtension(a, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ext.Close() })
	if err := ext.Registry.WaitSynced(ctxT(t)); err != nil {
		t.Fatal(err)
	}
	return ext
}

func openTab(t *testing.T, b *Browser, cfg Config) *Tab {
	t.Helper()
	tab, err := b.OpenTab(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tab.Close() })
	return tab
}

func stored(t *testing.T, a area.Area, key string) string {
	t.Helper()
	data, err := a.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func sameStrings(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

// The extension already holds addresses; a page starting with an empty
// cache adopts them and writes nothing back.
func TestScenarioExistingAddresses(t *testing.T) {
	mem := area.NewMemory()
	mem.Set(context.Background(), commute.Addresses.Name, []byte(`["Main St"]`))
	ext := newExtension(t, mem, Config{})

	b := NewBrowser(ext)
	b.Storage().Tab("seed").Set(context.Background(), commute.Addresses.Name, []byte(`[]`))

	tab := openTab(t, b, Config{})
	if err := tab.Registry.WaitSynced(ctxT(t)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return sameStrings(tab.Addresses.Get(), []string{"Main St"}) })

	if err := tab.Registry.Flush(ctxT(t)); err != nil {
		t.Fatal(err)
	}
	tab.Window.Flush(ctxT(t))
	if got := stored(t, mem, commute.Addresses.Name); got != `["Main St"]` {
		t.Errorf("extension store = %s, want untouched", got)
	}
	if got := stored(t, mem, commute.Thresholds.Name); got != "" {
		t.Errorf("thresholds were written: %s", got)
	}
}

// Without the extension the page times out and becomes its own authority.
func TestScenarioNoExtension(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	b := NewBrowser(nil)
	tab := openTab(t, b, Config{Clock: clk})

	if tab.Addresses.Synced() {
		t.Fatal("synced before deadline")
	}
	clk.Advance(999 * time.Millisecond)
	if tab.Addresses.Synced() {
		t.Fatal("synced before 1000ms")
	}
	clk.Advance(time.Millisecond)
	if !tab.Addresses.Synced() || !tab.Thresholds.Synced() {
		t.Fatal("not synced after deadline")
	}

	tab.Addresses.Set([]string{"Oak Ave"})
	if err := tab.Addresses.Flush(ctxT(t)); err != nil {
		t.Fatal(err)
	}
	if got := string(b.Storage().Snapshot(commute.Addresses.Name)); got != `["Oak Ave"]` {
		t.Errorf("page cache = %s", got)
	}
	if res := tab.Durations(ctxT(t)); res.OK() {
		t.Error("durations without an extension should fail")
	}
}

// An absent thresholds key reads as the documented default.
func TestScenarioDefaultThresholds(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	tab := openTab(t, NewBrowser(nil), Config{Clock: clk})

	want := commute.Durations{Walking: 50, Biking: 40, Transit: 60, Driving: 45}
	if got := tab.Thresholds.Get(); got != want {
		t.Errorf("Thresholds.Get() = %+v, want %+v", got, want)
	}
}

// Two tabs write different values at once; both converge on the value
// the extension ends up holding.
func TestScenarioConcurrentTabs(t *testing.T) {
	mem := area.NewMemory()
	ext := newExtension(t, mem, Config{})
	b := NewBrowser(ext)
	tabA := openTab(t, b, Config{})
	tabB := openTab(t, b, Config{})
	for _, tab := range []*Tab{tabA, tabB} {
		if err := tab.Registry.WaitSynced(ctxT(t)); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		tabA.Addresses.Set([]string{"From A"})
	}()
	go func() {
		defer wg.Done()
		tabB.Addresses.Set([]string{"From B"})
	}()
	wg.Wait()

	waitFor(t, func() bool {
		final := stored(t, mem, commute.Addresses.Name)
		a, _ := jsonOf(tabA.Addresses.Get())
		bv, _ := jsonOf(tabB.Addresses.Get())
		e, _ := jsonOf(ext.Addresses.Get())
		return final != "" && a == final && bv == final && e == final
	})
}

func jsonOf(v []string) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}

// A write in any context reaches every other live instance.
func TestConvergence(t *testing.T) {
	mem := area.NewMemory()
	ext := newExtension(t, mem, Config{})
	b := NewBrowser(ext)
	tabA := openTab(t, b, Config{})
	tabB := openTab(t, b, Config{})
	for _, tab := range []*Tab{tabA, tabB} {
		if err := tab.Registry.WaitSynced(ctxT(t)); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("PageToAll", func(t *testing.T) {
		limits := commute.Durations{Walking: 20, Biking: 15, Transit: 30, Driving: 25}
		tabA.Thresholds.Set(limits)
		waitFor(t, func() bool {
			return tabB.Thresholds.Get() == limits && ext.Thresholds.Get() == limits
		})
		if got := stored(t, mem, commute.Thresholds.Name); got != `{"walking":20,"biking":15,"transit":30,"driving":25}` {
			t.Errorf("stored = %s", got)
		}
	})

	t.Run("ExtensionToPages", func(t *testing.T) {
		ext.Addresses.Set([]string{"Ext St"})
		waitFor(t, func() bool {
			return sameStrings(tabA.Addresses.Get(), []string{"Ext St"}) &&
				sameStrings(tabB.Addresses.Get(), []string{"Ext St"})
		})
	})

	t.Run("NewTabSeesCurrentValue", func(t *testing.T) {
		tabC := openTab(t, b, Config{})
		if err := tabC.Registry.WaitSynced(ctxT(t)); err != nil {
			t.Fatal(err)
		}
		waitFor(t, func() bool { return sameStrings(tabC.Addresses.Get(), []string{"Ext St"}) })
	})
}

func TestRemotePage(t *testing.T) {
	svc := httptest.NewServer(durations.NewService().Handler())
	defer svc.Close()

	mem := area.NewMemory()
	ext := newExtension(t, mem, Config{DurationsURL: svc.URL})
	ext.Addresses.Set([]string{"Main St"})
	if err := ext.Addresses.Flush(ctxT(t)); err != nil {
		t.Fatal(err)
	}

	h := ext.Handler()
	srv := httptest.NewServer(h)
	defer srv.Close()
	defer h.Close()

	conn, err := messenger.Dial(ctxT(t), "ws"+strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	page, err := NewPage(area.NewMemory(), conn, conn, Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer page.Close()

	if err := page.Registry.WaitSynced(ctxT(t)); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return sameStrings(page.Addresses.Get(), []string{"Main St"}) })

	t.Run("Durations", func(t *testing.T) {
		res := page.Durations(ctxT(t))
		if !res.OK() {
			t.Fatalf("durations failed: %s", res.Error)
		}
		if _, ok := res.Data["Main St"]; !ok {
			t.Errorf("data = %v", res.Data)
		}
	})

	t.Run("FetchProxy", func(t *testing.T) {
		client := durations.NewClient(svc.URL, durations.WithHTTPClient(page.HTTPClient()))
		res := client.Fetch(ctxT(t), []string{"Oak Ave"})
		if !res.OK() {
			t.Fatalf("proxied fetch failed: %s", res.Error)
		}
		if len(res.Data) != 1 {
			t.Errorf("data = %v", res.Data)
		}
	})

	t.Run("PageWriteReachesExtension", func(t *testing.T) {
		page.Addresses.Set([]string{"Main St", "Oak Ave"})
		waitFor(t, func() bool {
			return stored(t, mem, commute.Addresses.Name) == `["Main St","Oak Ave"]` &&
				len(ext.Addresses.Get()) == 2
		})
	})
}
