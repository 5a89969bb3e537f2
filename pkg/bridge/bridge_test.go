package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uprent-dev/commutesync/pkg/area"
	"github.com/uprent-dev/commutesync/pkg/messenger"
	"github.com/uprent-dev/commutesync/pkg/syncstore"
)

var desc = syncstore.NewDescriptor("test-addresses", "T_", "ADDRESSES")

type inbox struct {
	mu   sync.Mutex
	msgs []messenger.Message
}

func (b *inbox) add(m messenger.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, m)
}

func (b *inbox) ofType(typ string) []messenger.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []messenger.Message
	for _, m := range b.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func setup(t *testing.T) (*messenger.Window, *area.Memory, *inbox, *Bridge) {
	t.Helper()
	w := messenger.NewWindow()
	mem := area.NewMemory()
	b := New(w, mem, []syncstore.Descriptor{desc})
	b.Start()

	box := &inbox{}
	w.Listen(box.add)
	t.Cleanup(func() {
		b.Close()
		w.Close()
	})
	return w, mem, box, b
}

func post(t *testing.T, w *messenger.Window, msg messenger.Message) {
	t.Helper()
	if err := w.Post(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestBridge(t *testing.T) {
	t.Run("GetReplies", func(t *testing.T) {
		w, mem, box, _ := setup(t)
		mem.Set(context.Background(), desc.Name, []byte(`["A"]`))

		post(t, w, messenger.Message{Type: desc.GetTopic, ID: "req-1"})
		waitFor(t, func() bool {
			for _, m := range box.ofType(desc.UpdatedTopic) {
				if m.ReplyTo == "req-1" {
					return string(m.Payload) == `["A"]`
				}
			}
			return false
		})
	})

	t.Run("GetAbsentRepliesNull", func(t *testing.T) {
		w, _, box, _ := setup(t)

		post(t, w, messenger.Message{Type: desc.GetTopic, ID: "req-2"})
		waitFor(t, func() bool {
			updates := box.ofType(desc.UpdatedTopic)
			return len(updates) == 1 && updates[0].IsNull() && updates[0].ReplyTo == "req-2"
		})
	})

	t.Run("SetWritesAndBroadcasts", func(t *testing.T) {
		w, mem, box, _ := setup(t)

		post(t, w, messenger.Message{Type: desc.SetTopic, Payload: []byte(`["B"]`)})
		data, _ := mem.Get(context.Background(), desc.Name)
		if string(data) != `["B"]` {
			t.Errorf("stored = %s", data)
		}
		waitFor(t, func() bool {
			updates := box.ofType(desc.UpdatedTopic)
			return len(updates) == 1 && string(updates[0].Payload) == `["B"]` && updates[0].ReplyTo == ""
		})
	})

	t.Run("NullSetRemoves", func(t *testing.T) {
		w, mem, box, _ := setup(t)
		mem.Set(context.Background(), desc.Name, []byte(`["A"]`))

		post(t, w, messenger.Message{Type: desc.SetTopic, Payload: []byte("null")})
		if data, _ := mem.Get(context.Background(), desc.Name); data != nil {
			t.Errorf("stored = %s, want removed", data)
		}
		waitFor(t, func() bool {
			updates := box.ofType(desc.UpdatedTopic)
			return len(updates) == 2 && updates[1].IsNull()
		})
	})

	t.Run("ForeignWriterBroadcast", func(t *testing.T) {
		w, mem, box, b := setup(t)

		mem.Set(context.Background(), desc.Name, []byte(`["Ext"]`))
		mem.Set(context.Background(), "unrelated", []byte(`1`))
		b.Flush(context.Background())
		w.Flush(context.Background())

		updates := box.ofType(desc.UpdatedTopic)
		if len(updates) != 1 || string(updates[0].Payload) != `["Ext"]` {
			t.Errorf("updates = %+v", updates)
		}
	})

	t.Run("UnknownTopicIgnored", func(t *testing.T) {
		w, mem, _, _ := setup(t)

		post(t, w, messenger.Message{Type: "T_SET_OTHER", Payload: []byte(`1`)})
		if keys := mem.Keys(); len(keys) != 0 {
			t.Errorf("unexpected keys %v", keys)
		}
	})

	t.Run("CloseStopsRelaying", func(t *testing.T) {
		w, mem, box, b := setup(t)
		b.Close()

		post(t, w, messenger.Message{Type: desc.SetTopic, Payload: []byte(`["C"]`)})
		if data, _ := mem.Get(context.Background(), desc.Name); data != nil {
			t.Errorf("closed bridge wrote %s", data)
		}
		mem.Set(context.Background(), desc.Name, []byte(`["D"]`))
		w.Flush(context.Background())
		if n := len(box.ofType(desc.UpdatedTopic)); n != 0 {
			t.Errorf("closed bridge broadcast %d updates", n)
		}
	})
}

// stalledPort blocks every Post until release is closed.
type stalledPort struct {
	release chan struct{}

	mu     sync.Mutex
	posted []messenger.Message
}

func (p *stalledPort) Post(ctx context.Context, msg messenger.Message) error {
	<-p.release
	p.mu.Lock()
	p.posted = append(p.posted, msg)
	p.mu.Unlock()
	return nil
}

func (p *stalledPort) Listen(fn func(messenger.Message)) func() {
	return func() {}
}

func (p *stalledPort) payloads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.posted))
	for i, m := range p.posted {
		out[i] = string(m.Payload)
	}
	return out
}

func TestSlowPortDoesNotBlockWriters(t *testing.T) {
	mem := area.NewMemory()
	port := &stalledPort{release: make(chan struct{})}
	b := New(port, mem, []syncstore.Descriptor{desc})
	b.Start()
	defer b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		mem.Set(context.Background(), desc.Name, []byte(`["One"]`))
		mem.Set(context.Background(), desc.Name, []byte(`["Two"]`))
		mem.Set(context.Background(), desc.Name, []byte(`["Three"]`))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("area writes blocked behind a stalled port")
	}

	close(port.release)
	if err := b.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := port.payloads()
	want := []string{`["One"]`, `["Two"]`, `["Three"]`}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("posted %v, want %v in order", got, want)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandler(t *testing.T) {
	mem := area.NewMemory()
	mem.Set(context.Background(), desc.Name, []byte(`["Remote"]`))

	rt := messenger.NewRuntime()
	rt.Handle("PING", func(ctx context.Context, msg messenger.Message) (messenger.Message, error) {
		return messenger.NewMessage("PING", "pong")
	})

	h := NewHandler(mem, []syncstore.Descriptor{desc},
		WithRuntime(rt),
		WithAllowedOrigins([]string{"https://uprent.nl"}),
	)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})

	t.Run("PageStoreSyncsOverConnection", func(t *testing.T) {
		conn, err := messenger.Dial(context.Background(), wsURL(srv))
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		key := syncstore.Key(desc.Name, "ADDRESSES", []string{}).WithNamespace("T_")
		s, err := syncstore.New(key, syncstore.Page(area.NewMemory(), conn))
		if err != nil {
			t.Fatal(err)
		}
		defer s.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.WaitSynced(ctx); err != nil {
			t.Fatal(err)
		}
		waitFor(t, func() bool {
			v := s.Get()
			return len(v) == 1 && v[0] == "Remote"
		})

		s.Set([]string{"Local"})
		waitFor(t, func() bool {
			data, _ := mem.Get(context.Background(), desc.Name)
			return string(data) == `["Local"]`
		})
		if h.Connections() != 1 {
			t.Errorf("Connections() = %d, want 1", h.Connections())
		}
	})

	t.Run("RuntimeRequests", func(t *testing.T) {
		conn, err := messenger.Dial(context.Background(), wsURL(srv))
		if err != nil {
			t.Fatal(err)
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		reply, err := conn.Send(ctx, messenger.Message{Type: "PING"})
		if err != nil {
			t.Fatal(err)
		}
		var got string
		if err := reply.Decode(&got); err != nil || got != "pong" {
			t.Errorf("reply = %q, %v", got, err)
		}
	})

	t.Run("Origins", func(t *testing.T) {
		tests := []struct {
			origin string
			ok     bool
		}{
			{"https://uprent.nl", true},
			{"https://evil.example", false},
			{"", true},
		}
		for _, tt := range tests {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			ws, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if (err == nil) != tt.ok {
				t.Errorf("origin %q: err = %v, want ok=%v", tt.origin, err, tt.ok)
			}
			if ws != nil {
				ws.Close()
			}
		}
	})

	t.Run("ConnectionsDropOnClose", func(t *testing.T) {
		waitFor(t, func() bool { return h.Connections() == 0 })
	})
}
