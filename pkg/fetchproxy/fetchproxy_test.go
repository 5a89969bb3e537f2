package fetchproxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/uprent-dev/commutesync/internal/errors"
	"github.com/uprent-dev/commutesync/pkg/messenger"
)

// countingSender records how many requests were proxied.
type countingSender struct {
	rt    *messenger.Runtime
	calls atomic.Int32
}

func (s *countingSender) Send(ctx context.Context, msg messenger.Message) (messenger.Message, error) {
	s.calls.Add(1)
	return s.rt.Send(ctx, msg)
}

func newProxy(t *testing.T, opts ...TransportOption) (*http.Client, *countingSender) {
	t.Helper()
	rt := messenger.NewRuntime()
	NewHandler().Register(rt)
	sender := &countingSender{rt: rt}
	return &http.Client{Transport: NewTransport(sender, opts...)}, sender
}

func TestTransport(t *testing.T) {
	var gotMethod, gotHeader, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Test")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"results":{"a":1}}`))
		case "/text":
			w.Header().Set("X-Reply", "plain")
			w.Write([]byte("hello"))
		case "/missing":
			http.Error(w, "nope", http.StatusNotFound)
		}
	}))
	defer srv.Close()

	t.Run("JSONBody", func(t *testing.T) {
		client, sender := newProxy(t)
		resp, err := client.Get(srv.URL + "/json")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if sender.calls.Load() != 1 {
			t.Errorf("request was not proxied")
		}
		if resp.StatusCode != 200 || resp.Status != "200 OK" {
			t.Errorf("status = %q", resp.Status)
		}
		if string(body) != `{"results":{"a":1}}` {
			t.Errorf("body = %s", body)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
	})

	t.Run("TextBodyAndHeaders", func(t *testing.T) {
		client, _ := newProxy(t)
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/text", strings.NewReader("payload"))
		req.Header.Set("X-Test", "yes")
		resp, err := client.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		if string(body) != "hello" {
			t.Errorf("body = %q", body)
		}
		if resp.Header.Get("X-Reply") != "plain" {
			t.Errorf("headers = %v", resp.Header)
		}
		if gotMethod != http.MethodPost || gotHeader != "yes" || gotBody != "payload" {
			t.Errorf("server saw %s %q %q", gotMethod, gotHeader, gotBody)
		}
	})

	t.Run("ErrorStatusIsAResponse", func(t *testing.T) {
		client, _ := newProxy(t)
		resp, err := client.Get(srv.URL + "/missing")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})

	t.Run("OtherHostsPassThrough", func(t *testing.T) {
		client, sender := newProxy(t, WithHosts("api.local"))
		resp, err := client.Get(srv.URL + "/json")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if sender.calls.Load() != 0 {
			t.Error("request for a non-local host was proxied")
		}
	})

	t.Run("FetchFailure", func(t *testing.T) {
		client, _ := newProxy(t)
		_, err := client.Get("http://127.0.0.1:1/unreachable")
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "Proxied request failed") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("NoReceiver", func(t *testing.T) {
		tr := NewTransport(messenger.NewRuntime())
		req, _ := http.NewRequest(http.MethodGet, srv.URL+"/json", nil)
		_, err := tr.RoundTrip(req)
		if got := errors.CodeOf(err); got != "S080" {
			t.Errorf("CodeOf(err) = %q, want S080 (err=%v)", got, err)
		}
	})
}

func TestHandleMalformedRequest(t *testing.T) {
	reply, err := NewHandler().Handle(context.Background(), messenger.Message{
		Type:    MessageType,
		Payload: []byte(`"not an object"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	var out Response
	if err := reply.Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Error == "" || out.OK {
		t.Errorf("reply = %+v, want error", out)
	}
}

func TestResponseBody(t *testing.T) {
	tests := []struct {
		data string
		want string
	}{
		{`"hello"`, "hello"},
		{`{"a":1}`, `{"a":1}`},
		{`[1,2]`, `[1,2]`},
		{``, ``},
	}
	for _, tt := range tests {
		if got := string(Response{Data: []byte(tt.data)}.Body()); got != tt.want {
			t.Errorf("Body(%s) = %q, want %q", tt.data, got, tt.want)
		}
	}
	if got := string(encodeData([]byte("plain text"))); got != `"plain text"` {
		t.Errorf("encodeData = %s", got)
	}
}
