package durations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/uprent-dev/commutesync/pkg/commute"
	"github.com/uprent-dev/commutesync/pkg/messenger"
)

// Result is the outcome of a durations fetch. Exactly one of Data and
// Error is set.
type Result struct {
	Data  map[string]commute.Durations `json:"data"`
	Error string                       `json:"error"`
}

// OK reports whether the fetch succeeded.
func (r Result) OK() bool {
	return r.Error == ""
}

// Client fetches durations from a durations service.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client, e.g. one whose transport is a
// fetchproxy.Transport.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch requests durations for addresses. Failures are reported in the
// Result, never as a Go error.
func (c *Client) Fetch(ctx context.Context, addresses []string) Result {
	u := c.baseURL + Path + "?" + url.Values{"addresses": {JoinAddresses(addresses)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{Error: err.Error()}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Error: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Error: fmt.Sprintf("durations request failed: %s", resp.Status)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{Error: "malformed durations response: " + err.Error()}
	}
	if out.Results == nil {
		out.Results = map[string]commute.Durations{}
	}
	return Result{Data: out.Results}
}

// MessageType asks the extension to fetch durations on the page's behalf.
const MessageType = "GET_COMMUTE_DURATIONS"

// runtimeReply is the payload answering MessageType.
type runtimeReply struct {
	OK    bool                         `json:"ok"`
	Data  map[string]commute.Durations `json:"data,omitempty"`
	Error string                       `json:"error"`
}

// RuntimeHandler answers MessageType by fetching durations for the
// addresses returned by addresses.
func RuntimeHandler(c *Client, addresses func() []string) messenger.HandlerFunc {
	return func(ctx context.Context, msg messenger.Message) (messenger.Message, error) {
		res := c.Fetch(ctx, addresses())
		return messenger.NewMessage(MessageType, runtimeReply{
			OK:    res.OK(),
			Data:  res.Data,
			Error: res.Error,
		})
	}
}

// FetchViaRuntime asks the extension for durations through s. Like
// Fetch, it never returns a Go error.
func FetchViaRuntime(ctx context.Context, s messenger.Sender) Result {
	reply, err := s.Send(ctx, messenger.Message{Type: MessageType})
	if err != nil {
		return Result{Error: err.Error()}
	}
	var out runtimeReply
	if err := reply.Decode(&out); err != nil {
		return Result{Error: "malformed durations reply: " + err.Error()}
	}
	if !out.OK {
		if out.Error == "" {
			out.Error = "Failed to fetch"
		}
		return Result{Error: out.Error}
	}
	if out.Data == nil {
		out.Data = map[string]commute.Durations{}
	}
	return Result{Data: out.Data}
}
