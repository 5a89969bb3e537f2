// Package fetchproxy tunnels HTTP requests for local-only hosts through
// the extension, which is not subject to the page's cross-origin rules.
//
// On the page side, Transport is an http.RoundTripper that turns requests
// for configured hosts into FETCH_PROXY runtime messages and rebuilds the
// response from the reply. Everything else goes to the base transport.
// On the extension side, Handler performs the real request.
package fetchproxy

import (
	"bytes"
	"encoding/json"
)

// MessageType is the runtime message type of proxied requests.
const MessageType = "FETCH_PROXY"

// DefaultHosts are intercepted when no hosts are configured.
var DefaultHosts = []string{"localhost", "127.0.0.1"}

// Request is the FETCH_PROXY payload.
type Request struct {
	URL     string  `json:"url"`
	Options Options `json:"options"`
}

// Options mirrors the subset of request options that are forwarded.
type Options struct {
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Response is the reply to a FETCH_PROXY request. Error is set when
// the request could not be made at all.
type Response struct {
	OK         bool              `json:"ok"`
	Status     int               `json:"status,omitempty"`
	StatusText string            `json:"statusText,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Data       json.RawMessage   `json:"data,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Body returns the response body bytes. A JSON string is unquoted;
// any other JSON value is returned as encoded.
func (r Response) Body() []byte {
	data := bytes.TrimSpace(r.Data)
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err == nil {
			return []byte(s)
		}
	}
	return data
}

// encodeData stores body as JSON when it parses, otherwise as a JSON
// string.
func encodeData(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	s, _ := json.Marshal(string(body))
	return s
}
