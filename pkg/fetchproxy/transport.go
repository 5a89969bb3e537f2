package fetchproxy

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/uprent-dev/commutesync/internal/errors"
	"github.com/uprent-dev/commutesync/pkg/messenger"
)

const tracerName = "github.com/uprent-dev/commutesync/pkg/fetchproxy"

// Transport proxies requests for local-only hosts through a runtime
// channel.
type Transport struct {
	sender messenger.Sender
	base   http.RoundTripper
	hosts  map[string]bool
	logger *slog.Logger
	tracer trace.Tracer
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithBase sets the transport used for requests that are not proxied.
func WithBase(rt http.RoundTripper) TransportOption {
	return func(t *Transport) {
		if rt != nil {
			t.base = rt
		}
	}
}

// WithHosts replaces the intercepted host names.
func WithHosts(hosts ...string) TransportOption {
	return func(t *Transport) {
		t.hosts = hostSet(hosts)
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTransport creates a Transport sending FETCH_PROXY requests on s.
func NewTransport(s messenger.Sender, opts ...TransportOption) *Transport {
	t := &Transport{
		sender: s,
		base:   http.DefaultTransport,
		hosts:  hostSet(DefaultHosts),
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func hostSet(hosts []string) map[string]bool {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[strings.ToLower(h)] = true
	}
	return set
}

// Intercepts reports whether req is proxied.
func (t *Transport) Intercepts(req *http.Request) bool {
	return t.hosts[strings.ToLower(req.URL.Hostname())]
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.Intercepts(req) {
		return t.base.RoundTrip(req)
	}

	ctx, span := t.tracer.Start(req.Context(), "fetchproxy.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.Method),
			attribute.String("http.url", req.URL.String()),
		),
	)
	defer span.End()

	payload, err := t.encode(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	msg, err := messenger.NewMessage(MessageType, payload)
	if err != nil {
		return nil, errors.New("S080").Wrap(err)
	}

	reply, err := t.sender.Send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errors.New("S080").WithDetail(req.URL.String()).Wrap(err)
	}

	var out Response
	if err := reply.Decode(&out); err != nil {
		span.SetStatus(codes.Error, "malformed reply")
		return nil, errors.New("S081").WithDetail("malformed reply").Wrap(err)
	}
	if out.Error != "" {
		span.SetStatus(codes.Error, out.Error)
		return nil, errors.New("S080").WithDetail(out.Error)
	}
	if out.Status == 0 {
		span.SetStatus(codes.Error, "empty reply")
		return nil, errors.New("S081")
	}

	span.SetAttributes(attribute.Int("http.status_code", out.Status))
	t.logger.Debug("proxied request", "method", req.Method, "url", req.URL.String(), "status", out.Status)
	return t.decode(req, out), nil
}

func (t *Transport) encode(req *http.Request) (Request, error) {
	p := Request{
		URL:     req.URL.String(),
		Options: Options{Method: req.Method},
	}
	if len(req.Header) > 0 {
		p.Options.Headers = make(map[string]string, len(req.Header))
		for k, v := range req.Header {
			p.Options.Headers[k] = strings.Join(v, ", ")
		}
	}
	if req.Body != nil && req.Body != http.NoBody {
		defer req.Body.Close()
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return p, errors.New("S080").WithDetail("reading request body").Wrap(err)
		}
		p.Options.Body = string(body)
	}
	return p, nil
}

func (t *Transport) decode(req *http.Request, out Response) *http.Response {
	body := out.Body()
	header := make(http.Header, len(out.Headers))
	for k, v := range out.Headers {
		header.Set(k, v)
	}
	text := out.StatusText
	if text == "" {
		text = http.StatusText(out.Status)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", out.Status, text),
		StatusCode:    out.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
