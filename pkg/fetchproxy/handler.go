package fetchproxy

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/uprent-dev/commutesync/pkg/messenger"
)

// Handler performs proxied requests on the extension side.
type Handler struct {
	client *http.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithClient sets the HTTP client used for the real request.
func WithClient(c *http.Client) HandlerOption {
	return func(h *Handler) {
		if c != nil {
			h.client = c
		}
	}
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a proxy handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register installs h on rt for MessageType and returns the cancel
// function.
func (h *Handler) Register(rt *messenger.Runtime) func() {
	return rt.Handle(MessageType, h.Handle)
}

// Handle is a messenger.HandlerFunc answering one FETCH_PROXY request.
// Failures are reported in the reply payload, not as an error, so the
// page sees the original error message.
func (h *Handler) Handle(ctx context.Context, msg messenger.Message) (messenger.Message, error) {
	var in Request
	if err := msg.Decode(&in); err != nil {
		return messenger.NewMessage(MessageType, Response{Error: "malformed proxy request: " + err.Error()})
	}
	return messenger.NewMessage(MessageType, h.do(ctx, in))
}

func (h *Handler) do(ctx context.Context, in Request) Response {
	method := in.Options.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := h.tracer.Start(ctx, "fetchproxy.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", in.URL),
		),
	)
	defer span.End()

	var body io.Reader
	if in.Options.Body != "" {
		body = strings.NewReader(in.Options.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, in.URL, body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{Error: err.Error()}
	}
	for k, v := range in.Options.Headers {
		req.Header.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Warn("proxied fetch failed", "url", in.URL, "error", err)
		return Response{Error: err.Error()}
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Response{Error: err.Error()}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[strings.ToLower(k)] = resp.Header.Get(k)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return Response{
		OK:         resp.StatusCode >= 200 && resp.StatusCode <= 299,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Data:       encodeData(text),
	}
}
