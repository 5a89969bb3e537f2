// Package middleware provides net/http middleware for the commutesync
// host: Prometheus request metrics and OpenTelemetry tracing.
//
// Both are plain func(http.Handler) http.Handler and fit chi's Use:
//
//	r := chi.NewRouter()
//	r.Use(
//	    middleware.OpenTelemetry(middleware.WithTracerName("commutesync")),
//	    middleware.Prometheus(middleware.WithRegistry(reg)),
//	)
//	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
//
// Routes are labelled by their chi pattern ("/durations"), never by the
// raw URL, to keep label cardinality bounded. Websocket requests stay in
// flight for the lifetime of the connection, so the in-flight gauge
// doubles as a count of connected pages.
//
// The tracer comes from the global OpenTelemetry provider. Configure it
// before starting the server:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
package middleware
