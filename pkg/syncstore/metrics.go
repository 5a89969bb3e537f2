package syncstore

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for synchronized stores.
// A nil *Metrics records nothing.
type Metrics struct {
	reconciliations *prometheus.CounterVec
	externalApplied *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	staleSkipped    *prometheus.CounterVec
	writes          *prometheus.CounterVec
	writeErrors     *prometheus.CounterVec
	suppressed      *prometheus.CounterVec
	decodeErrors    *prometheus.CounterVec
	syncedStores    *prometheus.GaugeVec
}

// NewMetrics registers the store collectors with reg.
//
// Metrics collected:
//   - <ns>_reconciliations_total{key,outcome}: reply, timeout, late, error
//   - <ns>_external_applied_total{key,source}: area, bridge, cache
//   - <ns>_duplicates_dropped_total{key}
//   - <ns>_stale_events_skipped_total{key}
//   - <ns>_writes_total{key,target}: local, cache, bridge
//   - <ns>_write_errors_total{key,target}
//   - <ns>_writes_suppressed_total{key}: local writes held back before sync
//   - <ns>_decode_errors_total{key}
//   - <ns>_synced_stores{context}
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "commutesync"
	}
	factory := promauto.With(reg)
	const subsystem = "store"

	return &Metrics{
		reconciliations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconciliations_total",
			Help:      "Completed reconciliations by outcome",
		}, []string{"key", "outcome"}),

		externalApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "external_applied_total",
			Help:      "Values applied from another context",
		}, []string{"key", "source"}),

		duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duplicates_dropped_total",
			Help:      "External values identical to the current value",
		}, []string{"key"}),

		staleSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stale_events_skipped_total",
			Help:      "External changes superseded by a queued local write",
		}, []string{"key"}),

		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "writes_total",
			Help:      "Persistence writes by target",
		}, []string{"key", "target"}),

		writeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "write_errors_total",
			Help:      "Failed persistence writes by target",
		}, []string{"key", "target"}),

		suppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "writes_suppressed_total",
			Help:      "Local writes held back from the authoritative store before sync",
		}, []string{"key"}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "decode_errors_total",
			Help:      "Malformed values discarded",
		}, []string{"key"}),

		syncedStores: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "synced_stores",
			Help:      "Stores that finished reconciliation",
		}, []string{"context"}),
	}
}

func (m *Metrics) reconciled(key, outcome string) {
	if m != nil {
		m.reconciliations.WithLabelValues(key, outcome).Inc()
	}
}

func (m *Metrics) applied(key, source string) {
	if m != nil {
		m.externalApplied.WithLabelValues(key, source).Inc()
	}
}

func (m *Metrics) duplicate(key string) {
	if m != nil {
		m.duplicates.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) stale(key string) {
	if m != nil {
		m.staleSkipped.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) wrote(key, target string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.writeErrors.WithLabelValues(key, target).Inc()
		return
	}
	m.writes.WithLabelValues(key, target).Inc()
}

func (m *Metrics) suppress(key string) {
	if m != nil {
		m.suppressed.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) decodeError(key string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) syncedAdd(ctx Context, delta float64) {
	if m != nil {
		m.syncedStores.WithLabelValues(ctx.String()).Add(delta)
	}
}
