// Package metrics exposes the execution pipeline's Prometheus
// instrumentation: a fixed set of counters, gauges and histograms wired to
// the module's own prometheus.Registry rather than the global default, so
// that multiple Metrics instances (e.g. in tests) never collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the execution pipeline reports. Grounded
// on the teacher's metric taxonomy in pkg/metrics/prometheus_exporter.go
// (counter/gauge/histogram split, namespaced metric names), rewired here
// onto the real prometheus/client_golang library the pack (AKJUS-bsc-erigon's
// go.mod) already depends on instead of the teacher's hand-rolled text
// exposition writer.
type Metrics struct {
	registry *prometheus.Registry

	SlotsExecuted      *prometheus.CounterVec
	AsyncDispatched    prometheus.Counter
	AsyncEvicted       prometheus.Counter
	FinalizeLatency    prometheus.Histogram
	CandidateLatency   prometheus.Histogram
	ActiveHistoryDepth prometheus.Gauge
	FinalCursorPeriod  prometheus.Gauge
}

// Namespace prefixes every metric name, matching the teacher's
// PrometheusConfig.Namespace convention.
const namespace = "massacore"

// New constructs a Metrics instance registered against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		SlotsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slots_executed_total",
			Help:      "Slots executed by the slot executor, labeled by outcome.",
		}, []string{"outcome"}),
		AsyncDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_messages_dispatched_total",
			Help:      "Asynchronous messages drained from the pool and run.",
		}),
		AsyncEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_messages_evicted_total",
			Help:      "Asynchronous messages cancelled on pool overflow or expiry.",
		}),
		FinalizeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "finalize_latency_seconds",
			Help:      "Wall-clock time spent finalizing one slot into FinalState.",
			Buckets:   prometheus.DefBuckets,
		}),
		CandidateLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candidate_execution_latency_seconds",
			Help:      "Wall-clock time spent executing one candidate slot.",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveHistoryDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_history_depth",
			Help:      "Number of speculative outputs currently held in Active History.",
		}),
		FinalCursorPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "final_cursor_period",
			Help:      "Period component of the sequencer's final_cursor.",
		}),
	}

	reg.MustRegister(
		m.SlotsExecuted,
		m.AsyncDispatched,
		m.AsyncEvicted,
		m.FinalizeLatency,
		m.CandidateLatency,
		m.ActiveHistoryDepth,
		m.FinalCursorPeriod,
	)
	return m
}

// Handler returns an http.Handler serving the registry in Prometheus text
// exposition format, the real-library equivalent of the teacher's
// PrometheusExporter.Handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
