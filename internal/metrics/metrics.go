// Package metrics holds the Prometheus collectors of the rate pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ratehub"

// Metrics groups all collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	SourceFetchTotal    *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec
	SourcePairs         *prometheus.GaugeVec
	JournalAppendTotal  *prometheus.CounterVec
	SnapshotPairs       prometheus.Gauge
	CyclesTotal         *prometheus.CounterVec
	StubRefreshTotal    *prometheus.CounterVec
	QueriesTotal        *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SourceFetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Rate source fetches by outcome",
			},
			[]string{"source", "status"},
		),
		SourceFetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_fetch_duration_seconds",
				Help:      "Rate source fetch latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		SourcePairs: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_pairs",
				Help:      "Usable pairs returned by the last fetch of a source",
			},
			[]string{"source"},
		),
		JournalAppendTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "journal_append_total",
				Help:      "Journal appends by result (appended, duplicate, failed)",
			},
			[]string{"result"},
		),
		SnapshotPairs: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_pairs",
				Help:      "Pairs held by the snapshot after the last merge",
			},
		),
		CyclesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "update_cycles_total",
				Help:      "Update cycles by outcome",
			},
			[]string{"outcome"},
		),
		StubRefreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stub_refresh_total",
				Help:      "Stale reads that bumped a snapshot timestamp without fetching",
			},
			[]string{"pair"},
		),
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_queries_total",
				Help:      "Rate lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// ObserveFetch records one source fetch.
func (m *Metrics) ObserveFetch(source, status string, pairs int, took time.Duration) {
	if m == nil {
		return
	}
	m.SourceFetchTotal.WithLabelValues(source, status).Inc()
	m.SourceFetchDuration.WithLabelValues(source).Observe(took.Seconds())
	m.SourcePairs.WithLabelValues(source).Set(float64(pairs))
}

// ObserveAppend records one journal append result.
func (m *Metrics) ObserveAppend(result string) {
	if m == nil {
		return
	}
	m.JournalAppendTotal.WithLabelValues(result).Inc()
}

// ObserveCycle records the outcome of an update cycle and the snapshot size.
func (m *Metrics) ObserveCycle(outcome string, snapshotPairs int) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(outcome).Inc()
	if snapshotPairs >= 0 {
		m.SnapshotPairs.Set(float64(snapshotPairs))
	}
}

// ObserveStubRefresh records a timestamp bump on a stale read.
func (m *Metrics) ObserveStubRefresh(pair string) {
	if m == nil {
		return
	}
	m.StubRefreshTotal.WithLabelValues(pair).Inc()
}

// ObserveQuery records a rate lookup.
func (m *Metrics) ObserveQuery(kind, result string) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(kind, result).Inc()
}
