package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bikedash"

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	recomputeDuration prometheus.Histogram
	superseded        prometheus.Counter
	activeSessions    prometheus.Gauge
	sessionsTotal     prometheus.Counter
	datasetRows       prometheus.Gauge
	loadDuration      prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recompute_duration_seconds",
			Help:      "Time spent recomputing a session's chart and summary.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		superseded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renders_superseded_total",
			Help:      "Recomputations discarded because a newer input arrived first.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open dashboard sessions.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Dashboard sessions created.",
		}),
		datasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows in the loaded dataset.",
		}),
		loadDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_load_seconds",
			Help:      "Time it took to load the dataset at startup.",
		}),
	}
	m.registry.MustRegister(
		m.recomputeDuration,
		m.superseded,
		m.activeSessions,
		m.sessionsTotal,
		m.datasetRows,
		m.loadDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRecompute(d time.Duration) {
	if m == nil {
		return
	}
	m.recomputeDuration.Observe(d.Seconds())
}

func (m *Metrics) Superseded() {
	if m == nil {
		return
	}
	m.superseded.Inc()
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) DatasetLoaded(rows int, took time.Duration) {
	if m == nil {
		return
	}
	m.datasetRows.Set(float64(rows))
	m.loadDuration.Set(took.Seconds())
}
