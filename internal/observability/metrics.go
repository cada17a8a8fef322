package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/upb/omniagent/internal/router"
	"github.com/upb/omniagent/internal/telemetry"
)

const namespace = "omniagent"

// Metrics exports the telemetry counters and backend latency to Prometheus.
// Counter values are read from the telemetry.Counter at scrape time.
type Metrics struct {
	counter *telemetry.Counter
	latency *prometheus.HistogramVec

	successDesc  *prometheus.Desc
	fallbackDesc *prometheus.Desc
	failureDesc  *prometheus.Desc
	totalDesc    *prometheus.Desc
}

// NewMetrics registers the collector and the latency histogram on reg.
func NewMetrics(reg prometheus.Registerer, counter *telemetry.Counter) (*Metrics, error) {
	m := &Metrics{
		counter: counter,
		latency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Backend invocation latency including any fallback attempt",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend", "status"},
		),
		successDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "backend", "success_total"),
			"Successful invocations per backend",
			[]string{"backend"}, nil,
		),
		fallbackDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "fallbacks_total"),
			"Cloud failures retried against the local backend",
			nil, nil,
		),
		failureDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "failures_total"),
			"Terminal invocation failures per error kind",
			[]string{"kind"}, nil,
		),
		totalDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "invocations_total"),
			"Completed invocations",
			nil, nil,
		),
	}
	if err := reg.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Record observes the latency of a completed outcome. Abandoned outcomes are skipped.
func (m *Metrics) Record(outcome router.InvocationOutcome) {
	if outcome.Abandoned {
		return
	}
	status := "success"
	switch {
	case !outcome.Succeeded:
		status = "failure"
	case outcome.UsedFallback:
		status = "fallback"
	}
	m.latency.WithLabelValues(outcome.Decision.TargetBackend, status).Observe(outcome.Latency.Seconds())
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.successDesc
	ch <- m.fallbackDesc
	ch <- m.failureDesc
	ch <- m.totalDesc
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	snap := m.counter.Snapshot()
	for backend, n := range snap.Backends {
		ch <- prometheus.MustNewConstMetric(m.successDesc, prometheus.CounterValue, float64(n), backend)
	}
	for kind, n := range snap.Failures {
		ch <- prometheus.MustNewConstMetric(m.failureDesc, prometheus.CounterValue, float64(n), string(kind))
	}
	ch <- prometheus.MustNewConstMetric(m.fallbackDesc, prometheus.CounterValue, float64(snap.Fallbacks))
	ch <- prometheus.MustNewConstMetric(m.totalDesc, prometheus.CounterValue, float64(snap.Total))
}
