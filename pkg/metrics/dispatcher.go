package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request outcomes.
const (
	OutcomeOK            = "ok"
	OutcomeClientError   = "client_error"
	OutcomeInternalError = "internal_error"
)

// DispatcherMetrics counts requests per handler kind and outcome.
// A nil *DispatcherMetrics records nothing.
type DispatcherMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	connections prometheus.Gauge
}

// NewDispatcherMetrics creates and registers the dispatcher collectors.
func NewDispatcherMetrics(reg prometheus.Registerer) (*DispatcherMetrics, error) {
	m := &DispatcherMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "Total number of handled requests",
		}, []string{"handler_kind", "outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "Request handling duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"handler_kind"}),

		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections",
			Help:      "Number of open client connections",
		}),
	}
	for _, c := range []prometheus.Collector{m.requests, m.duration, m.connections} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRequest records one handled request.
func (m *DispatcherMetrics) RecordRequest(handlerKind, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(handlerKind, outcome).Inc()
	m.duration.WithLabelValues(handlerKind).Observe(d.Seconds())
}

func (m *DispatcherMetrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *DispatcherMetrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}
