// Package metrics holds the Prometheus collectors of the stream server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "streams"

// Registry wraps a dedicated Prometheus registry with runtime collectors.
type Registry struct {
	prom *prometheus.Registry
}

// NewRegistry creates a registry with Go runtime and process metrics.
func NewRegistry() *Registry {
	prom := prometheus.NewRegistry()
	prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{prom: prom}
}

// Registerer is used by components that add their own collectors.
func (r *Registry) Registerer() prometheus.Registerer { return r.prom }

// Gatherer exposes the collected metrics.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.prom }

// Handler serves the metrics in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
