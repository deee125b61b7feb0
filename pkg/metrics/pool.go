package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ekaya-inc/ekaya-streams/pkg/adapters/datasource"
)

// PoolCollector reports engine pool statistics at scrape time.
type PoolCollector struct {
	stats func() []datasource.PoolStats

	maxConns  *prometheus.Desc
	openConns *prometheus.Desc
	inUse     *prometheus.Desc
	idle      *prometheus.Desc
}

// NewPoolCollector collects from stats, usually EngineSet.Stats.
func NewPoolCollector(stats func() []datasource.PoolStats) *PoolCollector {
	labels := []string{"engine", "type"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "pool", name), help, labels, nil)
	}
	return &PoolCollector{
		stats:     stats,
		maxConns:  desc("max_connections", "Maximum number of pool connections"),
		openConns: desc("open_connections", "Number of open pool connections"),
		inUse:     desc("in_use_connections", "Number of connections held by sessions"),
		idle:      desc("idle_connections", "Number of idle pool connections"),
	}
}

func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxConns
	ch <- c.openConns
	ch <- c.inUse
	ch <- c.idle
}

func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.stats() {
		ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(s.MaxConns), s.Engine, s.Type)
		ch <- prometheus.MustNewConstMetric(c.openConns, prometheus.GaugeValue, float64(s.OpenConns), s.Engine, s.Type)
		ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(s.InUse), s.Engine, s.Type)
		ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(s.Idle), s.Engine, s.Type)
	}
}
