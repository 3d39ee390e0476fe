package ygggo_pg

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports pool status and statement cache statistics to
// Prometheus. Values are read on every scrape.
type Collector struct {
	pool *Pool

	maxSize    *prometheus.Desc
	size       *prometheus.Desc
	available  *prometheus.Desc
	waiting    *prometheus.Desc
	caches     *prometheus.Desc
	statements *prometheus.Desc
}

// NewCollector creates a collector for pool. name is attached to every
// series as the "pool" label.
func NewCollector(pool *Pool, name string) *Collector {
	labels := prometheus.Labels{"pool": name}
	desc := func(metric, help string) *prometheus.Desc {
		return prometheus.NewDesc("ygggo_pg_"+metric, help, nil, labels)
	}
	return &Collector{
		pool:       pool,
		maxSize:    desc("pool_max_size", "Maximum number of connections of the pool"),
		size:       desc("pool_size", "Number of connections currently owned by the pool"),
		available:  desc("pool_available", "Number of idle connections"),
		waiting:    desc("pool_waiting", "Number of callers waiting for a connection"),
		caches:     desc("statement_caches", "Number of registered statement caches"),
		statements: desc("cached_statements", "Number of prepared statements across all caches"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxSize
	ch <- c.size
	ch <- c.available
	ch <- c.waiting
	ch <- c.caches
	ch <- c.statements
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.pool.Status()
	ch <- prometheus.MustNewConstMetric(c.maxSize, prometheus.GaugeValue, float64(st.MaxSize))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.Size))
	ch <- prometheus.MustNewConstMetric(c.available, prometheus.GaugeValue, float64(st.Available))
	ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(st.Waiting))

	var cs CacheStats
	if m, ok := c.pool.manager.(*Manager); ok {
		cs = m.StatementCaches.Stats()
	}
	ch <- prometheus.MustNewConstMetric(c.caches, prometheus.GaugeValue, float64(cs.Caches))
	ch <- prometheus.MustNewConstMetric(c.statements, prometheus.GaugeValue, float64(cs.Statements))
}

var _ prometheus.Collector = (*Collector)(nil)
