package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats exposes connection pool statistics, satisfied by the db package.
type PoolStats interface {
	Health() map[string]any
}

// PoolCollector exports pgx pool gauges on scrape.
type PoolCollector struct {
	pool PoolStats

	total     *prometheus.Desc
	acquired  *prometheus.Desc
	idle      *prometheus.Desc
	max       *prometheus.Desc
}

// NewPoolCollector creates a collector over the database pool and registers it.
func NewPoolCollector(reg prometheus.Registerer, pool PoolStats) (*PoolCollector, error) {
	c := &PoolCollector{
		pool:     pool,
		total:    prometheus.NewDesc("granta_db_connections_total", "Total number of connections in the pool.", nil, nil),
		acquired: prometheus.NewDesc("granta_db_connections_acquired", "Number of currently acquired connections.", nil, nil),
		idle:     prometheus.NewDesc("granta_db_connections_idle", "Number of idle connections.", nil, nil),
		max:      prometheus.NewDesc("granta_db_connections_max", "Maximum number of connections in the pool.", nil, nil),
	}
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.total
	ch <- c.acquired
	ch <- c.idle
	ch <- c.max
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.pool.Health()

	emit := func(desc *prometheus.Desc, key string) {
		if v, ok := stats[key].(int32); ok {
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v))
		}
	}
	emit(c.total, "total_conns")
	emit(c.acquired, "acquired_conns")
	emit(c.idle, "idle_conns")
	emit(c.max, "max_conns")
}
