package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/litesql/dbmcp/internal/pool"
)

var (
	poolConnectionsDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "connections"),
		"Pooled connections by state",
		[]string{"connection", "driver", "state"}, nil,
	)
	poolMaxDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "max_connections"),
		"Configured maximum pool size",
		[]string{"connection", "driver"}, nil,
	)
	poolAcquireDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "acquire_total"),
		"Successful connection acquisitions",
		[]string{"connection", "driver"}, nil,
	)
	poolCanceledDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "acquire_canceled_total"),
		"Acquisitions canceled or timed out",
		[]string{"connection", "driver"}, nil,
	)
	poolDiscardedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "pool", "discarded_total"),
		"Broken connections removed from the pool",
		[]string{"connection", "driver"}, nil,
	)
)

// poolCollector samples pool statistics on every scrape, so connections
// opened or closed at runtime need no registration.
type poolCollector struct {
	pools *pool.Set
}

func newPoolCollector(pools *pool.Set) *poolCollector {
	return &poolCollector{pools: pools}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- poolConnectionsDesc
	ch <- poolMaxDesc
	ch <- poolAcquireDesc
	ch <- poolCanceledDesc
	ch <- poolDiscardedDesc
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.pools.All() {
		name, driver := m.Name(), m.Dialect().Name()
		s := m.Stat()
		ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(s.Idle), name, driver, "idle")
		ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(s.InUse), name, driver, "in_use")
		ch <- prometheus.MustNewConstMetric(poolConnectionsDesc, prometheus.GaugeValue, float64(s.Constructing), name, driver, "constructing")
		ch <- prometheus.MustNewConstMetric(poolMaxDesc, prometheus.GaugeValue, float64(s.Max), name, driver)
		ch <- prometheus.MustNewConstMetric(poolAcquireDesc, prometheus.CounterValue, float64(s.AcquireCount), name, driver)
		ch <- prometheus.MustNewConstMetric(poolCanceledDesc, prometheus.CounterValue, float64(s.Canceled), name, driver)
		ch <- prometheus.MustNewConstMetric(poolDiscardedDesc, prometheus.CounterValue, float64(s.Discarded), name, driver)
	}
}
