// Package metrics exposes tool and pool metrics in the Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/litesql/dbmcp/internal/dberr"
	"github.com/litesql/dbmcp/internal/pool"
)

const namespace = "dbmcp"

type Metrics struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
}

// New builds a registry holding the tool metrics, per connection pool
// gauges read from pools at scrape time, and the Go runtime collectors.
func New(pools *pool.Set) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_invocations_total",
				Help:      "Total number of tool invocations",
			},
			[]string{"tool", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_milliseconds",
				Help:      "Tool invocation duration in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
			},
			[]string{"tool", "status"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_errors_total",
				Help:      "Total number of failed tool invocations by error kind",
			},
			[]string{"tool", "kind"},
		),
	}
	m.registry.MustRegister(
		m.invocations,
		m.duration,
		m.errors,
		newPoolCollector(pools),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveInvocation records one finished invocation. An empty kind means it
// succeeded.
func (m *Metrics) ObserveInvocation(tool string, elapsed time.Duration, kind dberr.Kind) {
	status := "succeeded"
	if kind != "" {
		status = "failed"
		m.errors.WithLabelValues(tool, string(kind)).Inc()
	}
	m.invocations.WithLabelValues(tool, status).Inc()
	m.duration.WithLabelValues(tool, status).Observe(float64(elapsed.Microseconds()) / 1000)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
