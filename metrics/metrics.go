// Package metrics exposes the salt server's Prometheus metrics.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the salt server collectors, registered on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	SaltSetsServed   prometheus.Counter
	SaltErrors       prometheus.Counter
	RequestDurations *prometheus.HistogramVec
}

// NewMetrics creates the collectors under namespace, plus the Go runtime
// and process collectors.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		SaltSetsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salt_sets_served_total",
			Help:      "Number of salt documents served.",
		}),
		SaltErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "salt_generation_errors_total",
			Help:      "Number of salt documents that could not be generated.",
		}),
		RequestDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.Registry.MustRegister(
		m.SaltSetsServed,
		m.SaltErrors,
		m.RequestDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Namespace turns a service name into a metric namespace, e.g. "salt-server" → "salt_server".
func Namespace(service string) string {
	return strings.ReplaceAll(strings.ToLower(service), "-", "_")
}
