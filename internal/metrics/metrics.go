// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's collectors. All collectors are registered on
// the registry handed to New, so tests can use an isolated registry.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	ResourcesTotal  *prometheus.CounterVec
	SpaceFreedBytes prometheus.Counter
	RunDuration     prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retention",
			Name:      "runs_total",
			Help:      "Enforcement runs by trigger and terminal status.",
		}, []string{"trigger", "status"}),
		ResourcesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "retention",
			Name:      "resources_total",
			Help:      "Per-resource action outcomes by action and result.",
		}, []string{"action", "outcome"}),
		SpaceFreedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "retention",
			Name:      "space_freed_bytes_total",
			Help:      "Bytes reclaimed by delete and export_then_delete actions.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "retention",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of enforcement runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}

	reg.MustRegister(m.RunsTotal, m.ResourcesTotal, m.SpaceFreedBytes, m.RunDuration)
	return m
}
