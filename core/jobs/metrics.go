package jobs

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the coordinator's Prometheus collectors.
type metrics struct {
	requests  *prometheus.CounterVec
	pipelines *prometheus.CounterVec
	duration  prometheus.Histogram
	running   prometheus.Gauge
	swept     prometheus.Counter
}

// newMetrics registers the collectors with reg. A nil reg gets a private
// registry so unexposed coordinators never collide.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "locstat",
			Name:      "requests_total",
			Help:      "Analysis requests by outcome (cached, accepted, coalesced).",
		}, []string{"outcome"}),
		pipelines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "locstat",
			Name:      "pipelines_total",
			Help:      "Completed pipelines by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "locstat",
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time from request acceptance to cached entry.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "locstat",
			Name:      "pipelines_running",
			Help:      "Pipelines currently running.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "locstat",
			Name:      "swept_trees_total",
			Help:      "Materialized trees removed by the retention sweeper.",
		}),
	}
	for _, collector := range []prometheus.Collector{m.requests, m.pipelines, m.duration, m.running, m.swept} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}
