package ingestion

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	recordsTotal  *prometheus.CounterVec
	backoffTotal  *prometheus.CounterVec
	handleLatency *prometheus.HistogramVec

	lastEventTimestamp *prometheus.GaugeVec
	state              *prometheus.GaugeVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		recordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "records_total",
			Help:      "Total number of records handled.",
		}, []string{"topic", "result"}),
		backoffTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestion",
			Name:      "backoff_total",
			Help:      "Total number of transient failures that triggered a backoff.",
		}, []string{"topic"}),
		handleLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ingestion",
			Name:      "handle_latency_seconds",
			Help:      "Latency distribution for record handlers.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"topic", "result"}),
		lastEventTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ingestion",
			Name:      "last_event_timestamp_seconds",
			Help:      "Timestamp of the last handled record.",
		}, []string{"topic"}),
		state: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ingestion",
			Name:      "loop_state",
			Help:      "Current loop state (0 idle, 1 subscribed, 2 polling, 3 processing, 4 backoff, 5 stopped).",
		}, []string{"topic"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
