package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type mergeMetrics struct {
	mergesTotal   *prometheus.CounterVec
	mergeDuration *prometheus.HistogramVec
	movedTotal    *prometheus.CounterVec
}

var mergeMetricsSingleton = sync.OnceValue(func() *mergeMetrics {
	return &mergeMetrics{
		mergesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "merges_total",
			Help:      "Identity merges by outcome.",
		}, []string{"outcome"}),
		mergeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "identity",
			Name:      "merge_duration_seconds",
			Help:      "Time spent in MergeIdentity, directory lookup included.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		movedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "identity",
			Name:      "moved_records_total",
			Help:      "Dependent records rewritten to a new national id.",
		}, []string{"kind"}),
	}
})

func getMergeMetrics() *mergeMetrics {
	return mergeMetricsSingleton()
}
