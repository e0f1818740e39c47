// Package metrics exposes Prometheus collectors for the HTTP surface and the
// extraction and search pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquery",
			Name:      "extractions_total",
			Help:      "Extraction runs by outcome",
		},
		[]string{"outcome"}, // completed / degraded / failed / rejected
	)

	SearchDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docquery",
			Name:      "search_documents_total",
			Help:      "Per-document search calls by outcome",
		},
		[]string{"outcome"}, // answered / skipped / timeout / error
	)

	InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docquery",
			Name:      "inference_duration_seconds",
			Help:      "Generative inference call duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"operation"},
	)
)

func init() {
	prometheus.MustRegister(ExtractionsTotal)
	prometheus.MustRegister(SearchDocumentsTotal)
	prometheus.MustRegister(InferenceDuration)
}

// ObserveInference records the duration of one inference call.
func ObserveInference(operation string, start time.Time) {
	InferenceDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
