// Package metrics holds the Prometheus collectors shared by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Detections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spad",
			Name:      "detections_total",
			Help:      "Completed detections by predicted label.",
		},
		[]string{"label", "cached"},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "spad",
			Subsystem: "extractor",
			Name:      "duration_seconds",
			Help:      "Wall time of the external feature extractor.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	ExtractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spad",
			Subsystem: "extractor",
			Name:      "failures_total",
			Help:      "Extractor failures by reason.",
		},
		[]string{"reason"},
	)

	ExtractionsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "spad",
			Subsystem: "extractor",
			Name:      "in_flight",
			Help:      "Extractor processes currently running.",
		},
	)

	ModelLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spad",
			Subsystem: "registry",
			Name:      "model_loads_total",
			Help:      "Model resolutions by outcome.",
		},
		[]string{"model", "outcome"},
	)

	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "spad",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Result cache lookups by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	// Safe register; ignore duplicate registration in case of multiple imports
	_ = prometheus.Register(Detections)
	_ = prometheus.Register(ExtractionDuration)
	_ = prometheus.Register(ExtractionFailures)
	_ = prometheus.Register(ExtractionsInFlight)
	_ = prometheus.Register(ModelLoads)
	_ = prometheus.Register(CacheLookups)
}
