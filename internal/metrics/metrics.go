// Package metrics declares the Prometheus collectors for pipeline runs and
// the status API. Collectors register with the default registry; expose them
// with promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeDegraded  = "degraded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// Pipeline metrics
var (
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidshrink_jobs_total",
			Help: "Jobs finished, by outcome",
		},
		[]string{"outcome"},
	)

	BytesSavedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vidshrink_bytes_saved_total",
			Help: "Bytes saved by completed jobs",
		},
	)

	EncodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidshrink_encode_duration_seconds",
			Help:    "Wall-clock duration of encoder runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	QualityScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vidshrink_quality_score",
			Help:    "SSIM between source and encoded output",
			Buckets: []float64{0.8, 0.85, 0.9, 0.925, 0.95, 0.965, 0.98, 0.99, 1},
		},
	)

	EncodesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vidshrink_encodes_in_flight",
			Help: "Encoder processes currently running",
		},
	)
)

// HTTP metrics for the status API
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vidshrink_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vidshrink_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordJob counts a finished job and, for completed ones, the bytes saved.
func RecordJob(outcome string, savedBytes int64) {
	JobsTotal.WithLabelValues(outcome).Inc()
	if savedBytes > 0 {
		BytesSavedTotal.Add(float64(savedBytes))
	}
}
