package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Request lifecycle metrics
	RequestsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "axon_requests_total",
			Help: "Total number of analysis requests by state",
		},
		[]string{"state"},
	)

	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axon_decisions_total",
			Help: "Total number of approval decisions by outcome",
		},
		[]string{"outcome"},
	)

	// Job runner metrics
	JobsRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "axon_jobs_running",
			Help: "Number of jobs currently occupying an executor slot",
		},
	)

	JobsQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "axon_jobs_queued",
			Help: "Number of approved jobs waiting for an executor slot",
		},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axon_jobs_total",
			Help: "Total number of finished jobs by outcome",
		},
		[]string{"outcome"},
	)

	JobDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "axon_job_duration_seconds",
			Help:    "Wall-clock duration of finished jobs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// Privacy gate metrics
	ResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axon_results_total",
			Help: "Total number of results by gate outcome",
		},
		[]string{"outcome"},
	)

	// Upload metrics
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axon_uploads_total",
			Help: "Total number of stored uploads by kind",
		},
		[]string{"kind"},
	)

	UploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "axon_upload_bytes_total",
			Help: "Total bytes accepted by the upload store",
		},
	)

	// Catalog registry metrics
	CatalogReloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "axon_catalog_reloads_total",
			Help: "Total number of manifest reloads",
		},
	)

	// Reconciler metrics
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "axon_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "axon_reconciliation_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		DecisionsTotal,
		JobsRunning,
		JobsQueued,
		JobsTotal,
		JobDuration,
		ResultsTotal,
		UploadsTotal,
		UploadBytes,
		CatalogReloads,
		ReconciliationCyclesTotal,
		ReconciliationDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time in the given histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
