package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caloriebot_http_requests_total",
			Help: "Total number of admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caloriebot_http_request_duration_seconds",
			Help:    "Admin HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caloriebot_analyses_total",
			Help: "Total number of photo analyses by outcome.",
		},
		[]string{"status"}, // ok, failed
	)

	ModelAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caloriebot_model_attempts_total",
			Help: "Total number of calls to candidate models.",
		},
		[]string{"model", "outcome"}, // outcome: ok, error
	)

	ModelAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caloriebot_model_attempt_duration_seconds",
			Help:    "Duration of a single model call in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model"},
	)

	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caloriebot_quota_decisions_total",
			Help: "Total number of quota checks by decision.",
		},
		[]string{"decision"}, // allowed, denied
	)

	PhotoHandlingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "caloriebot_photo_handling_duration_seconds",
			Help:    "End-to-end photo handling duration in seconds.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	WorkerPoolActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "caloriebot_worker_pool_active",
			Help: "Number of platform events currently being handled.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnalysesTotal,
		ModelAttemptsTotal,
		ModelAttemptDuration,
		QuotaDecisionsTotal,
		PhotoHandlingDuration,
		WorkerPoolActive,
	)
}
