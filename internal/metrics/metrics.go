// Package metrics holds the Prometheus collectors the service exports on
// /metrics. Collectors register into the default registry, which is also
// where the OTel bridge exporter lands, so one endpoint serves both.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestInFlight tracks requests currently being served.
	HTTPRequestInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "eval_forge_http_requests_in_flight",
		Help: "Number of HTTP requests currently being served.",
	})

	// HTTPRequestDuration observes request latency per method, endpoint and
	// status code.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eval_forge_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// HTTPRequestTotal counts served requests per method, endpoint and
	// status code.
	HTTPRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eval_forge_http_requests_total",
		Help: "Total number of HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	// TaskOutcomes counts finished evaluation tasks per launcher and
	// terminal state.
	TaskOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eval_forge_task_outcomes_total",
		Help: "Total number of evaluation tasks by launcher and terminal state.",
	}, []string{"launcher", "state"})

	// TaskDuration observes how long one task took from start to terminal
	// state, per launcher.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eval_forge_task_duration_seconds",
		Help:    "Evaluation task duration in seconds.",
		Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
	}, []string{"launcher"})

	// JobsSubmitted counts accepted job submissions.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "eval_forge_jobs_submitted_total",
		Help: "Total number of accepted evaluation job submissions.",
	})
)
