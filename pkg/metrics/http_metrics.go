// Package metrics provides Prometheus metrics for monitoring PromptDeck components.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// HTTP and generation metrics
var (
	// httpRequestsTotal records the total number of handled HTTP requests.
	// Labels:
	//   - method: HTTP method (e.g., "GET", "POST")
	//   - path: route pattern (e.g., "/api/v1/prompts/:id")
	//   - status: response status code (e.g., "200", "404")
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of handled HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration records the duration of handled HTTP requests.
	// Labels:
	//   - method: HTTP method
	//   - path: route pattern
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of handled HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	// generationCallsTotal records calls made to the text-generation provider.
	// Labels:
	//   - stage: pipeline stage (e.g., "idea", "content")
	//   - status: call outcome (e.g., "success", "failed", "parse_error")
	generationCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "generation_calls_total",
			Help: "Total number of text-generation provider calls",
		},
		[]string{"stage", "status"},
	)

	// generationCallDuration records the duration of provider calls.
	// Buckets skew long: generation calls routinely take tens of seconds.
	generationCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "generation_call_duration_seconds",
			Help:    "Duration of text-generation provider calls in seconds",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(generationCallsTotal)
	prometheus.MustRegister(generationCallDuration)
}

// RecordHTTPRequest records one handled HTTP request.
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// RecordGenerationCall records one provider call for a pipeline stage.
func RecordGenerationCall(stage, status string, durationSeconds float64) {
	generationCallsTotal.WithLabelValues(stage, status).Inc()
	generationCallDuration.WithLabelValues(stage).Observe(durationSeconds)
}
