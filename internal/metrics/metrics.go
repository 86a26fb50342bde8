// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GRPCServerHandlingSeconds is a histogram for gRPC server request latencies
	GRPCServerHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "Histogram of response latency (seconds) of gRPC that had been application-level handled by the server.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "code"},
	)

	// HTTPRequestSeconds is a histogram for web and JSON API latencies
	HTTPRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latency (seconds) by route and status.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	// PredictionsTotal counts predictions by app and outcome
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Predictions served, by app and outcome (ok, cached, invalid, unavailable, failed).",
		},
		[]string{"app", "outcome"},
	)

	// InferenceBatchSize is a histogram for tracking inference batch sizes
	InferenceBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_batch_size",
			Help:    "Histogram of rows per model invocation.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		},
		[]string{"app"},
	)

	// InferenceLatencySeconds is a histogram for inference-only latency
	InferenceLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_latency_seconds",
			Help:    "Histogram of model invocation latency (seconds) excluding transport overhead.",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"app"},
	)

	// CacheLookupsTotal counts cache lookups by tier and result
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prediction_cache_lookups_total",
			Help: "Prediction cache lookups, by tier and result (hit, miss, error).",
		},
		[]string{"tier", "result"},
	)

	// ModelAvailable is 1 for each app whose model loaded
	ModelAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "model_available",
			Help: "Whether the app's model artifact loaded (1) or not (0).",
		},
		[]string{"app"},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordGRPCLatency records the latency of a gRPC method call
func RecordGRPCLatency(method, code string, seconds float64) {
	GRPCServerHandlingSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordHTTPLatency records the latency of an HTTP request
func RecordHTTPLatency(method, route, status string, seconds float64) {
	HTTPRequestSeconds.WithLabelValues(method, route, status).Observe(seconds)
}

// RecordPrediction counts one prediction outcome
func RecordPrediction(app, outcome string) {
	PredictionsTotal.WithLabelValues(app, outcome).Inc()
}

// RecordInference records the batch size and latency of one model call
func RecordInference(app string, size int, seconds float64) {
	InferenceBatchSize.WithLabelValues(app).Observe(float64(size))
	InferenceLatencySeconds.WithLabelValues(app).Observe(seconds)
}

// RecordCacheLookup counts one cache lookup
func RecordCacheLookup(tier, result string) {
	CacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// SetModelAvailable flags whether app's model is usable
func SetModelAvailable(app string, ok bool) {
	v := 0.0
	if ok {
		v = 1
	}
	ModelAvailable.WithLabelValues(app).Set(v)
}

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
