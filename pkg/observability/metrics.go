// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the unichat gateway.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and model.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "model"},
	)

	// RequestDuration records HTTP request duration in seconds by method and model.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unichat_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "model"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "unichat_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// BackendRequestsTotal counts requests sent to model backends.
	BackendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_backend_requests_total",
			Help: "Backend requests",
		},
		[]string{"backend", "model", "status"},
	)

	// BackendLatency records backend latency in seconds.
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unichat_backend_latency_seconds",
			Help:    "Backend latency",
			Buckets: LLMBuckets,
		},
		[]string{"backend", "model"},
	)

	// BackendTokensTotal counts tokens processed by direction (input/output).
	BackendTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_backend_tokens_total",
			Help: "Token count",
		},
		[]string{"backend", "model", "direction"},
	)

	// ModerationVerdictsTotal counts moderation outcomes by verdict.
	ModerationVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_moderation_verdicts_total",
			Help: "Moderation verdicts",
		},
		[]string{"verdict"},
	)

	// FrameBufferEvictedBytes counts bytes dropped from overflowing
	// stream frame buffers.
	FrameBufferEvictedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unichat_frame_buffer_evicted_bytes_total",
			Help: "Bytes evicted from stream frame buffers",
		},
	)

	// PipelineStageFailures counts in-band stream stage faults.
	PipelineStageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unichat_pipeline_stage_failures_total",
			Help: "Stream pipeline stage faults",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		BackendRequestsTotal,
		BackendLatency,
		BackendTokensTotal,
		ModerationVerdictsTotal,
		FrameBufferEvictedBytes,
		PipelineStageFailures,
	)
}
