package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbrain_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finbrain_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	WorkflowRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbrain_workflow_runs_total",
			Help: "Total number of research workflow runs.",
		},
		[]string{"status"},
	)

	WorkflowStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "finbrain_workflow_stage_duration_seconds",
			Help:    "Duration of each research workflow stage in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	LLMCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbrain_llm_calls_total",
			Help: "Total number of completion and embedding calls.",
		},
		[]string{"kind", "status"},
	)

	RateLimitAdmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "finbrain_ratelimit_admitted_total",
			Help: "Total number of calls admitted by the completion rate limiter.",
		},
	)

	RateLimitWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "finbrain_ratelimit_wait_seconds",
			Help:    "Time callers spent waiting for a rate limiter slot.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	MemoryWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "finbrain_memory_writes_total",
			Help: "Total number of long-term memory block writes.",
		},
		[]string{"block", "status"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "finbrain_active_sessions",
			Help: "Number of sessions with a live memory manager.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		WorkflowRunsTotal,
		WorkflowStageDuration,
		LLMCallsTotal,
		RateLimitAdmittedTotal,
		RateLimitWaitSeconds,
		MemoryWritesTotal,
		ActiveSessions,
	)
}
