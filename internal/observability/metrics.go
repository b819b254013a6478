package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Aria.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec
	LLMCostUSDTotal    *prometheus.CounterVec

	// Tool execution metrics.
	ToolExecutionsTotal   *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec
	ProposalsTotal        *prometheus.CounterVec

	// Response cache metrics.
	CacheLookupsTotal   *prometheus.CounterVec
	CacheEvictionsTotal prometheus.Counter

	// Knowledge retrieval metrics.
	KnowledgeSearchesTotal *prometheus.CounterVec

	// Rate limiting metrics.
	RateLimitDecisionsTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM API requests.",
		}, []string{"provider", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aria",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"provider", "direction"}),

		LLMCostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Estimated LLM spend in USD.",
		}, []string{"provider", "model"}),

		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "tool",
			Name:      "executions_total",
			Help:      "Total tool executions.",
		}, []string{"tool", "status"}),

		ToolExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aria",
			Subsystem: "tool",
			Name:      "execution_duration_seconds",
			Help:      "Tool execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),

		ProposalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "tool",
			Name:      "proposals_total",
			Help:      "Total approval-gated proposals produced.",
		}, []string{"kind"}),

		CacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Response cache lookups by outcome.",
		}, []string{"result"}),

		CacheEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Response cache entries evicted at capacity.",
		}),

		KnowledgeSearchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "knowledge",
			Name:      "searches_total",
			Help:      "Knowledge base searches by outcome.",
		}, []string{"found"}),

		RateLimitDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions by operation.",
		}, []string{"operation", "result"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aria",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aria",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.LLMTokensUsed,
		m.LLMCostUSDTotal,
		m.ToolExecutionsTotal,
		m.ToolExecutionDuration,
		m.ProposalsTotal,
		m.CacheLookupsTotal,
		m.CacheEvictionsTotal,
		m.KnowledgeSearchesTotal,
		m.RateLimitDecisionsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
