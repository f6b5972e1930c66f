package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Path labels of DiagnosesTotal.
const (
	PathModel       = "model"
	PathFallback    = "fallback"
	PathSchemaError = "schema_error"
)

// Copilot service metrics for production monitoring
var (
	// Diagnosis metrics
	DiagnosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_diagnoses_total",
			Help: "Total number of diagnoses by model tier and answer path",
		},
		[]string{"tier", "path"}, // path: model/fallback/schema_error
	)

	DiagnoseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_diagnose_duration_seconds",
			Help:    "End-to-end diagnosis pipeline duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"tier"},
	)

	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_fallbacks_total",
			Help: "Diagnoses answered by deterministic synthesis, by reason",
		},
		[]string{"reason"},
	)

	FollowUpViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_followup_invariant_violations_total",
			Help: "Model replies below the follow-up threshold that carried no follow-up question",
		},
	)

	Confidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_confidence",
			Help:    "Confidence of returned diagnoses",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 0.85, 0.9, 0.95, 1},
		},
	)

	// Retrieval and context metrics
	RetrievedSnippets = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_retrieved_snippets",
			Help:    "Number of similarity-ranked snippets added to a prompt",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
	)

	ContextSnippets = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "copilot_context_snippets",
			Help:    "Number of line-window snippets added to a prompt",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_llm_requests_total",
			Help: "Total number of LLM API requests",
		},
		[]string{"provider", "model", "status"},
	)

	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "copilot_model_call_duration_seconds",
			Help:    "LLM request duration in seconds by model tier",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"tier"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_tokens_total",
			Help: "Approximate whitespace tokens processed",
		},
		[]string{"type"}, // type: prompt/completion
	)

	// Persistence metrics
	MetricsAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_metrics_append_failures_total",
			Help: "Metrics records that could not be persisted",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "copilot_http_requests_total",
			Help: "Total HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "copilot_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
