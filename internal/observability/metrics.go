package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the generation pipeline.
//
// Every recording method is a no-op on a nil receiver, so components can
// hold an optional *Metrics without guarding each call.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(reg)
//	start := time.Now()
//	resp, err := model.Generate(ctx, req)
//	metrics.LLMRequest("openai", "gpt-4o", err, time.Since(start))
type Metrics struct {
	gatherer prometheus.Gatherer

	// GenerationCounter counts generations by outcome.
	// Labels: provider, model, stage (the stage reached), status (success|error)
	GenerationCounter *prometheus.CounterVec

	// GenerationDuration measures end-to-end generation latency in seconds.
	// Labels: provider, model
	GenerationDuration *prometheus.HistogramVec

	// LLMRequestDuration measures backend call latency in seconds.
	// Labels: provider, model
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts backend calls, one per attempt.
	// Labels: provider, model, status (success|error|cancelled)
	LLMRequestCounter *prometheus.CounterVec

	// LLMRetries counts scheduled retries.
	// Labels: provider, model
	LLMRetries *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// ContextUnitsDropped counts prompt units removed by context sizing.
	// Labels: provider
	ContextUnitsDropped *prometheus.CounterVec

	// ToolExecutionCounter counts tool invocations.
	// Labels: tool_name, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, path, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg. A nil
// reg registers with prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		GenerationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgen_generations_total",
				Help: "Total number of generations by provider, model, final stage, and status",
			},
			[]string{"provider", "model", "stage", "status"},
		),

		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgen_generation_duration_seconds",
				Help:    "End-to-end duration of generations in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),

		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgen_llm_request_duration_seconds",
				Help:    "Duration of LLM API requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgen_llm_requests_total",
				Help: "Total number of LLM requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		LLMRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgen_llm_retries_total",
				Help: "Total number of retried LLM requests",
			},
			[]string{"provider", "model"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgen_llm_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		ContextUnitsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgen_context_units_dropped_total",
				Help: "Total number of prompt units removed to fit the context window",
			},
			[]string{"provider"},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "textgen_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgen_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "textgen_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// GenerationCompleted records the outcome of one generation.
func (m *Metrics) GenerationCompleted(provider, model, stage string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationCounter.WithLabelValues(provider, model, stage, status(err)).Inc()
	m.GenerationDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// LLMRequest records a single backend attempt.
//
// Example:
//
//	start := time.Now()
//	resp, err := model.Generate(ctx, req)
//	metrics.LLMRequest("bedrock", "anthropic.claude-3-haiku", err, time.Since(start))
func (m *Metrics) LLMRequest(provider, model string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status(err)).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// RetryScheduled counts a retry of a failed backend attempt.
func (m *Metrics) RetryScheduled(provider, model string) {
	if m == nil {
		return
	}
	m.LLMRetries.WithLabelValues(provider, model).Inc()
}

// TokensUsed adds reported token usage.
func (m *Metrics) TokensUsed(provider, model string, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// ContextSized records how many prompt units sizing removed.
func (m *Metrics) ContextSized(provider string, dropped int) {
	if m == nil || dropped <= 0 {
		return
	}
	m.ContextUnitsDropped.WithLabelValues(provider).Add(float64(dropped))
}

// ToolExecuted records a tool execution.
func (m *Metrics) ToolExecuted(toolName string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status(err)).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(d.Seconds())
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(d.Seconds())
}

func status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
