// Package observability provides the logging, metrics and tracing used by
// the generation pipeline.
//
// # Logging
//
// Logger wraps slog with request correlation and redaction of secrets such
// as provider API keys:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "debug", Format: "text"})
//	ctx = observability.AddRequestID(ctx, "req-123")
//	logger.Info(ctx, "generation completed", "provider", "openai")
//
// # Metrics
//
// Metrics registers Prometheus collectors against a caller-supplied
// registerer so tests and embedders can keep them isolated. All recording
// methods are safe to call on a nil *Metrics.
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.LLMRequest("anthropic", "claude-sonnet-4", err, time.Since(start))
//
// # Tracing
//
// Tracer creates OpenTelemetry spans for generations, backend calls and
// tool executions. Without an OTLP endpoint it falls back to the global
// (no-op by default) provider.
package observability
