package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracerFromProvider(tp, "test"), exporter
}

func TestNewTracer(t *testing.T) {
	tests := []struct {
		name   string
		config TraceConfig
	}{
		{
			name:   "without endpoint",
			config: TraceConfig{ServiceName: "test-service"},
		},
		{
			name:   "default service name",
			config: TraceConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, shutdown := NewTracer(tt.config)
			defer func() { _ = shutdown(context.Background()) }()

			if tracer == nil || tracer.tracer == nil {
				t.Fatal("NewTracer() returned an unusable tracer")
			}
			if tracer.config.ServiceName == "" {
				t.Error("service name not defaulted")
			}
		})
	}
}

func TestTraceGeneration(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	ctx := AddRequestID(context.Background(), "req-9")
	ctx, span := tracer.TraceGeneration(ctx, "openai", "gpt-4o")
	_, child := tracer.TraceLLMRequest(ctx, "openai", "gpt-4o")
	child.End()
	tracer.SetAttributes(span, "llm.tokens.total", 12, "llm.finish_reason", "stop", 42, "ignored")
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	llm, gen := spans[0], spans[1]
	if gen.Name != "generate" {
		t.Errorf("root span name = %q", gen.Name)
	}
	if llm.Name != "llm.openai" || llm.SpanKind != trace.SpanKindClient {
		t.Errorf("llm span = %q kind %v", llm.Name, llm.SpanKind)
	}
	if llm.Parent.SpanID() != gen.SpanContext.SpanID() {
		t.Error("llm span is not a child of the generation span")
	}

	got := map[attribute.Key]attribute.Value{}
	for _, kv := range gen.Attributes {
		got[kv.Key] = kv.Value
	}
	if got["request_id"].AsString() != "req-9" {
		t.Errorf("request_id attribute = %v", got["request_id"])
	}
	if got["llm.tokens.total"].AsInt64() != 12 {
		t.Errorf("llm.tokens.total = %v", got["llm.tokens.total"])
	}
	if got["llm.finish_reason"].AsString() != "stop" {
		t.Errorf("llm.finish_reason = %v", got["llm.finish_reason"])
	}
}

func TestTracerRecordError(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	_, span := tracer.TraceToolExecution(context.Background(), "weather", "call-1")
	tracer.RecordError(span, nil)
	tracer.RecordError(span, errors.New("tool failed"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status.Code != codes.Error || spans[0].Status.Description != "tool failed" {
		t.Errorf("status = %+v", spans[0].Status)
	}
	if len(spans[0].Events) != 1 {
		t.Errorf("expected one error event, got %d", len(spans[0].Events))
	}
}

func TestAddEvent(t *testing.T) {
	tracer, exporter := newRecordingTracer(t)

	_, span := tracer.Start(context.Background(), "op")
	tracer.AddEvent(span, "retry", "attempt", 2)
	span.End()

	events := exporter.GetSpans()[0].Events
	if len(events) != 1 || events[0].Name != "retry" {
		t.Fatalf("events = %+v", events)
	}
}

func TestGetTraceID(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID(empty) = %q", id)
	}

	tracer, _ := newRecordingTracer(t)
	ctx, span := tracer.TraceHTTPRequest(context.Background(), "POST", "/v1/generate")
	defer span.End()
	if id := GetTraceID(ctx); len(id) != 32 {
		t.Errorf("GetTraceID() = %q, want 32 hex chars", id)
	}
}

func TestAttributeFromValue(t *testing.T) {
	tests := []struct {
		val  any
		want attribute.Type
	}{
		{"s", attribute.STRING},
		{1, attribute.INT64},
		{int64(1), attribute.INT64},
		{1.5, attribute.FLOAT64},
		{true, attribute.BOOL},
		{[]string{"a"}, attribute.STRINGSLICE},
		{struct{}{}, attribute.STRING},
	}
	for _, tt := range tests {
		if got := attributeFromValue("k", tt.val).Value.Type(); got != tt.want {
			t.Errorf("attributeFromValue(%T) type = %v, want %v", tt.val, got, tt.want)
		}
	}
}
