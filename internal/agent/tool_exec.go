package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/textgen/internal/observability"
	"github.com/haasonsaas/textgen/pkg/models"
)

// ToolExecConfig configures tool execution behavior. The zero value runs
// every executable at once with no deadline beyond the caller's context.
type ToolExecConfig struct {
	// Concurrency caps concurrent tool executions. Zero means no cap.
	Concurrency int `yaml:"concurrency"`

	// PerToolTimeout bounds each tool execution. Zero means no timeout.
	PerToolTimeout time.Duration `yaml:"timeout"`
}

// ToolExecutor runs tool executables concurrently and returns their results
// in call order.
type ToolExecutor struct {
	config  ToolExecConfig
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// NewToolExecutor creates a tool executor. Negative bounds are treated as
// unset.
func NewToolExecutor(config ToolExecConfig) *ToolExecutor {
	if config.Concurrency < 0 {
		config.Concurrency = 0
	}
	if config.PerToolTimeout < 0 {
		config.PerToolTimeout = 0
	}
	return &ToolExecutor{config: config}
}

// WithMetrics records per-tool counters and latencies into m.
func (e *ToolExecutor) WithMetrics(m *observability.Metrics) *ToolExecutor {
	e.metrics = m
	return e
}

// WithTracer wraps every execution in a span.
func (e *ToolExecutor) WithTracer(t *observability.Tracer) *ToolExecutor {
	e.tracer = t
	return e
}

// Config returns the effective configuration.
func (e *ToolExecutor) Config() ToolExecConfig {
	return e.config
}

// Execute runs the executable of every call whose tool declares one.
//
// Results keep the order of calls, skipping call-only tools. The first
// failure cancels the remaining executions and is returned without any
// results.
func (e *ToolExecutor) Execute(ctx context.Context, calls []models.ToolCall, tools *ToolSet) ([]models.ToolResult, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	// Parsed calls always name a declared tool; direct callers may not.
	resolved := make([]Tool, len(calls))
	for i, call := range calls {
		tool, ok := tools.Get(call.Name)
		if !ok {
			return nil, &UnknownToolError{ToolName: call.Name, Available: tools.Names()}
		}
		resolved[i] = tool
	}

	slots := make([]*models.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	if e.config.Concurrency > 0 {
		g.SetLimit(e.config.Concurrency)
	}

	for i, call := range calls {
		tool := resolved[i]
		if tool.Execute == nil {
			continue
		}

		g.Go(func() error {
			toolCtx := gctx
			if e.tracer != nil {
				var span trace.Span
				toolCtx, span = e.tracer.TraceToolExecution(gctx, call.Name, call.ID)
				defer span.End()
			}

			start := time.Now()
			value, err := e.executeOne(toolCtx, tool, call)
			e.metrics.ToolExecuted(call.Name, err, time.Since(start))
			if err != nil {
				if e.tracer != nil {
					e.tracer.RecordError(trace.SpanFromContext(toolCtx), err)
				}
				return err
			}
			slots[i] = &models.ToolResult{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Args:       call.Args,
				Result:     value,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]models.ToolResult, 0, len(calls))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results, nil
}

// executeOne runs a single tool, bounded by the per-tool timeout when one is
// set, and converts panics into errors.
func (e *ToolExecutor) executeOne(ctx context.Context, tool Tool, call models.ToolCall) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ToolError{Type: ToolErrorCancelled, ToolName: call.Name, ToolCallID: call.ID, Cause: err}
	}

	var (
		toolCtx context.Context
		cancel  context.CancelFunc
	)
	if e.config.PerToolTimeout > 0 {
		toolCtx, cancel = context.WithTimeout(ctx, e.config.PerToolTimeout)
	} else {
		toolCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	toolCtx = observability.AddToolCallID(toolCtx, call.ID)

	type execResult struct {
		value any
		err   error
	}
	done := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("%w: %v", ErrToolPanic, r)}
			}
		}()
		value, err := tool.Execute(toolCtx, call.Args)
		if toolCtx.Err() != nil {
			slog.Warn(
				"tool execution completed after timeout, result discarded",
				"tool", call.Name,
				"tool_call_id", call.ID,
				"request_id", observability.GetRequestID(ctx),
			)
		}
		done <- execResult{value: value, err: err}
	}()

	select {
	case <-toolCtx.Done():
		return nil, e.interrupted(ctx, toolCtx, call)
	case res := <-done:
		if res.err == nil {
			return res.value, nil
		}
		if toolCtx.Err() != nil {
			// The tool gave up because its context ended.
			return nil, e.interrupted(ctx, toolCtx, call)
		}
		errType := ToolErrorExecution
		if errors.Is(res.err, ErrToolPanic) {
			errType = ToolErrorPanic
		}
		return nil, &ToolError{Type: errType, ToolName: call.Name, ToolCallID: call.ID, Cause: res.err}
	}
}

// interrupted classifies an execution cut short by its context.
func (e *ToolExecutor) interrupted(ctx, toolCtx context.Context, call models.ToolCall) error {
	if ctx.Err() == nil && errors.Is(toolCtx.Err(), context.DeadlineExceeded) {
		return &ToolError{
			Type:       ToolErrorTimeout,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Cause:      fmt.Errorf("%w after %v", ErrToolTimeout, e.config.PerToolTimeout),
		}
	}
	return &ToolError{Type: ToolErrorCancelled, ToolName: call.Name, ToolCallID: call.ID, Cause: ctx.Err()}
}
