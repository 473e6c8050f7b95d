package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/textgen/internal/backoff"
	ctxwindow "github.com/haasonsaas/textgen/internal/context"
	"github.com/haasonsaas/textgen/internal/observability"
	"github.com/haasonsaas/textgen/internal/prompt"
	"github.com/haasonsaas/textgen/internal/ratelimit"
	"github.com/haasonsaas/textgen/internal/retry"
	"github.com/haasonsaas/textgen/pkg/models"
)

// Stage names a step of a single generation request.
type Stage string

const (
	StageValidating     Stage = "validating"
	StageSizing         Stage = "sizing"
	StageCalling        Stage = "calling"
	StageParsingTools   Stage = "parsing_tools"
	StageExecutingTools Stage = "executing_tools"
	StageAssembled      Stage = "assembled"
)

// GenerateParams is one generation request.
type GenerateParams struct {
	prompt.Input

	// Tools are offered to the model. Names must be unique.
	Tools []Tool

	Settings CallSettings

	// MaxRetries overrides the generator default when set.
	MaxRetries *int

	// ContextHandler enables context window sizing against the model's
	// advertised window.
	ContextHandler *ctxwindow.Handler
}

// GenerateResult is the assembled outcome of a successful request.
type GenerateResult struct {
	// Text is the generated text, empty when the model produced none.
	Text         string              `json:"text"`
	ToolCalls    []models.ToolCall   `json:"tool_calls"`
	ToolResults  []models.ToolResult `json:"tool_results"`
	FinishReason models.FinishReason `json:"finish_reason"`
	Usage        models.Usage        `json:"usage"`
	Warnings     []models.Warning    `json:"warnings,omitempty"`
	RawResponse  *RawResponse        `json:"raw_response,omitempty"`
	LogProbs     []models.LogProb    `json:"logprobs,omitempty"`

	// ContextWindow describes budget usage when sizing ran.
	ContextWindow *ctxwindow.WindowInfo `json:"context_window,omitempty"`
}

// Options configures a Generator. Zero values fall back to defaults.
type Options struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	ToolExec ToolExecConfig

	// MaxRetries is the default number of retries after the first backend
	// call. Nil means retry.DefaultMaxRetries.
	MaxRetries *int

	// RetryPolicy computes waits between backend attempts.
	RetryPolicy backoff.Policy

	// Limiter, if set, is waited on before every backend attempt.
	Limiter *ratelimit.Limiter
}

// Generator drives the generation pipeline for one language model:
// validation, sizing, backend call with retry, tool parsing and execution.
// It is safe for concurrent use.
type Generator struct {
	model    LanguageModel
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	executor *ToolExecutor
	retries  int
	policy   backoff.Policy
	limiter  *ratelimit.Limiter
}

// NewGenerator creates a generator for model.
func NewGenerator(model LanguageModel, opts Options) *Generator {
	g := &Generator{
		model:    model,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		executor: NewToolExecutor(opts.ToolExec),
		retries:  retry.DefaultMaxRetries,
		policy:   opts.RetryPolicy.WithDefaults(),
		limiter:  opts.Limiter,
	}
	if opts.MaxRetries != nil {
		g.retries = *opts.MaxRetries
	}
	if g.logger == nil {
		g.logger = observability.NewLogger(observability.LogConfig{Level: "warn"})
	}
	if g.tracer == nil {
		g.tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "textgen"})
	}
	g.executor.WithMetrics(g.metrics).WithTracer(g.tracer)
	return g
}

// Model returns the language model the generator drives.
func (g *Generator) Model() LanguageModel {
	return g.model
}

// GenerateText runs a single request against model with default options.
func GenerateText(ctx context.Context, model LanguageModel, params GenerateParams) (*GenerateResult, error) {
	return NewGenerator(model, Options{}).Generate(ctx, params)
}

// Generate runs one request through the pipeline. It either returns a
// complete result or exactly one error; partial results are never returned.
func (g *Generator) Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	if g.model == nil {
		return nil, ErrNoModel
	}
	if observability.GetRequestID(ctx) == "" {
		ctx = observability.AddRequestID(ctx, uuid.NewString())
	}

	provider, modelID := g.model.Provider(), g.model.ModelID()
	ctx, span := g.tracer.TraceGeneration(ctx, provider, modelID)
	defer span.End()

	start := time.Now()
	result, stage, err := g.generate(ctx, params)
	g.metrics.GenerationCompleted(provider, modelID, string(stage), err, time.Since(start))

	if err != nil {
		g.tracer.RecordError(span, err)
		g.tracer.SetAttributes(span, "generation.failed_stage", string(stage))
		g.logger.Warn(ctx, "generation failed",
			"provider", provider,
			"model", modelID,
			"stage", string(stage),
			"error", err,
		)
		return nil, err
	}

	g.metrics.TokensUsed(provider, modelID, result.Usage.PromptTokens, result.Usage.CompletionTokens)
	g.tracer.SetAttributes(span,
		"llm.finish_reason", string(result.FinishReason),
		"llm.tokens.total", result.Usage.TotalTokens,
		"generation.tool_calls", len(result.ToolCalls),
	)
	g.logger.Info(ctx, "generation completed",
		"provider", provider,
		"model", modelID,
		"finish_reason", string(result.FinishReason),
		"tool_calls", len(result.ToolCalls),
		"total_tokens", result.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// generate returns the stage reached together with the outcome.
func (g *Generator) generate(ctx context.Context, params GenerateParams) (*GenerateResult, Stage, error) {
	stage := StageValidating
	g.logger.Debug(ctx, "generation stage", "stage", string(stage))

	validated, err := prompt.Validate(params.Input)
	if err != nil {
		return nil, stage, err
	}
	if err := params.Settings.Validate(); err != nil {
		return nil, stage, err
	}
	tools, err := NewToolSet(params.Tools...)
	if err != nil {
		return nil, stage, err
	}

	var window *ctxwindow.WindowInfo
	if params.ContextHandler != nil {
		stage = StageSizing
		g.logger.Debug(ctx, "generation stage", "stage", string(stage),
			"strategy", string(params.ContextHandler.EffectiveStrategy()))

		budget := ctxwindow.NoBudget
		if n, ok := g.model.ContextWindow(); ok {
			budget = n
		}
		validated, window, err = ctxwindow.SizeWithInfo(ctx, validated, params.ContextHandler, budget)
		if err != nil {
			return nil, stage, err
		}
		if window != nil {
			g.metrics.ContextSized(g.model.Provider(), window.Dropped())
			g.logger.Debug(ctx, "prompt sized",
				"window", window.String(),
				"dropped_units", window.Dropped(),
			)
		}
	}

	stage = StageCalling
	g.logger.Debug(ctx, "generation stage", "stage", string(stage))
	resp, err := g.call(ctx, params, &GenerateRequest{
		Mode:        Mode{Type: ModeRegular, Tools: tools.Definitions()},
		InputFormat: validated.Kind,
		System:      validated.System,
		Messages:    validated.Conversation(),
		Settings:    params.Settings,
	})
	if err != nil {
		return nil, stage, err
	}

	stage = StageParsingTools
	calls, err := ParseToolCalls(resp.ToolCalls, tools)
	if err != nil {
		return nil, stage, err
	}

	stage = StageExecutingTools
	if len(calls) > 0 {
		g.logger.Debug(ctx, "generation stage", "stage", string(stage), "tool_calls", len(calls))
	}
	results, err := g.executor.Execute(ctx, calls, tools)
	if err != nil {
		return nil, stage, err
	}

	text := ""
	if resp.Text != nil {
		text = *resp.Text
	}
	if calls == nil {
		calls = []models.ToolCall{}
	}
	if results == nil {
		results = []models.ToolResult{}
	}

	return &GenerateResult{
		Text:          text,
		ToolCalls:     calls,
		ToolResults:   results,
		FinishReason:  resp.FinishReason,
		Usage:         resp.Usage,
		Warnings:      resp.Warnings,
		RawResponse:   resp.RawResponse,
		LogProbs:      resp.LogProbs,
		ContextWindow: window,
	}, StageAssembled, nil
}

// call invokes the backend under the retry executor.
func (g *Generator) call(ctx context.Context, params GenerateParams, req *GenerateRequest) (*GenerateResponse, error) {
	provider, modelID := g.model.Provider(), g.model.ModelID()

	retries := g.retries
	if params.MaxRetries != nil {
		retries = *params.MaxRetries
	}
	cfg := retry.FromMaxRetries(retries)
	cfg.Policy = g.policy
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.metrics.RetryScheduled(provider, modelID)
		g.logger.Warn(ctx, "backend call failed, retrying",
			"provider", provider,
			"model", modelID,
			"attempt", attempt,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
	}

	resp, result := retry.DoWithValue(ctx, cfg, func(ctx context.Context) (*GenerateResponse, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx, provider); err != nil {
				return nil, err
			}
		}

		callCtx, span := g.tracer.TraceLLMRequest(ctx, provider, modelID)
		defer span.End()

		start := time.Now()
		resp, err := g.model.Generate(callCtx, req)
		if err == nil && resp == nil {
			err = retry.Permanent(fmt.Errorf("%s returned an empty response", provider))
		}
		g.metrics.LLMRequest(provider, modelID, err, time.Since(start))
		if err != nil {
			g.tracer.RecordError(span, err)
		}
		return resp, err
	})
	if result.Err != nil {
		var cancelled *retry.CancelledError
		if errors.As(result.Err, &cancelled) {
			g.logger.Debug(ctx, "backend call cancelled", "attempts", cancelled.Attempts)
		}
		return nil, result.Err
	}
	g.logger.Debug(ctx, "backend call succeeded", "attempts", result.Attempts)
	return resp, nil
}
