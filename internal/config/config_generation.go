package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/backoff"
	ctxwindow "github.com/haasonsaas/textgen/internal/context"
)

// GenerationConfig holds request defaults. Sampling settings given on the
// command line or in a request body take precedence.
type GenerationConfig struct {
	// MaxRetries is the number of retries after the first backend call.
	// Default: 2.
	MaxRetries *int `yaml:"max_retries"`

	agent.CallSettings `yaml:",inline"`
}

func (g GenerationConfig) validate() error {
	if g.MaxRetries != nil && *g.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", *g.MaxRetries)
	}
	return g.CallSettings.Validate()
}

// ContextWindowConfig selects how prompts are fitted to the model's window.
type ContextWindowConfig struct {
	// Strategy is one of none, remove, error or summarize. Default: remove.
	// The custom strategy needs a Go handler and cannot be configured here.
	Strategy string `yaml:"strategy" json:"strategy,omitempty"`

	// Tokenizer is basic (split on spaces) or approx (about four characters
	// per token). Default: approx.
	Tokenizer string `yaml:"tokenizer" json:"tokenizer,omitempty"`
}

func (c ContextWindowConfig) validate() error {
	strategy, err := ctxwindow.ParseStrategy(c.Strategy)
	if err != nil {
		return err
	}
	if strategy == ctxwindow.StrategyCustom {
		return errors.New("strategy custom requires a programmatic handler")
	}
	if _, ok := ctxwindow.TokenizerByName(c.Tokenizer); !ok {
		return fmt.Errorf("unknown tokenizer %q", c.Tokenizer)
	}
	return nil
}

// Handler builds the sizing handler. It returns nil when sizing is off.
func (c ContextWindowConfig) Handler() (*ctxwindow.Handler, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	strategy, _ := ctxwindow.ParseStrategy(c.Strategy)
	if strategy == ctxwindow.StrategyNone {
		return nil, nil
	}
	tok, _ := ctxwindow.TokenizerByName(c.Tokenizer)
	return &ctxwindow.Handler{Tokenizer: tok, Strategy: strategy}, nil
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// Concurrency caps parallel tool executions. Zero runs every call at once.
	Concurrency int `yaml:"concurrency"`

	// Timeout bounds each tool execution. Zero leaves only the request deadline.
	Timeout time.Duration `yaml:"timeout"`
}

func (t ToolsConfig) validate() error {
	if t.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", t.Concurrency)
	}
	if t.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", t.Timeout)
	}
	return nil
}

// ExecConfig converts to the executor configuration.
func (t ToolsConfig) ExecConfig() agent.ToolExecConfig {
	return agent.ToolExecConfig{Concurrency: t.Concurrency, PerToolTimeout: t.Timeout}
}

// RetryConfig configures waits between backend attempts. Explicit fields
// override the named preset.
type RetryConfig struct {
	// Preset is generation (default), aggressive or conservative.
	Preset string `yaml:"preset"`

	backoff.Policy `yaml:",inline"`
}

func (r RetryConfig) validate() error {
	if _, ok := backoff.Named(r.Preset); !ok {
		return fmt.Errorf("unknown preset %q", r.Preset)
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1, got %v", r.Jitter)
	}
	if r.InitialMs < 0 || r.MaxMs < 0 || r.Factor < 0 {
		return errors.New("initial_ms, max_ms and factor must not be negative")
	}
	return nil
}

// BackoffPolicy resolves the preset and applies explicit overrides.
func (r RetryConfig) BackoffPolicy() backoff.Policy {
	policy, ok := backoff.Named(r.Preset)
	if !ok {
		policy = backoff.Generation()
	}
	if r.InitialMs > 0 {
		policy.InitialMs = r.InitialMs
	}
	if r.MaxMs > 0 {
		policy.MaxMs = r.MaxMs
	}
	if r.Factor > 0 {
		policy.Factor = r.Factor
	}
	if r.Jitter > 0 {
		policy.Jitter = r.Jitter
	}
	return policy
}
