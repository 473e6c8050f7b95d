package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/textgen/internal/prompt"
)

// Strategy defines what happens when a prompt does not fit the budget.
type Strategy string

const (
	// StrategyNone disables sizing entirely.
	StrategyNone Strategy = "none"

	// StrategyRemove drops the oldest units that do not fit.
	StrategyRemove Strategy = "remove"

	// StrategyError fails instead of truncating.
	StrategyError Strategy = "error"

	// StrategySummarize is reserved. A prompt that fits passes through
	// unchanged; the first unit that overflows fails with
	// UnsupportedStrategyError instead of being summarized.
	StrategySummarize Strategy = "summarize"

	// StrategyCustom delegates overflow decisions to a CustomHandler.
	StrategyCustom Strategy = "custom"
)

// Strategies lists every known strategy.
var Strategies = []Strategy{StrategyNone, StrategyRemove, StrategyError, StrategySummarize, StrategyCustom}

// ParseStrategy converts a configuration value into a Strategy.
// An empty value selects StrategyRemove.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return StrategyRemove, nil
	}
	for _, known := range Strategies {
		if string(known) == s {
			return known, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// Unit is a single prompt element offered to a CustomHandler: a string for
// single prompts, a models.Message for message sequences.
type Unit any

// Reader extracts the text of a unit.
type Reader func(u Unit) (string, error)

// Writer returns a copy of u carrying text instead of its current content.
type Writer func(u Unit, text string) Unit

// CustomHandler decides what to keep when overflowing does not fit after the
// already accepted units. accepted is in chronological order and holds only
// units newer than overflowing. The returned units replace accepted and
// must also be in chronological order.
//
// The handler is invoked once per overflowing unit, so it may run several
// times during one sizing call.
type CustomHandler func(ctx context.Context, accepted []Unit, overflowing Unit, read Reader, write Writer) ([]Unit, error)

// Handler configures context window sizing.
type Handler struct {
	Tokenizer Tokenizer
	Strategy  Strategy
	Custom    CustomHandler

	// OnContextWindow, if set, observes the prompt after successful sizing.
	OnContextWindow func(prompt.Validated)
}

// DefaultHandler returns a handler that drops the oldest units.
func DefaultHandler(tok Tokenizer) *Handler {
	return &Handler{Tokenizer: tok, Strategy: StrategyRemove}
}

// EffectiveStrategy returns the configured strategy, defaulting to remove.
func (h *Handler) EffectiveStrategy() Strategy {
	if h == nil {
		return StrategyNone
	}
	if h.Strategy == "" {
		return StrategyRemove
	}
	return h.Strategy
}

// Validate checks the handler configuration.
func (h *Handler) Validate() error {
	if h == nil {
		return nil
	}
	strategy := h.EffectiveStrategy()
	if _, err := ParseStrategy(string(strategy)); err != nil {
		return err
	}
	if strategy == StrategyCustom && h.Custom == nil {
		return ErrMissingCustomHandler
	}
	return nil
}

// enabled reports whether sizing should run at all.
func (h *Handler) enabled() bool {
	return h != nil && h.Tokenizer != nil && h.EffectiveStrategy() != StrategyNone
}
