// Package context sizes prompts to fit a model's context window.
package context

import (
	"context"
	"fmt"
	"strings"

	"github.com/haasonsaas/textgen/internal/prompt"
	"github.com/haasonsaas/textgen/pkg/models"
)

// NoBudget marks a model that does not report a context window.
const NoBudget = -1

// Size fits p into budget tokens according to h.
//
// A nil handler, a handler without a tokenizer, or StrategyNone returns p
// unchanged. Units are considered from newest to oldest, so the retained
// content is always the most recent context that the strategy allows.
func Size(ctx context.Context, p prompt.Validated, h *Handler, budget int) (prompt.Validated, error) {
	sized, _, err := SizeWithInfo(ctx, p, h, budget)
	return sized, err
}

// SizeWithInfo is Size, additionally reporting how much of the budget the
// sized prompt uses. The info is nil when sizing is disabled.
func SizeWithInfo(ctx context.Context, p prompt.Validated, h *Handler, budget int) (prompt.Validated, *WindowInfo, error) {
	if !h.enabled() {
		return p, nil, nil
	}
	if err := h.Validate(); err != nil {
		return p, nil, err
	}
	if budget < 0 {
		return p, nil, ErrMissingBudget
	}

	systemTokens := 0
	if p.HasSystem() {
		n, err := CountTokens(ctx, h.Tokenizer, p.System)
		if err != nil {
			return p, nil, fmt.Errorf("tokenize system prompt: %w", err)
		}
		if n > budget {
			return p, nil, &SystemPromptTooLargeError{Budget: budget, Tokens: n}
		}
		systemTokens = n
	}

	out := p
	var (
		used     int
		inputs   int
		retained int
	)
	switch p.Kind {
	case prompt.KindPrompt:
		s := newSizer(h, budget, systemTokens, stringText, stringWrite)
		units, n, err := s.size(ctx, []string{p.Prompt})
		if err != nil {
			return p, nil, err
		}
		out.Prompt = strings.Join(units, "\n")
		used, inputs, retained = n, 1, len(units)
	case prompt.KindMessages:
		s := newSizer(h, budget, systemTokens, messageText, messageWrite)
		msgs, n, err := s.size(ctx, p.Messages)
		if err != nil {
			return p, nil, err
		}
		out.Messages = msgs
		used, inputs, retained = n, len(p.Messages), len(msgs)
	default:
		return p, nil, fmt.Errorf("unknown prompt kind %q", p.Kind)
	}

	if h.OnContextWindow != nil {
		h.OnContextWindow(out)
	}

	info := newWindowInfo(budget, used, "budget")
	info.SystemTokens = systemTokens
	info.InputUnits = inputs
	info.RetainedUnits = retained
	return out, info, nil
}

func stringText(s string) (string, bool) { return s, true }

func stringWrite(_ string, text string) string { return text }

func messageText(m models.Message) (string, bool) { return m.Text() }

func messageWrite(m models.Message, text string) models.Message { return m.WithText(text) }

// sizer holds the state of one sizing pass. accepted is kept newest first
// and running always includes the system tokens.
type sizer[U any] struct {
	tok          Tokenizer
	strategy     Strategy
	custom       CustomHandler
	budget       int
	systemTokens int

	text  func(U) (string, bool)
	write func(U, string) U

	accepted []U
	running  int
}

func newSizer[U any](h *Handler, budget, systemTokens int, text func(U) (string, bool), write func(U, string) U) *sizer[U] {
	return &sizer[U]{
		tok:          h.Tokenizer,
		strategy:     h.EffectiveStrategy(),
		custom:       h.Custom,
		budget:       budget,
		systemTokens: systemTokens,
		text:         text,
		write:        write,
		running:      systemTokens,
	}
}

type overflowAction int

const (
	overflowStop overflowAction = iota
	overflowContinue
)

// overflowFunc decides what happens to a unit that does not fit.
type overflowFunc[U any] func(ctx context.Context, s *sizer[U], unit U) (overflowAction, error)

func overflowFor[U any](strategy Strategy) (overflowFunc[U], error) {
	switch strategy {
	case StrategyRemove:
		return removeOverflow[U], nil
	case StrategyError:
		return errorOverflow[U], nil
	case StrategySummarize:
		return summarizeOverflow[U], nil
	case StrategyCustom:
		return customOverflow[U], nil
	case StrategyNone:
		return nil, fmt.Errorf("strategy %q does not size prompts", strategy)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

func (s *sizer[U]) size(ctx context.Context, units []U) ([]U, int, error) {
	overflow, err := overflowFor[U](s.strategy)
	if err != nil {
		return nil, 0, err
	}

	s.accepted = make([]U, 0, len(units))
	for i := len(units) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		text, ok := s.text(units[i])
		if !ok {
			return nil, 0, &UnsupportedContentError{Index: i}
		}
		n, err := CountTokens(ctx, s.tok, text)
		if err != nil {
			return nil, 0, fmt.Errorf("tokenize unit %d: %w", i, err)
		}

		if s.running+n <= s.budget {
			s.accepted = append(s.accepted, units[i])
			s.running += n
			continue
		}

		action, err := overflow(ctx, s, units[i])
		if err != nil {
			return nil, 0, err
		}
		if action == overflowStop {
			break
		}
	}

	if s.running > s.budget {
		return nil, 0, &BudgetExceededError{Budget: s.budget, Tokens: s.running}
	}

	out := make([]U, len(s.accepted))
	for i, u := range s.accepted {
		out[len(s.accepted)-1-i] = u
	}
	return out, s.running, nil
}

func removeOverflow[U any](context.Context, *sizer[U], U) (overflowAction, error) {
	return overflowStop, nil
}

func errorOverflow[U any](_ context.Context, s *sizer[U], _ U) (overflowAction, error) {
	return overflowStop, &BudgetExceededError{Budget: s.budget}
}

func summarizeOverflow[U any](context.Context, *sizer[U], U) (overflowAction, error) {
	return overflowStop, &UnsupportedStrategyError{Strategy: StrategySummarize}
}

// customOverflow hands the decision to the user handler, then recounts the
// returned units exactly and keeps scanning older units.
func customOverflow[U any](ctx context.Context, s *sizer[U], unit U) (overflowAction, error) {
	accepted := make([]Unit, len(s.accepted))
	for i, u := range s.accepted {
		accepted[len(s.accepted)-1-i] = u
	}

	read := func(u Unit) (string, error) {
		v, ok := u.(U)
		if !ok {
			return "", fmt.Errorf("%w: %T", ErrInvalidUnit, u)
		}
		text, ok := s.text(v)
		if !ok {
			return "", &UnsupportedContentError{Index: -1}
		}
		return text, nil
	}
	write := func(u Unit, text string) Unit {
		v, ok := u.(U)
		if !ok {
			return u
		}
		return s.write(v, text)
	}

	returned, err := s.custom(ctx, accepted, unit, read, write)
	if err != nil {
		return overflowStop, fmt.Errorf("custom context window handler: %w", err)
	}

	next := make([]U, 0, len(returned))
	running := s.systemTokens
	for i := len(returned) - 1; i >= 0; i-- {
		text, err := read(returned[i])
		if err != nil {
			return overflowStop, err
		}
		n, err := CountTokens(ctx, s.tok, text)
		if err != nil {
			return overflowStop, fmt.Errorf("tokenize custom unit %d: %w", i, err)
		}
		next = append(next, returned[i].(U))
		running += n
	}

	s.accepted = next
	s.running = running
	return overflowContinue, nil
}
