package context

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingBudget is returned when sizing is requested for a model
	// that does not report a context window.
	ErrMissingBudget = errors.New("missing maxTokens value")

	// ErrMissingCustomHandler is returned when the custom strategy is
	// configured without a handler.
	ErrMissingCustomHandler = errors.New("custom strategy requires a custom handler")

	// ErrUnknownStrategy is returned for strategy names outside the known set.
	ErrUnknownStrategy = errors.New("unknown context window strategy")

	// ErrInvalidUnit is returned when a custom handler hands back a unit of
	// a different shape than the ones it was given.
	ErrInvalidUnit = errors.New("custom handler returned a unit of the wrong type")
)

// BudgetExceededError reports that the prompt does not fit the budget.
type BudgetExceededError struct {
	Budget int
	Tokens int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("too many tokens - maximum is %d", e.Budget)
}

// SystemPromptTooLargeError reports that the system instruction alone
// exceeds the budget.
type SystemPromptTooLargeError struct {
	Budget int
	Tokens int
}

func (e *SystemPromptTooLargeError) Error() string {
	return fmt.Sprintf("system prompt too long - maximum is %d", e.Budget)
}

// UnsupportedContentError reports a message whose content is not plain text.
type UnsupportedContentError struct {
	Index int
}

func (e *UnsupportedContentError) Error() string {
	if e.Index < 0 {
		return "token management for non-string messages not yet supported"
	}
	return fmt.Sprintf("token management for non-string messages not yet supported (message %d)", e.Index)
}

// UnsupportedStrategyError reports a strategy that is recognized but not
// implemented.
type UnsupportedStrategyError struct {
	Strategy Strategy
}

func (e *UnsupportedStrategyError) Error() string {
	return fmt.Sprintf("%s strategy not yet supported", e.Strategy)
}

// IsSizingError reports whether err was produced by the sizer itself.
func IsSizingError(err error) bool {
	var (
		budget   *BudgetExceededError
		system   *SystemPromptTooLargeError
		content  *UnsupportedContentError
		strategy *UnsupportedStrategyError
	)
	return errors.Is(err, ErrMissingBudget) ||
		errors.Is(err, ErrMissingCustomHandler) ||
		errors.Is(err, ErrUnknownStrategy) ||
		errors.Is(err, ErrInvalidUnit) ||
		errors.As(err, &budget) ||
		errors.As(err, &system) ||
		errors.As(err, &content) ||
		errors.As(err, &strategy)
}
