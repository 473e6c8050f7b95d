// Package prompt normalizes caller input into one of the two prompt shapes
// accepted by the generation pipeline.
package prompt

import (
	"errors"

	"github.com/haasonsaas/textgen/pkg/models"
)

// Kind tags which form a validated prompt holds.
type Kind string

const (
	KindPrompt   Kind = "prompt"
	KindMessages Kind = "messages"
)

// ErrInvalidPrompt is matched by every InvalidPromptError.
var ErrInvalidPrompt = errors.New("invalid prompt")

// InvalidPromptError reports caller input that is neither a single prompt
// nor a message sequence.
type InvalidPromptError struct {
	Reason string
}

func (e *InvalidPromptError) Error() string {
	return "invalid prompt: " + e.Reason
}

// Is allows errors.Is(err, ErrInvalidPrompt).
func (e *InvalidPromptError) Is(target error) bool {
	return target == ErrInvalidPrompt
}

// Input is the raw prompt supplied by a caller.
// An empty Prompt and a nil Messages slice both count as absent.
type Input struct {
	System   string           `json:"system,omitempty" yaml:"system"`
	Prompt   string           `json:"prompt,omitempty" yaml:"prompt"`
	Messages []models.Message `json:"messages,omitempty" yaml:"messages"`
}

// Validated is a prompt in canonical form. Exactly one of Prompt or
// Messages is meaningful, as selected by Kind.
type Validated struct {
	Kind     Kind
	System   string
	Prompt   string
	Messages []models.Message
}

// Validate checks that exactly one of Prompt or Messages is set.
func Validate(in Input) (Validated, error) {
	hasPrompt := in.Prompt != ""
	hasMessages := in.Messages != nil

	switch {
	case hasPrompt && hasMessages:
		return Validated{}, &InvalidPromptError{Reason: "prompt and messages cannot both be set"}
	case !hasPrompt && !hasMessages:
		return Validated{}, &InvalidPromptError{Reason: "prompt or messages must be set"}
	case hasMessages && len(in.Messages) == 0:
		return Validated{}, &InvalidPromptError{Reason: "messages must not be empty"}
	}

	if hasPrompt {
		return Validated{Kind: KindPrompt, System: in.System, Prompt: in.Prompt}, nil
	}

	msgs := make([]models.Message, len(in.Messages))
	copy(msgs, in.Messages)
	return Validated{Kind: KindMessages, System: in.System, Messages: msgs}, nil
}

// HasSystem reports whether a system instruction is present.
func (v Validated) HasSystem() bool {
	return v.System != ""
}

// Conversation returns the prompt as a message sequence. The single-prompt
// form becomes one user message. The system instruction is not included.
func (v Validated) Conversation() []models.Message {
	if v.Kind == KindPrompt {
		return []models.Message{models.UserMessage(v.Prompt)}
	}
	return v.Messages
}
