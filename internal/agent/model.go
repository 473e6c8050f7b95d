package agent

import (
	"context"
	"fmt"
	"net/http"

	"github.com/haasonsaas/textgen/internal/prompt"
	"github.com/haasonsaas/textgen/pkg/models"
)

// LanguageModel is a text-generation backend bound to one model.
//
// Implementations translate a GenerateRequest into a provider API call and
// map the provider response back. They do not retry; the Generator wraps
// every call in the retry executor.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Multiple goroutines may
// call Generate() simultaneously for different requests.
//
// See Also:
//   - providers.OpenAIModel for OpenAI and OpenAI-compatible endpoints
//   - providers.AnthropicModel for Anthropic Claude
//   - providers.GoogleModel for Gemini
//   - providers.BedrockModel for AWS Bedrock
type LanguageModel interface {
	// Generate performs a single, non-streaming generation call.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Provider returns the provider name, e.g. "openai".
	Provider() string

	// ModelID returns the model identifier sent to the provider.
	ModelID() string

	// ContextWindow returns the maximum number of prompt tokens the model
	// accepts, and false when the size is unknown.
	ContextWindow() (int, bool)
}

// ModeType selects how the backend should generate.
type ModeType string

// ModeRegular is plain text generation with optional tool calling.
const ModeRegular ModeType = "regular"

// Mode describes the generation mode and the tools offered to the model.
type Mode struct {
	Type  ModeType         `json:"type"`
	Tools []ToolDefinition `json:"tools,omitempty"`
}

// GenerateRequest contains everything a backend needs for one call.
//
// Example:
//
//	req := &GenerateRequest{
//	    Mode:        Mode{Type: ModeRegular},
//	    InputFormat: prompt.KindPrompt,
//	    System:      "You are a helpful coding assistant.",
//	    Messages:    []models.Message{models.UserMessage("Write a hello world in Go")},
//	}
type GenerateRequest struct {
	// Mode carries the generation mode and tool definitions.
	Mode Mode `json:"mode"`

	// InputFormat records whether the caller supplied a single prompt or a
	// message sequence. Messages is populated in both cases.
	InputFormat prompt.Kind `json:"input_format"`

	// System is the system instruction, handled separately from messages by
	// most provider APIs.
	System string `json:"system,omitempty"`

	// Messages contains the conversation in chronological order.
	Messages []models.Message `json:"messages"`

	// Settings are the sampling parameters.
	Settings CallSettings `json:"settings"`
}

// GenerateResponse is what a backend returns for one call.
type GenerateResponse struct {
	// Text is the generated text; nil when the model produced none.
	Text *string `json:"text,omitempty"`

	// ToolCalls are the raw tool invocations requested by the model.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	FinishReason models.FinishReason `json:"finish_reason"`
	Usage        models.Usage        `json:"usage"`
	Warnings     []models.Warning    `json:"warnings,omitempty"`
	RawResponse  *RawResponse        `json:"raw_response,omitempty"`
	LogProbs     []models.LogProb    `json:"logprobs,omitempty"`
}

// RawResponse exposes transport details of the provider response.
type RawResponse struct {
	Headers http.Header `json:"headers,omitempty"`
}

// CallSettings are the sampling parameters shared by all backends.
// Nil pointers leave the provider default in place.
type CallSettings struct {
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens"`
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p"`
	TopK             *int     `json:"top_k,omitempty" yaml:"top_k"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty"`
	Seed             *int     `json:"seed,omitempty" yaml:"seed"`
	StopSequences    []string `json:"stop_sequences,omitempty" yaml:"stop_sequences"`
	LogProbs         bool     `json:"logprobs,omitempty" yaml:"logprobs"`
}

// Validate checks that every set parameter is in range.
func (s CallSettings) Validate() error {
	if s.MaxTokens != nil && *s.MaxTokens < 1 {
		return &InvalidArgumentError{Parameter: "max_tokens", Value: *s.MaxTokens, Message: "must be at least 1"}
	}
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
		return &InvalidArgumentError{Parameter: "temperature", Value: *s.Temperature, Message: "must be between 0 and 2"}
	}
	if s.TopP != nil && (*s.TopP < 0 || *s.TopP > 1) {
		return &InvalidArgumentError{Parameter: "top_p", Value: *s.TopP, Message: "must be between 0 and 1"}
	}
	if s.TopK != nil && *s.TopK < 1 {
		return &InvalidArgumentError{Parameter: "top_k", Value: *s.TopK, Message: "must be at least 1"}
	}
	if s.PresencePenalty != nil && (*s.PresencePenalty < -2 || *s.PresencePenalty > 2) {
		return &InvalidArgumentError{Parameter: "presence_penalty", Value: *s.PresencePenalty, Message: "must be between -2 and 2"}
	}
	if s.FrequencyPenalty != nil && (*s.FrequencyPenalty < -2 || *s.FrequencyPenalty > 2) {
		return &InvalidArgumentError{Parameter: "frequency_penalty", Value: *s.FrequencyPenalty, Message: "must be between -2 and 2"}
	}
	return nil
}

// WithDefaults fills every unset field of s from d.
func (s CallSettings) WithDefaults(d CallSettings) CallSettings {
	if s.MaxTokens == nil {
		s.MaxTokens = d.MaxTokens
	}
	if s.Temperature == nil {
		s.Temperature = d.Temperature
	}
	if s.TopP == nil {
		s.TopP = d.TopP
	}
	if s.TopK == nil {
		s.TopK = d.TopK
	}
	if s.PresencePenalty == nil {
		s.PresencePenalty = d.PresencePenalty
	}
	if s.FrequencyPenalty == nil {
		s.FrequencyPenalty = d.FrequencyPenalty
	}
	if s.Seed == nil {
		s.Seed = d.Seed
	}
	if s.StopSequences == nil {
		s.StopSequences = d.StopSequences
	}
	s.LogProbs = s.LogProbs || d.LogProbs
	return s
}

// Ptr returns a pointer to v. Handy for filling CallSettings.
func Ptr[T any](v T) *T {
	return &v
}

// UnsupportedSetting builds the warning backends return for a parameter they ignore.
func UnsupportedSetting(setting, detail string) models.Warning {
	return models.Warning{
		Type:    models.WarningUnsupportedSetting,
		Setting: setting,
		Message: fmt.Sprintf("%s is not supported: %s", setting, detail),
	}
}
