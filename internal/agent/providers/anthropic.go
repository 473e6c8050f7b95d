package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/agent/toolconv"
	"github.com/haasonsaas/textgen/pkg/models"
)

// AnthropicConfig holds configuration for the Anthropic backend.
type AnthropicConfig struct {
	// APIKey is the Anthropic API key (required).
	// Format: sk-ant-api03-...
	APIKey string

	// BaseURL overrides the API endpoint, mostly for proxies and tests.
	BaseURL string

	// Model defaults to claude-sonnet-4-20250514.
	Model string

	ContextWindows map[string]int

	HTTPClient *http.Client
}

// AnthropicModel implements agent.LanguageModel on the Claude Messages API.
//
// Key differences from the chat completions format:
//   - The system prompt is a top-level parameter, not a message
//   - Tool calls and tool results are content blocks inside messages
//   - max_tokens is required, so DefaultMaxTokens is sent when unset
//
// The SDK's own retries are disabled; the generator retries.
type AnthropicModel struct {
	client anthropic.Client
	model  string
	info   modelInfo
}

// NewAnthropicModel creates a Claude backend.
func NewAnthropicModel(cfg AnthropicConfig) (*AnthropicModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}

	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &AnthropicModel{
		client: anthropic.NewClient(options...),
		model:  cfg.Model,
		info:   newModelInfo(cfg.Model, cfg.ContextWindows),
	}, nil
}

func (m *AnthropicModel) Provider() string { return "anthropic" }

func (m *AnthropicModel) ModelID() string { return m.model }

func (m *AnthropicModel) ContextWindow() (int, bool) { return m.info.contextWindow() }

// Generate sends one Messages API request.
func (m *AnthropicModel) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	params, warnings, err := m.buildParams(req)
	if err != nil {
		return nil, err
	}

	var httpResp *http.Response
	msg, err := m.client.Messages.New(ctx, params, option.WithResponseInto(&httpResp))
	if err != nil {
		return nil, m.wrapError(err)
	}

	out := &agent.GenerateResponse{
		FinishReason: anthropicFinishReason(msg.StopReason),
		Usage:        models.CalculateUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)),
		Warnings:     warnings,
	}
	if httpResp != nil {
		out.RawResponse = &agent.RawResponse{Headers: httpResp.Header}
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: json.RawMessage(block.Input),
			})
		}
	}
	out.Text = textPtr(text.String())
	return out, nil
}

func (m *AnthropicModel) buildParams(req *agent.GenerateRequest) (anthropic.MessageNewParams, []models.Warning, error) {
	messages, err := m.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, nil, err
	}

	s := req.Settings
	maxTokens := DefaultMaxTokens
	if s.MaxTokens != nil {
		maxTokens = *s.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(m.model),
		Messages:      messages,
		MaxTokens:     int64(maxTokens),
		StopSequences: s.StopSequences,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if s.Temperature != nil {
		// Anthropic accepts 0..1.
		params.Temperature = anthropic.Float(min(*s.Temperature, 1))
	}
	if s.TopP != nil {
		params.TopP = anthropic.Float(*s.TopP)
	}
	if s.TopK != nil {
		params.TopK = anthropic.Int(int64(*s.TopK))
	}

	if len(req.Mode.Tools) > 0 {
		tools, err := toolconv.ToAnthropicTools(req.Mode.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, nil, unsupportedContent(m.Provider(), m.model, "convert tools: %v", err)
		}
		params.Tools = tools
	}

	warnings := samplingWarnings(s, "presence_penalty", "frequency_penalty", "seed", "logprobs")
	if s.Temperature != nil && *s.Temperature > 1 {
		warnings = append(warnings, models.Warning{
			Type:    models.WarningUnsupportedSetting,
			Setting: "temperature",
			Message: "temperature above 1 was clamped to 1",
		})
	}
	return params, warnings, nil
}

func (m *AnthropicModel) convertMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		var content []anthropic.ContentBlockParamUnion
		if msg.IsPlainText() {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}

		for _, p := range msg.Parts {
			switch p.Type {
			case models.PartText:
				content = append(content, anthropic.NewTextBlock(p.Text))
			case models.PartImage:
				if mediaType, data, ok := imageBytes(p); ok {
					content = append(content, anthropic.NewImageBlockBase64(mediaType, base64.StdEncoding.EncodeToString(data)))
				} else {
					content = append(content, anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: p.URL}))
				}
			case models.PartToolCall:
				if p.ToolCall == nil {
					continue
				}
				input, err := toolArgs(p.ToolCall.Args)
				if err != nil {
					return nil, unsupportedContent(m.Provider(), m.model, "invalid tool call input for %s: %v", p.ToolCall.Name, err)
				}
				content = append(content, anthropic.NewToolUseBlock(p.ToolCall.ID, input, p.ToolCall.Name))
			case models.PartToolResult:
				if p.ToolResult == nil {
					continue
				}
				content = append(content, anthropic.NewToolResultBlock(
					p.ToolResult.ToolCallID,
					toolResultText(p.ToolResult.Result),
					false,
				))
			default:
				return nil, unsupportedContent(m.Provider(), m.model, "unsupported %s part", p.Type)
			}
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			// User and tool roles both map to user messages
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (m *AnthropicModel) wrapError(err error) error {
	if IsProviderError(err) {
		return err
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return NewProviderError(m.Provider(), m.model, err)
	}

	providerErr := (&ProviderError{
		Provider: m.Provider(),
		Model:    m.model,
		Cause:    err,
		Reason:   FailoverUnknown,
	}).WithStatus(apiErr.StatusCode)

	requestID := apiErr.RequestID
	var payload anthropicErrorPayload
	if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil {
		if payload.Error.Message != "" {
			providerErr = providerErr.WithMessage(payload.Error.Message)
		}
		if payload.Error.Type != "" {
			providerErr = providerErr.WithCode(payload.Error.Type)
		}
		if payload.RequestID != "" {
			requestID = payload.RequestID
		}
	}
	if providerErr.Message == "" {
		providerErr.Message = "anthropic request failed"
	}
	if requestID != "" {
		providerErr = providerErr.WithRequestID(requestID)
	}
	return providerErr
}

func anthropicFinishReason(reason anthropic.StopReason) models.FinishReason {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, anthropic.StopReasonPauseTurn:
		return models.FinishStop
	case anthropic.StopReasonMaxTokens:
		return models.FinishLength
	case anthropic.StopReasonToolUse:
		return models.FinishToolCalls
	case anthropic.StopReasonRefusal:
		return models.FinishContentFilter
	case "":
		return models.FinishUnknown
	default:
		return models.FinishOther
	}
}
