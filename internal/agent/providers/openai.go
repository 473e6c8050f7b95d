package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/agent/toolconv"
	"github.com/haasonsaas/textgen/pkg/models"
)

// OpenAIConfig configures an OpenAI or OpenAI-compatible backend.
type OpenAIConfig struct {
	// APIKey is the bearer token sent with every request.
	APIKey string

	// BaseURL points the client at an OpenAI-compatible endpoint such as
	// Perplexity, Groq or a local gateway. Empty uses api.openai.com.
	BaseURL string

	// Organization is sent as the OpenAI-Organization header when set.
	Organization string

	// Model is the model identifier, e.g. "gpt-4o".
	Model string

	// ContextWindows overrides catalog context sizes per model ID.
	ContextWindows map[string]int

	// HTTPClient replaces the default HTTP client.
	HTTPClient *http.Client

	// Provider is the name reported by Provider(). Default: "openai".
	Provider string
}

// OpenAIModel implements agent.LanguageModel on the chat completions API.
//
// System instructions become a leading system message. Tool results are
// sent as one tool message per result, linked by tool call ID.
//
// OpenAIModel is safe for concurrent use.
type OpenAIModel struct {
	client   *openai.Client
	provider string
	model    string
	info     modelInfo
}

// NewOpenAIModel creates a chat completions backend.
func NewOpenAIModel(cfg OpenAIConfig) (*OpenAIModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai: model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientConfig.OrgID = cfg.Organization
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}

	return &OpenAIModel{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: provider,
		model:    cfg.Model,
		info:     newModelInfo(cfg.Model, cfg.ContextWindows),
	}, nil
}

// Provider returns the configured provider name, "azure" for Azure deployments.
func (m *OpenAIModel) Provider() string { return m.provider }

// ModelID returns the configured model.
func (m *OpenAIModel) ModelID() string { return m.model }

// ContextWindow returns the override or catalog size for the model.
func (m *OpenAIModel) ContextWindow() (int, bool) { return m.info.contextWindow() }

// Generate performs one chat completion.
func (m *OpenAIModel) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	chatReq, warnings, err := m.buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := m.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, m.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{
			Reason:   FailoverServerError,
			Provider: m.provider,
			Model:    m.model,
			Message:  "response contained no choices",
		}
	}

	choice := resp.Choices[0]
	out := &agent.GenerateResponse{
		Text:         textPtr(choice.Message.Content),
		FinishReason: openAIFinishReason(choice.FinishReason),
		Usage:        models.CalculateUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		Warnings:     warnings,
		RawResponse:  &agent.RawResponse{Headers: resp.Header()},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: []byte(tc.Function.Arguments),
		})
	}
	if choice.LogProbs != nil {
		out.LogProbs = openAILogProbs(choice.LogProbs)
	}
	return out, nil
}

func (m *OpenAIModel) buildRequest(req *agent.GenerateRequest) (openai.ChatCompletionRequest, []models.Warning, error) {
	messages, err := m.convertMessages(req.System, req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, nil, err
	}

	s := req.Settings
	chatReq := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
		Stop:     s.StopSequences,
		Seed:     s.Seed,
		Tools:    toolconv.ToOpenAITools(req.Mode.Tools),
	}
	warnings := samplingWarnings(s, "top_k")

	if isReasoningModel(m.model) {
		// Reasoning models fix their sampling parameters.
		if s.MaxTokens != nil {
			chatReq.MaxCompletionTokens = *s.MaxTokens
		}
		warnings = append(warnings, samplingWarnings(s,
			"temperature", "top_p", "presence_penalty", "frequency_penalty", "logprobs")...)
		return chatReq, warnings, nil
	}

	if s.MaxTokens != nil {
		chatReq.MaxTokens = *s.MaxTokens
	}
	if s.Temperature != nil {
		chatReq.Temperature = float32(*s.Temperature)
	}
	if s.TopP != nil {
		chatReq.TopP = float32(*s.TopP)
	}
	if s.PresencePenalty != nil {
		chatReq.PresencePenalty = float32(*s.PresencePenalty)
	}
	if s.FrequencyPenalty != nil {
		chatReq.FrequencyPenalty = float32(*s.FrequencyPenalty)
	}
	if s.LogProbs {
		chatReq.LogProbs = true
		chatReq.TopLogProbs = 1
	}
	return chatReq, warnings, nil
}

func (m *OpenAIModel) convertMessages(system string, messages []models.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		if msg.IsPlainText() {
			result = append(result, openai.ChatCompletionMessage{Role: string(msg.Role), Content: msg.Content})
			continue
		}

		switch msg.Role {
		case models.RoleTool:
			for _, p := range msg.Parts {
				if p.Type != models.PartToolResult || p.ToolResult == nil {
					return nil, unsupportedContent(m.provider, m.model, "tool messages may only carry tool results, got %s", p.Type)
				}
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    toolResultText(p.ToolResult.Result),
					ToolCallID: p.ToolResult.ToolCallID,
				})
			}

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: partText(msg.Parts),
			}
			for _, p := range msg.Parts {
				switch p.Type {
				case models.PartText:
				case models.PartToolCall:
					if p.ToolCall == nil {
						continue
					}
					oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
						ID:   p.ToolCall.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      p.ToolCall.Name,
							Arguments: string(p.ToolCall.Args),
						},
					})
				default:
					return nil, unsupportedContent(m.provider, m.model, "assistant messages cannot carry %s parts", p.Type)
				}
			}
			result = append(result, oaiMsg)

		default:
			parts := make([]openai.ChatMessagePart, 0, len(msg.Parts))
			for _, p := range msg.Parts {
				switch p.Type {
				case models.PartText:
					parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
				case models.PartImage:
					parts = append(parts, openai.ChatMessagePart{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL(p),
							Detail: openai.ImageURLDetailAuto,
						},
					})
				default:
					return nil, unsupportedContent(m.provider, m.model, "%s messages cannot carry %s parts", msg.Role, p.Type)
				}
			}
			result = append(result, openai.ChatCompletionMessage{Role: string(msg.Role), MultiContent: parts})
		}
	}
	return result, nil
}

func (m *OpenAIModel) wrapError(err error) error {
	if IsProviderError(err) {
		return err
	}
	providerErr := NewProviderError(m.provider, m.model, err)

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode).WithMessage(apiErr.Message)
		if code, ok := apiErr.Code.(string); ok && code != "" {
			providerErr = providerErr.WithCode(code)
		} else if apiErr.Type != "" {
			providerErr = providerErr.WithCode(apiErr.Type)
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		providerErr = providerErr.WithStatus(reqErr.HTTPStatusCode)
	}
	return providerErr
}

func isReasoningModel(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func openAIFinishReason(reason openai.FinishReason) models.FinishReason {
	switch reason {
	case openai.FinishReasonStop:
		return models.FinishStop
	case openai.FinishReasonLength:
		return models.FinishLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return models.FinishToolCalls
	case openai.FinishReasonContentFilter:
		return models.FinishContentFilter
	case "", openai.FinishReasonNull:
		return models.FinishUnknown
	default:
		return models.FinishOther
	}
}

func openAILogProbs(lp *openai.LogProbs) []models.LogProb {
	if len(lp.Content) == 0 {
		return nil
	}
	out := make([]models.LogProb, len(lp.Content))
	for i, tok := range lp.Content {
		out[i] = models.LogProb{Token: tok.Token, LogProb: tok.LogProb}
		for _, top := range tok.TopLogProbs {
			out[i].TopLogProbs = append(out[i].TopLogProbs, models.TopLogProb{Token: top.Token, LogProb: top.LogProb})
		}
	}
	return out
}

// String implements fmt.Stringer for logging.
func (m *OpenAIModel) String() string {
	return fmt.Sprintf("%s:%s", m.provider, m.model)
}
