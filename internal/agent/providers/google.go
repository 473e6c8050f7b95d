package providers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/agent/toolconv"
	"github.com/haasonsaas/textgen/pkg/models"
)

// GoogleConfig holds configuration for the Gemini backend.
type GoogleConfig struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// Model defaults to gemini-2.0-flash.
	Model string

	ContextWindows map[string]int

	HTTPClient *http.Client
}

// GoogleModel implements agent.LanguageModel on the Gemini generateContent API.
//
// Gemini does not always assign tool call IDs, so missing IDs are generated.
// Tool results are matched back to calls by tool name.
type GoogleModel struct {
	client *genai.Client
	model  string
	info   modelInfo
}

// NewGoogleModel creates a Gemini backend.
func NewGoogleModel(ctx context.Context, cfg GoogleConfig) (*GoogleModel, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, err
	}

	return &GoogleModel{
		client: client,
		model:  cfg.Model,
		info:   newModelInfo(cfg.Model, cfg.ContextWindows),
	}, nil
}

func (m *GoogleModel) Provider() string { return "google" }

func (m *GoogleModel) ModelID() string { return m.model }

func (m *GoogleModel) ContextWindow() (int, bool) { return m.info.contextWindow() }

// Generate sends one generateContent request.
func (m *GoogleModel) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	contents, err := m.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	config := m.buildConfig(req)

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return nil, m.wrapError(err)
	}

	out := &agent.GenerateResponse{
		FinishReason: models.FinishUnknown,
		Warnings:     samplingWarnings(req.Settings),
	}
	if resp.UsageMetadata != nil {
		out.Usage = models.CalculateUsage(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	if resp.SDKHTTPResponse != nil {
		out.RawResponse = &agent.RawResponse{Headers: resp.SDKHTTPResponse.Headers}
	}
	if len(resp.Candidates) == 0 {
		// A blocked prompt yields no candidates.
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			out.FinishReason = models.FinishContentFilter
		}
		return out, nil
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return nil, NewProviderError(m.Provider(), m.model, err)
				}
				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				out.ToolCalls = append(out.ToolCalls, models.ToolCall{
					ID:   id,
					Name: part.FunctionCall.Name,
					Args: args,
				})
			case part.Text != "" && !part.Thought:
				text.WriteString(part.Text)
			}
		}
	}
	out.Text = textPtr(text.String())
	out.FinishReason = geminiFinishReason(candidate.FinishReason, len(out.ToolCalls) > 0)
	if candidate.LogprobsResult != nil {
		out.LogProbs = geminiLogProbs(candidate.LogprobsResult)
	}
	return out, nil
}

func (m *GoogleModel) buildConfig(req *agent.GenerateRequest) *genai.GenerateContentConfig {
	s := req.Settings
	config := &genai.GenerateContentConfig{
		StopSequences: s.StopSequences,
		Tools:         toolconv.ToGeminiTools(req.Mode.Tools),
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if s.MaxTokens != nil {
		config.MaxOutputTokens = int32(min(*s.MaxTokens, math.MaxInt32))
	}
	if s.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*s.Temperature))
	}
	if s.TopP != nil {
		config.TopP = genai.Ptr(float32(*s.TopP))
	}
	if s.TopK != nil {
		config.TopK = genai.Ptr(float32(*s.TopK))
	}
	if s.PresencePenalty != nil {
		config.PresencePenalty = genai.Ptr(float32(*s.PresencePenalty))
	}
	if s.FrequencyPenalty != nil {
		config.FrequencyPenalty = genai.Ptr(float32(*s.FrequencyPenalty))
	}
	if s.Seed != nil {
		config.Seed = genai.Ptr(int32(*s.Seed))
	}
	if s.LogProbs {
		config.ResponseLogprobs = true
		config.Logprobs = genai.Ptr(int32(1))
	}
	return config
}

func (m *GoogleModel) convertMessages(messages []models.Message) ([]*genai.Content, error) {
	result := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		role := genai.RoleUser
		if msg.Role == models.RoleAssistant {
			role = genai.RoleModel
		}

		if msg.IsPlainText() {
			result = append(result, genai.NewContentFromText(msg.Content, genai.Role(role)))
			continue
		}

		parts := make([]*genai.Part, 0, len(msg.Parts))
		for _, p := range msg.Parts {
			switch p.Type {
			case models.PartText:
				parts = append(parts, genai.NewPartFromText(p.Text))
			case models.PartImage, models.PartFile:
				if mediaType, data, ok := imageBytes(p); ok {
					parts = append(parts, genai.NewPartFromBytes(data, mediaType))
				} else {
					parts = append(parts, genai.NewPartFromURI(p.URL, p.MimeType))
				}
			case models.PartToolCall:
				if p.ToolCall == nil {
					continue
				}
				args, err := toolArgs(p.ToolCall.Args)
				if err != nil {
					return nil, unsupportedContent(m.Provider(), m.model, "invalid tool call input for %s: %v", p.ToolCall.Name, err)
				}
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   p.ToolCall.ID,
					Name: p.ToolCall.Name,
					Args: args,
				}})
			case models.PartToolResult:
				if p.ToolResult == nil {
					continue
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.ToolResult.ToolCallID,
					Name:     p.ToolResult.ToolName,
					Response: geminiToolResponse(p.ToolResult.Result),
				}})
			default:
				return nil, unsupportedContent(m.Provider(), m.model, "unsupported %s part", p.Type)
			}
		}
		result = append(result, genai.NewContentFromParts(parts, genai.Role(role)))
	}
	return result, nil
}

// geminiToolResponse wraps non-object results, since function responses
// must be JSON objects.
func geminiToolResponse(result any) map[string]any {
	if obj, ok := result.(map[string]any); ok {
		return obj
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(toolResultText(result)), &decoded); err == nil && decoded != nil {
		return decoded
	}
	return map[string]any{"result": result}
}

func (m *GoogleModel) wrapError(err error) error {
	if IsProviderError(err) {
		return err
	}
	providerErr := NewProviderError(m.Provider(), m.model, err)

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithStatus(apiErr.Code)
		if apiErr.Message != "" {
			providerErr = providerErr.WithMessage(apiErr.Message)
		}
		if apiErr.Status != "" {
			providerErr = providerErr.WithCode(apiErr.Status)
		}
	}
	return providerErr
}

func geminiFinishReason(reason genai.FinishReason, hasToolCalls bool) models.FinishReason {
	switch reason {
	case genai.FinishReasonStop:
		if hasToolCalls {
			return models.FinishToolCalls
		}
		return models.FinishStop
	case genai.FinishReasonMaxTokens:
		return models.FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return models.FinishContentFilter
	case genai.FinishReasonMalformedFunctionCall:
		return models.FinishError
	case "", genai.FinishReasonUnspecified:
		if hasToolCalls {
			return models.FinishToolCalls
		}
		return models.FinishUnknown
	default:
		return models.FinishOther
	}
}

func geminiLogProbs(result *genai.LogprobsResult) []models.LogProb {
	out := make([]models.LogProb, 0, len(result.ChosenCandidates))
	for i, chosen := range result.ChosenCandidates {
		if chosen == nil {
			continue
		}
		lp := models.LogProb{Token: chosen.Token, LogProb: float64(chosen.LogProbability)}
		if i < len(result.TopCandidates) && result.TopCandidates[i] != nil {
			for _, top := range result.TopCandidates[i].Candidates {
				lp.TopLogProbs = append(lp.TopLogProbs, models.TopLogProb{Token: top.Token, LogProb: float64(top.LogProbability)})
			}
		}
		out = append(out, lp)
	}
	return out
}
