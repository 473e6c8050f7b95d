package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/internal/agent/toolconv"
	"github.com/haasonsaas/textgen/pkg/models"
)

// BedrockConfig holds configuration for the AWS Bedrock backend.
// Static credentials are optional; the default AWS credential chain is used
// when they are empty.
type BedrockConfig struct {
	Region string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Model is a Bedrock model or inference profile ID.
	Model string

	ContextWindows map[string]int
}

// ConverseClient is the subset of the Bedrock runtime API used for generation.
type ConverseClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockModel implements agent.LanguageModel on the Bedrock Converse API.
type BedrockModel struct {
	client ConverseClient
	model  string
	info   modelInfo
}

// NewBedrockModel loads AWS configuration and creates a Converse backend.
func NewBedrockModel(ctx context.Context, cfg BedrockConfig) (*BedrockModel, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Model == "" {
		cfg.Model = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)))
	}
	// The generator owns retries.
	opts = append(opts, config.WithRetryMaxAttempts(1))

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return NewBedrockModelWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg.Model, cfg.ContextWindows), nil
}

// NewBedrockModelWithClient creates a Converse backend on an existing client.
func NewBedrockModelWithClient(client ConverseClient, model string, contextWindows map[string]int) *BedrockModel {
	return &BedrockModel{
		client: client,
		model:  model,
		info:   newModelInfo(model, contextWindows),
	}
}

func (m *BedrockModel) Provider() string { return "bedrock" }

func (m *BedrockModel) ModelID() string { return m.model }

func (m *BedrockModel) ContextWindow() (int, bool) { return m.info.contextWindow() }

// Generate sends one Converse request.
func (m *BedrockModel) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	messages, err := m.convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(m.model),
		Messages:        messages,
		InferenceConfig: inferenceConfig(req.Settings),
		ToolConfig:      toolconv.ToBedrockTools(req.Mode.Tools),
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	output, err := m.client.Converse(ctx, input)
	if err != nil {
		return nil, m.wrapError(err)
	}

	out := &agent.GenerateResponse{
		FinishReason: bedrockFinishReason(output.StopReason),
		Warnings:     samplingWarnings(req.Settings, "top_k", "presence_penalty", "frequency_penalty", "seed", "logprobs"),
	}
	if output.Usage != nil {
		out.Usage = models.CalculateUsage(
			int(aws.ToInt32(output.Usage.InputTokens)),
			int(aws.ToInt32(output.Usage.OutputTokens)),
		)
	}
	if raw, ok := awsmiddleware.GetRawResponse(output.ResultMetadata).(*smithyhttp.Response); ok && raw != nil {
		out.RawResponse = &agent.RawResponse{Headers: raw.Header}
	}

	msg, ok := output.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return out, nil
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *types.ContentBlockMemberToolUse:
			args := []byte("{}")
			if b.Value.Input != nil {
				if args, err = b.Value.Input.MarshalSmithyDocument(); err != nil {
					return nil, NewProviderError(m.Provider(), m.model, fmt.Errorf("decode tool input: %w", err))
				}
			}
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Name: aws.ToString(b.Value.Name),
				Args: args,
			})
		}
	}
	out.Text = textPtr(text.String())
	return out, nil
}

func inferenceConfig(s agent.CallSettings) *types.InferenceConfiguration {
	if s.MaxTokens == nil && s.Temperature == nil && s.TopP == nil && len(s.StopSequences) == 0 {
		return nil
	}
	cfg := &types.InferenceConfiguration{StopSequences: s.StopSequences}
	if s.MaxTokens != nil {
		cfg.MaxTokens = aws.Int32(int32(min(*s.MaxTokens, math.MaxInt32)))
	}
	if s.Temperature != nil {
		cfg.Temperature = aws.Float32(float32(*s.Temperature))
	}
	if s.TopP != nil {
		cfg.TopP = aws.Float32(float32(*s.TopP))
	}
	return cfg
}

func (m *BedrockModel) convertMessages(messages []models.Message) ([]types.Message, error) {
	result := make([]types.Message, 0, len(messages))

	for _, msg := range messages {
		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}

		var content []types.ContentBlock
		if msg.IsPlainText() {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}

		for _, p := range msg.Parts {
			switch p.Type {
			case models.PartText:
				content = append(content, &types.ContentBlockMemberText{Value: p.Text})
			case models.PartImage:
				block, err := m.imageBlock(p)
				if err != nil {
					return nil, err
				}
				content = append(content, block)
			case models.PartToolCall:
				if p.ToolCall == nil {
					continue
				}
				input, err := toolArgs(p.ToolCall.Args)
				if err != nil {
					return nil, unsupportedContent(m.Provider(), m.model, "invalid tool call input for %s: %v", p.ToolCall.Name, err)
				}
				content = append(content, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(p.ToolCall.ID),
						Name:      aws.String(p.ToolCall.Name),
						Input:     document.NewLazyDocument(input),
					},
				})
			case models.PartToolResult:
				if p.ToolResult == nil {
					continue
				}
				content = append(content, &types.ContentBlockMemberToolResult{
					Value: types.ToolResultBlock{
						ToolUseId: aws.String(p.ToolResult.ToolCallID),
						Content:   bedrockToolResultContent(p.ToolResult.Result),
					},
				})
			default:
				return nil, unsupportedContent(m.Provider(), m.model, "unsupported %s part", p.Type)
			}
		}

		result = append(result, types.Message{Role: role, Content: content})
	}
	return result, nil
}

func (m *BedrockModel) imageBlock(p models.Part) (*types.ContentBlockMemberImage, error) {
	mediaType, data, ok := imageBytes(p)
	if !ok {
		return nil, unsupportedContent(m.Provider(), m.model, "images must be inline bytes or data URLs")
	}
	format, ok := bedrockImageFormat(mediaType)
	if !ok {
		return nil, unsupportedContent(m.Provider(), m.model, "unsupported image type %q", mediaType)
	}
	return &types.ContentBlockMemberImage{
		Value: types.ImageBlock{
			Format: format,
			Source: &types.ImageSourceMemberBytes{Value: data},
		},
	}, nil
}

func bedrockImageFormat(mediaType string) (types.ImageFormat, bool) {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png":
		return types.ImageFormatPng, true
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

// bedrockToolResultContent sends JSON object results as JSON blocks and
// everything else as text.
func bedrockToolResultContent(result any) []types.ToolResultContentBlock {
	text := toolResultText(result)
	var obj map[string]any
	if _, isString := result.(string); !isString && json.Unmarshal([]byte(text), &obj) == nil && obj != nil {
		return []types.ToolResultContentBlock{
			&types.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(obj)},
		}
	}
	return []types.ToolResultContentBlock{
		&types.ToolResultContentBlockMemberText{Value: text},
	}
}

func (m *BedrockModel) wrapError(err error) error {
	if IsProviderError(err) {
		return err
	}
	providerErr := NewProviderError(m.Provider(), m.model, err)

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		providerErr = providerErr.WithStatus(respErr.HTTPStatusCode()).WithRequestID(respErr.RequestID)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		providerErr = providerErr.WithCode(apiErr.ErrorCode())
		if msg := apiErr.ErrorMessage(); msg != "" {
			providerErr = providerErr.WithMessage(msg)
		}
	}
	return providerErr
}

func bedrockFinishReason(reason types.StopReason) models.FinishReason {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return models.FinishStop
	case types.StopReasonMaxTokens:
		return models.FinishLength
	case types.StopReasonToolUse:
		return models.FinishToolCalls
	case types.StopReasonGuardrailIntervened, types.StopReasonContentFiltered:
		return models.FinishContentFilter
	case "":
		return models.FinishUnknown
	default:
		return models.FinishOther
	}
}
