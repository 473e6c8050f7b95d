package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/haasonsaas/textgen/internal/agent"
	"github.com/haasonsaas/textgen/pkg/models"
)

type fakeConverseClient struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeConverseClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.output, f.err
}

func TestBedrockModel_Generate(t *testing.T) {
	client := &fakeConverseClient{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "One moment."},
				&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String("tooluse_1"),
					Name:      aws.String("weather"),
					Input:     document.NewLazyDocument(map[string]any{"city": "Paris"}),
				}},
			},
		}},
		StopReason: types.StopReasonToolUse,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(30),
			OutputTokens: aws.Int32(8),
			TotalTokens:  aws.Int32(38),
		},
	}}
	m := NewBedrockModelWithClient(client, "us.anthropic.claude-sonnet-4-20250514-v1:0", nil)

	resp, err := m.Generate(context.Background(), &agent.GenerateRequest{
		System: "Be terse.",
		Mode: agent.Mode{Type: agent.ModeRegular, Tools: []agent.ToolDefinition{{
			Name:       "weather",
			Parameters: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"}}}`),
		}}},
		Messages: []models.Message{models.UserMessage("Weather in Paris?")},
		Settings: agent.CallSettings{
			MaxTokens:     agent.Ptr(200),
			Temperature:   agent.Ptr(0.3),
			StopSequences: []string{"END"},
			TopK:          agent.Ptr(10),
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	in := client.input
	if aws.ToString(in.ModelId) != "us.anthropic.claude-sonnet-4-20250514-v1:0" {
		t.Errorf("ModelId = %s", aws.ToString(in.ModelId))
	}
	if len(in.System) != 1 {
		t.Errorf("System = %+v", in.System)
	}
	if in.InferenceConfig == nil || aws.ToInt32(in.InferenceConfig.MaxTokens) != 200 || len(in.InferenceConfig.StopSequences) != 1 {
		t.Errorf("InferenceConfig = %+v", in.InferenceConfig)
	}
	if in.ToolConfig == nil || len(in.ToolConfig.Tools) != 1 {
		t.Errorf("ToolConfig = %+v", in.ToolConfig)
	}
	if len(in.Messages) != 1 || in.Messages[0].Role != types.ConversationRoleUser {
		t.Errorf("Messages = %+v", in.Messages)
	}

	if resp.Text == nil || *resp.Text != "One moment." {
		t.Errorf("Text = %v", resp.Text)
	}
	if resp.FinishReason != models.FinishToolCalls {
		t.Errorf("FinishReason = %s", resp.FinishReason)
	}
	if resp.Usage != models.CalculateUsage(30, 8) {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "tooluse_1" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	var args map[string]string
	if err := json.Unmarshal(resp.ToolCalls[0].Args, &args); err != nil || args["city"] != "Paris" {
		t.Errorf("Args = %s", resp.ToolCalls[0].Args)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].Setting != "top_k" {
		t.Errorf("Warnings = %+v", resp.Warnings)
	}

	if n, ok := m.ContextWindow(); !ok || n != 200000 {
		t.Errorf("ContextWindow() = %d, %v; want family window", n, ok)
	}
}

func TestBedrockModel_NoInferenceConfig(t *testing.T) {
	client := &fakeConverseClient{output: &bedrockruntime.ConverseOutput{StopReason: types.StopReasonEndTurn}}
	m := NewBedrockModelWithClient(client, "amazon.nova-lite-v1:0", nil)

	resp, err := m.Generate(context.Background(), &agent.GenerateRequest{
		Messages: []models.Message{models.UserMessage("Hi")},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if client.input.InferenceConfig != nil {
		t.Errorf("InferenceConfig = %+v, want nil", client.input.InferenceConfig)
	}
	if client.input.ToolConfig != nil {
		t.Errorf("ToolConfig = %+v, want nil", client.input.ToolConfig)
	}
	if resp.Text != nil || resp.FinishReason != models.FinishStop {
		t.Errorf("resp = %+v", resp)
	}
}

func TestBedrockModel_Errors(t *testing.T) {
	withStatus := func(status int, err error) error {
		return &awshttp.ResponseError{
			ResponseError: &smithyhttp.ResponseError{
				Response: &smithyhttp.Response{Response: &http.Response{StatusCode: status}},
				Err:      err,
			},
			RequestID: "req-123",
		}
	}

	tests := []struct {
		name      string
		err       error
		reason    FailoverReason
		status    int
		retryable bool
	}{
		{
			name:      "throttled",
			err:       withStatus(429, &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Too many requests"}),
			reason:    FailoverRateLimit,
			status:    429,
			retryable: true,
		},
		{
			name:      "validation",
			err:       withStatus(400, &smithy.GenericAPIError{Code: "ValidationException", Message: "Malformed input request"}),
			reason:    FailoverInvalidRequest,
			status:    400,
			retryable: false,
		},
		{
			name:      "access denied without status",
			err:       &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "not authorized"},
			reason:    FailoverAuth,
			retryable: false,
		},
		{
			name:      "transport failure",
			err:       errors.New("dial tcp: connection refused"),
			reason:    FailoverUnknown,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewBedrockModelWithClient(&fakeConverseClient{err: tt.err}, "amazon.nova-pro-v1:0", nil)
			_, err := m.Generate(context.Background(), &agent.GenerateRequest{
				Messages: []models.Message{models.UserMessage("Hi")},
			})
			providerErr, ok := GetProviderError(err)
			if !ok {
				t.Fatalf("error %v is not a ProviderError", err)
			}
			if providerErr.Reason != tt.reason {
				t.Errorf("Reason = %s, want %s", providerErr.Reason, tt.reason)
			}
			if providerErr.Status != tt.status {
				t.Errorf("Status = %d, want %d", providerErr.Status, tt.status)
			}
			if providerErr.Retryable() != tt.retryable {
				t.Errorf("Retryable() = %v, want %v", providerErr.Retryable(), tt.retryable)
			}
			if tt.status != 0 && providerErr.RequestID != "req-123" {
				t.Errorf("RequestID = %q", providerErr.RequestID)
			}
		})
	}
}

func TestBedrockModel_ConvertMessages(t *testing.T) {
	m := NewBedrockModelWithClient(&fakeConverseClient{}, "amazon.nova-pro-v1:0", nil)

	got, err := m.convertMessages([]models.Message{
		{Role: models.RoleUser, Parts: []models.Part{
			{Type: models.PartText, Text: "Look"},
			{Type: models.PartImage, MimeType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}},
		}},
		{Role: models.RoleTool, Parts: []models.Part{
			{Type: models.PartToolResult, ToolResult: &models.ToolResult{ToolCallID: "t1", Result: map[string]any{"ok": true}}},
			{Type: models.PartToolResult, ToolResult: &models.ToolResult{ToolCallID: "t2", Result: "plain"}},
		}},
	})
	if err != nil {
		t.Fatalf("convertMessages: %v", err)
	}

	img, ok := got[0].Content[1].(*types.ContentBlockMemberImage)
	if !ok || img.Value.Format != types.ImageFormatJpeg {
		t.Errorf("image block = %#v", got[0].Content[1])
	}

	if got[1].Role != types.ConversationRoleUser {
		t.Errorf("tool results role = %s", got[1].Role)
	}
	first := got[1].Content[0].(*types.ContentBlockMemberToolResult)
	if _, ok := first.Value.Content[0].(*types.ToolResultContentBlockMemberJson); !ok {
		t.Errorf("object result = %#v, want JSON block", first.Value.Content[0])
	}
	second := got[1].Content[1].(*types.ContentBlockMemberToolResult)
	if text, ok := second.Value.Content[0].(*types.ToolResultContentBlockMemberText); !ok || text.Value != "plain" {
		t.Errorf("string result = %#v, want text block", second.Value.Content[0])
	}

	_, err = m.convertMessages([]models.Message{{Role: models.RoleUser, Parts: []models.Part{
		{Type: models.PartImage, URL: "https://example.com/cat.png"},
	}}})
	if providerErr, ok := GetProviderError(err); !ok || providerErr.Reason != FailoverInvalidRequest {
		t.Errorf("remote image error = %v, want invalid request", err)
	}
}

func TestBedrockFinishReason(t *testing.T) {
	tests := map[types.StopReason]models.FinishReason{
		types.StopReasonEndTurn:             models.FinishStop,
		types.StopReasonStopSequence:        models.FinishStop,
		types.StopReasonMaxTokens:           models.FinishLength,
		types.StopReasonToolUse:             models.FinishToolCalls,
		types.StopReasonGuardrailIntervened: models.FinishContentFilter,
		types.StopReasonContentFiltered:     models.FinishContentFilter,
		"":                                  models.FinishUnknown,
	}
	for in, want := range tests {
		if got := bedrockFinishReason(in); got != want {
			t.Errorf("bedrockFinishReason(%q) = %s, want %s", in, got, want)
		}
	}
}
