package toolconv

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"google.golang.org/genai"

	"github.com/haasonsaas/textgen/internal/agent"
)

func testDefinitions() []agent.ToolDefinition {
	return []agent.ToolDefinition{
		{
			Name:        "search",
			Description: "Search tool",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"q": {"type": "string", "description": "query"},
					"limit": {"type": ["integer", "null"]},
					"tags": {"type": "array", "items": {"type": "string", "enum": ["a", "b"]}}
				},
				"required": ["q"]
			}`),
		},
		{
			Name:       "broken",
			Parameters: json.RawMessage(`{not-json}`),
		},
	}
}

func TestToOpenAITools(t *testing.T) {
	tools := ToOpenAITools(testDefinitions())
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(tools))
	}
	if tools[0].Function.Name != "search" || tools[0].Function.Description != "Search tool" {
		t.Errorf("unexpected function: %+v", tools[0].Function)
	}
	params, ok := tools[1].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("broken schema should fall back to empty object, got %#v", tools[1].Function.Parameters)
	}
	if ToOpenAITools(nil) != nil {
		t.Error("expected nil for no tools")
	}
}

func TestToAnthropicTools(t *testing.T) {
	tools, err := ToAnthropicTools(testDefinitions()[:1])
	if err != nil {
		t.Fatalf("ToAnthropicTools() error = %v", err)
	}
	if len(tools) != 1 || tools[0].OfTool == nil || tools[0].OfTool.Name != "search" {
		t.Fatalf("unexpected tools: %+v", tools)
	}
	if _, err := ToAnthropicTools(testDefinitions()); err == nil {
		t.Error("expected error for malformed schema")
	}

	tool, err := ToAnthropicTool(agent.ToolDefinition{Name: "bare"})
	if err != nil || tool.OfTool == nil {
		t.Fatalf("bare tool: %v", err)
	}
}

func TestToGeminiTools(t *testing.T) {
	tools := ToGeminiTools(testDefinitions())
	if len(tools) != 1 || len(tools[0].FunctionDeclarations) != 2 {
		t.Fatalf("unexpected tools: %+v", tools)
	}

	params := tools[0].FunctionDeclarations[0].Parameters
	if params.Type != genai.TypeObject {
		t.Errorf("type = %q", params.Type)
	}
	if params.Properties["q"].Description != "query" {
		t.Errorf("q = %+v", params.Properties["q"])
	}
	limit := params.Properties["limit"]
	if limit.Type != genai.TypeInteger || limit.Nullable == nil || !*limit.Nullable {
		t.Errorf("limit = %+v", limit)
	}
	tags := params.Properties["tags"]
	if tags.Items == nil || len(tags.Items.Enum) != 2 {
		t.Errorf("tags = %+v", tags)
	}
	if len(params.Required) != 1 || params.Required[0] != "q" {
		t.Errorf("required = %v", params.Required)
	}
}

func TestToBedrockTools(t *testing.T) {
	cfg := ToBedrockTools(testDefinitions())
	if cfg == nil || len(cfg.Tools) != 2 {
		t.Fatalf("expected 2 bedrock tools, got %#v", cfg)
	}

	spec, ok := cfg.Tools[0].(*types.ToolMemberToolSpec)
	if !ok {
		t.Fatalf("expected ToolMemberToolSpec, got %T", cfg.Tools[0])
	}
	if spec.Value.Name == nil || *spec.Value.Name != "search" {
		t.Fatalf("unexpected tool name: %#v", spec.Value.Name)
	}
	if spec.Value.InputSchema == nil {
		t.Fatal("expected input schema to be set")
	}

	broken := cfg.Tools[1].(*types.ToolMemberToolSpec)
	if broken.Value.Description != nil {
		t.Error("empty description should be omitted")
	}

	if ToBedrockTools(nil) != nil {
		t.Error("expected nil configuration for no tools")
	}
}
