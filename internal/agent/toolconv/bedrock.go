package toolconv

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/textgen/internal/agent"
)

// ToBedrockTools converts tool definitions to a Converse tool configuration.
// It returns nil when there are no tools, since Converse rejects an empty list.
func ToBedrockTools(tools []agent.ToolDefinition) *types.ToolConfiguration {
	if len(tools) == 0 {
		return nil
	}
	bedrockTools := make([]types.Tool, len(tools))

	for i, tool := range tools {
		var schema any
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil || schema == nil {
			schema = emptyObjectSchema()
		}

		spec := types.ToolSpecification{
			Name:        aws.String(tool.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
		}
		if tool.Description != "" {
			spec.Description = aws.String(tool.Description)
		}
		bedrockTools[i] = &types.ToolMemberToolSpec{Value: spec}
	}

	return &types.ToolConfiguration{Tools: bedrockTools}
}
