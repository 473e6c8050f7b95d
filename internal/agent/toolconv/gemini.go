package toolconv

import (
	"encoding/json"
	"strings"

	"google.golang.org/genai"

	"github.com/haasonsaas/textgen/internal/agent"
)

// ToGeminiTools converts tool definitions into a single Gemini tool holding
// one function declaration per definition.
func ToGeminiTools(tools []agent.ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Parameters, &schemaMap); err != nil {
			schemaMap = emptyObjectSchema()
		}

		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  ToGeminiSchema(schemaMap),
		})
	}

	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// ToGeminiSchema converts a JSON Schema map to Gemini's Schema type.
// Keywords Gemini does not model, such as additionalProperties, are dropped.
func ToGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}

	switch t := schemaMap["type"].(type) {
	case string:
		schema.Type = genai.Type(strings.ToUpper(t))
	case []any:
		// ["string","null"] style unions: first non-null type, marked nullable.
		for _, v := range t {
			s, _ := v.(string)
			if s == "null" {
				schema.Nullable = genai.Ptr(true)
				continue
			}
			if schema.Type == "" && s != "" {
				schema.Type = genai.Type(strings.ToUpper(s))
			}
		}
	}

	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if format, ok := schemaMap["format"].(string); ok {
		schema.Format = format
	}

	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = ToGeminiSchema(propMap)
			}
		}
	}

	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = ToGeminiSchema(items)
	}

	return schema
}
