package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/textgen/pkg/models"
)

// ParseToolCall checks a backend-reported tool call against the declared
// tools and returns it with normalized arguments.
//
// Empty arguments are treated as an empty object.
func ParseToolCall(call models.ToolCall, tools *ToolSet) (models.ToolCall, error) {
	tool, ok := tools.Get(call.Name)
	if !ok {
		return models.ToolCall{}, &UnknownToolError{ToolName: call.Name, Available: tools.Names()}
	}

	args := bytes.TrimSpace(call.Args)
	if len(args) == 0 {
		args = []byte("{}")
	}
	if len(args) > MaxToolParamsSize {
		return models.ToolCall{}, &InvalidToolArgumentsError{
			ToolName: call.Name,
			Cause:    fmt.Errorf("arguments exceed maximum size of %d bytes", MaxToolParamsSize),
		}
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err != nil {
		return models.ToolCall{}, &InvalidToolArgumentsError{ToolName: call.Name, Args: string(args), Cause: err}
	}

	if len(tool.Parameters) > 0 {
		schema, err := compileSchema(tool.Parameters)
		if err != nil {
			return models.ToolCall{}, &InvalidToolArgumentsError{
				ToolName: call.Name,
				Args:     string(args),
				Cause:    fmt.Errorf("compile parameter schema: %w", err),
			}
		}
		if err := schema.Validate(decoded); err != nil {
			return models.ToolCall{}, &InvalidToolArgumentsError{ToolName: call.Name, Args: string(args), Cause: err}
		}
	}

	return models.ToolCall{ID: call.ID, Name: call.Name, Args: json.RawMessage(args)}, nil
}

// ParseToolCalls parses every call, stopping at the first invalid one.
func ParseToolCalls(calls []models.ToolCall, tools *ToolSet) ([]models.ToolCall, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	parsed := make([]models.ToolCall, 0, len(calls))
	for _, call := range calls {
		tc, err := ParseToolCall(call, tools)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, tc)
	}
	return parsed, nil
}

var schemaCache sync.Map

func compileSchema(schema []byte) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString("tool.parameters.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
