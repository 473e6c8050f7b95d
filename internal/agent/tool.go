package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool arguments JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// ExecuteFunc runs a tool with arguments that already passed schema
// validation. The returned value becomes ToolResult.Result.
type ExecuteFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Tool declares a capability the model may call.
//
// Parameters is a JSON Schema document describing the arguments object.
// Execute is optional: a tool without it is offered to the model and its
// calls are parsed, but nothing runs and no result is produced.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Execute     ExecuteFunc
}

// ToolDefinition is the part of a Tool sent to the backend.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Definition returns the backend-facing description of the tool.
func (t Tool) Definition() ToolDefinition {
	params := t.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return ToolDefinition{Name: t.Name, Description: t.Description, Parameters: params}
}

// ToolSet is an immutable, name-indexed set of tools for one request.
// Iteration order is declaration order.
type ToolSet struct {
	tools map[string]Tool
	order []string
}

// NewToolSet validates tool names and builds a ToolSet.
func NewToolSet(tools ...Tool) (*ToolSet, error) {
	set := &ToolSet{
		tools: make(map[string]Tool, len(tools)),
		order: make([]string, 0, len(tools)),
	}
	for _, tool := range tools {
		if tool.Name == "" || len(tool.Name) > MaxToolNameLength {
			return nil, fmt.Errorf("%w: %q", ErrInvalidToolName, tool.Name)
		}
		if _, exists := set.tools[tool.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Name)
		}
		if len(tool.Parameters) > 0 && !json.Valid(tool.Parameters) {
			return nil, fmt.Errorf("tool %s: parameters are not valid JSON", tool.Name)
		}
		set.tools[tool.Name] = tool
		set.order = append(set.order, tool.Name)
	}
	return set, nil
}

// Get returns a tool by name and a boolean indicating if it was found.
func (s *ToolSet) Get(name string) (Tool, bool) {
	if s == nil {
		return Tool{}, false
	}
	tool, ok := s.tools[name]
	return tool, ok
}

// Len returns the number of tools.
func (s *ToolSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Names returns the tool names in declaration order.
func (s *ToolSet) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Definitions returns the backend-facing tool definitions.
func (s *ToolSet) Definitions() []ToolDefinition {
	if s.Len() == 0 {
		return nil
	}
	defs := make([]ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, s.tools[name].Definition())
	}
	return defs
}

// ReflectParameters builds a parameter schema from a Go struct using its
// json tags and jsonschema struct tags.
func ReflectParameters[T any]() json.RawMessage {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	var zero T
	schema := r.Reflect(&zero)
	schema.Version = ""
	schema.ID = ""
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflected schemas only contain marshalable values.
		panic(fmt.Sprintf("marshal reflected schema: %v", err))
	}
	return data
}

// NewTypedTool declares a tool whose arguments decode into T.
func NewTypedTool[T any](name, description string, fn func(ctx context.Context, args T) (any, error)) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Parameters:  ReflectParameters[T](),
		Execute: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args T
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("decode %s arguments: %w", name, err)
			}
			return fn(ctx, args)
		},
	}
}
