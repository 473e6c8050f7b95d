package agent

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors for generation
var (
	// ErrNoModel indicates the generator was built without a language model
	ErrNoModel = errors.New("no language model configured")

	// ErrToolTimeout indicates a tool execution timed out
	ErrToolTimeout = errors.New("tool execution timed out")

	// ErrToolPanic indicates a tool panicked during execution
	ErrToolPanic = errors.New("tool panicked")

	// ErrDuplicateTool indicates two tools were declared with the same name
	ErrDuplicateTool = errors.New("duplicate tool name")

	// ErrInvalidToolName indicates an empty or oversized tool name
	ErrInvalidToolName = errors.New("invalid tool name")
)

// UnknownToolError reports a tool call naming a tool that was not declared.
type UnknownToolError struct {
	ToolName  string
	Available []string
}

func (e *UnknownToolError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("model tried to call unavailable tool %q: no tools are available", e.ToolName)
	}
	return fmt.Sprintf("model tried to call unavailable tool %q: available tools are %s",
		e.ToolName, strings.Join(e.Available, ", "))
}

// InvalidToolArgumentsError reports tool call arguments that are not valid
// JSON or do not match the tool's parameter schema.
type InvalidToolArgumentsError struct {
	ToolName string
	Args     string
	Cause    error
}

func (e *InvalidToolArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.ToolName, e.Cause)
}

func (e *InvalidToolArgumentsError) Unwrap() error {
	return e.Cause
}

// InvalidArgumentError reports an out-of-range call setting.
type InvalidArgumentError struct {
	Parameter string
	Value     any
	Message   string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument for parameter %s (value %v): %s", e.Parameter, e.Value, e.Message)
}

// ToolErrorType categorizes tool execution errors.
type ToolErrorType string

const (
	// ToolErrorTimeout indicates the tool timed out
	ToolErrorTimeout ToolErrorType = "timeout"

	// ToolErrorCancelled indicates the batch was cancelled before the tool finished
	ToolErrorCancelled ToolErrorType = "cancelled"

	// ToolErrorPanic indicates the tool panicked
	ToolErrorPanic ToolErrorType = "panic"

	// ToolErrorExecution indicates the tool returned an error
	ToolErrorExecution ToolErrorType = "execution"
)

// ToolError represents a failed tool execution.
type ToolError struct {
	// Type categorizes the failure
	Type ToolErrorType

	// ToolName is the name of the tool that failed
	ToolName string

	// ToolCallID is the ID of the tool call that failed
	ToolCallID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[tool:%s]", e.Type))

	if e.ToolName != "" {
		parts = append(parts, e.ToolName)
	}
	if e.ToolCallID != "" {
		parts = append(parts, fmt.Sprintf("call=%s", e.ToolCallID))
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error {
	return e.Cause
}

// GetToolError extracts a ToolError from an error chain using errors.As.
func GetToolError(err error) (*ToolError, bool) {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}
