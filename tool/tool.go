// Package tool implements the capability side of agentflow: the uniform Tool
// contract, a registry keyed by name, a function adapter with schema
// validated arguments and the Dispatcher that turns model tool calls into
// contained, ordered results.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
	"github.com/hupe1980/agentflow/model"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Implementations should:
//   - Provide clear, descriptive snake_case names and descriptions
//   - Define a JSON schema for parameters
//   - Honour toolCtx.Context() cancellation for blocking work
//   - Return errors rather than panic (panics are recovered, but logged as faults)
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments. The returned
	// value becomes the observation: strings are used verbatim, a Result
	// controls error/terminal flags, anything else is JSON encoded.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Definition returns the model facing definition of t.
func Definition(t Tool) model.ToolDefinition {
	return model.Definition(t.Name(), t.Description(), t.Parameters())
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeNotFound         = "TOOL_NOT_FOUND"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
	CodeValidation       = "VALIDATION_ERROR"
	CodeExecution        = "EXECUTION_ERROR"
	CodePanic            = "PANIC"
	CodeTimeout          = "TIMEOUT"
	CodeCancelled        = "CANCELLED"
)

// ToolError represents errors that occur while resolving or executing a tool.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Kind maps the error code onto the contained fault taxonomy.
func (e *ToolError) Kind() core.FaultKind {
	switch e.Code {
	case CodeNotFound, CodeInvalidArguments, CodeValidation:
		return core.FaultDispatch
	default:
		return core.FaultContainedTool
	}
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}
