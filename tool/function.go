package tool

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
)

// FunctionTool exposes a Go function as a Tool. Arguments are checked
// against the parameter schema before fn runs; a mismatch is reported as
// CodeValidation, a plain error from fn as CodeExecution and a *ToolError
// from fn is passed through unchanged.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// NewFunctionTool builds a FunctionTool from an explicit JSON schema.
//
//	echo := tool.NewFunctionTool("echo", "Echo the text back", map[string]any{
//		"type":       "object",
//		"properties": map[string]any{"text": map[string]any{"type": "string"}},
//		"required":   []string{"text"},
//	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
//		return args["text"], nil
//	})
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

// NewFunctionToolFromStruct derives the parameter schema from the fields of
// structType.
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

func (t *FunctionTool) Name() string { return t.name }

func (t *FunctionTool) Description() string { return t.description }

func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args and invokes the wrapped function.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	logger := toolCtx.Logger()

	if err := util.ValidateParameters(args, t.parameters); err != nil {
		logger.Debug("tool.function.invalid_arguments", "tool", t.name, "call_id", toolCtx.FunctionCallID(), "error", err)
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	start := time.Now()
	result, err := t.fn(toolCtx, args)
	elapsed := time.Since(start).Milliseconds()
	if err == nil {
		logger.Debug("tool.function.done", "tool", t.name, "duration_ms", elapsed)
		return result, nil
	}

	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return nil, toolErr
	}
	logger.Debug("tool.function.failed", "tool", t.name, "duration_ms", elapsed, "error", err)
	return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution}
}
