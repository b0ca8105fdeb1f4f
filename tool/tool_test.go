package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
)

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func newToolContext(id string) *core.ToolContext {
	return core.NewToolContext(context.Background(), "agent", id, nil)
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.ElementsMatch(t, []string{"a"}, util.RequiredFields(schema))
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// decoded JSON shape
		"required": []any{"x"},
	}

	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	err = util.ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "x", vErr.Field)

	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type integer")
}

func TestValidateParameters_StringRequiredAndEnum(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status": map[string]any{"type": "string", "enum": []string{"success", "failure"}},
		},
		"required": []string{"status"},
	}

	assert.Error(t, util.ValidateParameters(map[string]any{}, schema))
	assert.NoError(t, util.ValidateParameters(map[string]any{"status": "success"}, schema))

	err := util.ValidateParameters(map[string]any{"status": "maybe"}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)
	assert.Contains(t, vErr.Message, "success, failure")
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	result, err := sumTool.Call(newToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []string{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	_, err := tTool.Call(newToolContext("fc2"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Equal(t, core.FaultDispatch, toolErr.Kind())
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Call(newToolContext("fc3"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, core.FaultContainedTool, toolErr.Kind())
}

func TestFunctionTool_PreservesCustomCode(t *testing.T) {
	custom := NewFunctionTool("custom", "Custom", map[string]any{}, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, NewToolError("custom", "denied", "E_DENIED")
	})
	_, err := custom.Call(newToolContext("fc4"), map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "E_DENIED", toolErr.Code)
}

// -------------------- Registry Tests --------------------

func TestRegistry(t *testing.T) {
	a := NewFunctionTool("a", "first", map[string]any{"type": "object"}, nil)
	b := NewFunctionTool("b", "second", map[string]any{"type": "object"}, nil)

	r, err := NewRegistry(b, a)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, r.Names())
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "first", got.Description())

	_, ok = r.Get("missing")
	assert.False(t, ok)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "b", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)

	assert.Error(t, r.Register(NewFunctionTool("a", "dup", nil, nil)))
	assert.Panics(t, func() { MustRegistry(a, a) })
}

// -------------------- ToolError & Result Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

func TestResultMessage(t *testing.T) {
	ok := Result{CallID: "c1", Tool: "echo", Output: "hi"}
	msg := ok.Message()
	assert.Equal(t, core.RoleTool, msg.Role)
	assert.Equal(t, "c1", msg.ToolCallID)
	assert.Equal(t, "echo", msg.Name)
	assert.Contains(t, msg.Content, "hi")

	empty := Result{CallID: "c2", Tool: "noop"}
	assert.Contains(t, empty.Observation(), "no output")

	failed := Fail(core.ToolCall{ID: "c3", Name: "x"}, NewToolError("x", "bad", CodeExecution))
	assert.True(t, failed.IsError)
	assert.Equal(t, "Error: bad", failed.Observation())
}

func TestFromValue(t *testing.T) {
	assert.Equal(t, "text", fromValue("text").Output)
	assert.Equal(t, "", fromValue(nil).Output)
	assert.Equal(t, `{"k":1}`, fromValue(map[string]int{"k": 1}).Output)
	assert.True(t, fromValue(Terminate("bye")).Terminal)
	assert.Len(t, fromValue(core.Media{MimeType: "image/png", Data: "AA=="}).Media, 1)
}
