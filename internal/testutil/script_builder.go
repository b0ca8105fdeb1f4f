package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
)

// Call builds a tool call with JSON encoded args. IDs are assigned by
// ScriptBuilder; a standalone call gets "call_<name>".
func Call(name string, args map[string]any) core.ToolCall {
	b, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("testutil: encode args of %s: %v", name, err))
	}
	return core.ToolCall{ID: "call_" + name, Name: name, Arguments: string(b)}
}

// ScriptBuilder provides a fluent helper for scripting model turns.
// Example:
//
//	llm := NewScriptBuilder().
//		Plan("p1", "Task", "Collect data", "Write report").
//		Answer("collected").
//		Answer("written").
//		Reply("Report is ready.").
//		Model()
//
// Chain only the parts you need; call IDs are unique within the script.
type ScriptBuilder struct {
	turns []model.Turn
	calls int
}

// NewScriptBuilder creates an empty script.
func NewScriptBuilder() *ScriptBuilder { return &ScriptBuilder{} }

// Reply appends an assistant reply without tool calls (chainable).
func (b *ScriptBuilder) Reply(text string) *ScriptBuilder {
	b.turns = append(b.turns, model.Reply(text))
	return b
}

// Answer appends a reply followed by an empty turn, which ends an agent
// run without a terminate call (chainable).
func (b *ScriptBuilder) Answer(text string) *ScriptBuilder {
	b.turns = append(b.turns, model.Reply(text), model.Stop())
	return b
}

// Calls appends an assistant reply carrying the given tool calls (chainable).
func (b *ScriptBuilder) Calls(text string, calls ...core.ToolCall) *ScriptBuilder {
	for i := range calls {
		b.calls++
		calls[i].ID = fmt.Sprintf("call_%d", b.calls)
	}
	b.turns = append(b.turns, model.Reply(text, calls...))
	return b
}

// Tool appends a reply with a single tool call (chainable).
func (b *ScriptBuilder) Tool(name string, args map[string]any) *ScriptBuilder {
	return b.Calls("", Call(name, args))
}

// Terminate appends a terminate call with the given status (chainable).
func (b *ScriptBuilder) Terminate(status string) *ScriptBuilder {
	return b.Tool("terminate", map[string]any{"status": status})
}

// Plan appends a planning tool "create" call as drafted by a planner (chainable).
func (b *ScriptBuilder) Plan(id, title string, steps ...string) *ScriptBuilder {
	return b.Tool("planning", map[string]any{
		"command": "create",
		"plan_id": id,
		"title":   title,
		"steps":   steps,
	})
}

// Fail appends a boundary failure (chainable).
func (b *ScriptBuilder) Fail(err error) *ScriptBuilder {
	b.turns = append(b.turns, model.Fail(err))
	return b
}

// Turns returns the scripted turns.
func (b *ScriptBuilder) Turns() []model.Turn { return append([]model.Turn(nil), b.turns...) }

// Model returns a ScriptedModel replaying the script.
func (b *ScriptBuilder) Model() *model.ScriptedModel { return model.NewScriptedModel(b.Turns()...) }
