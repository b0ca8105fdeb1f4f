package agent

import (
	"context"
	"strings"

	"github.com/hupe1980/agentflow/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
type Provider interface {
	Instruction(ctx context.Context, in ThinkInput) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, in ThinkInput) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, in ThinkInput) (string, error) { return f(ctx, in) }

// Instruction represents either a static instruction string or a dynamic provider.
// Static text is rendered as a text/template with the variables agent, step,
// max_steps and tools.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, in ThinkInput) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether the instruction is empty.
func (i Instruction) IsZero() bool { return i.provider == nil && strings.TrimSpace(i.text) == "" }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(ctx context.Context, in ThinkInput) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, in)
	}
	return util.RenderTemplate(i.text, templateVars(in))
}

func templateVars(in ThinkInput) map[string]any {
	tools := make([]string, 0, len(in.Tools))
	for _, t := range in.Tools {
		tools = append(tools, t.Function.Name)
	}
	return map[string]any{
		"agent":     in.Agent,
		"step":      in.Step,
		"max_steps": in.MaxSteps,
		"tools":     tools,
	}
}
