package agent

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
)

// RequestProcessor contributes one aspect of a model request. Processors run
// in order and mutate req in place.
type RequestProcessor interface {
	Name() string
	ProcessRequest(ctx context.Context, in ThinkInput, req *model.Request) error
}

// InstructionsProcessor prepends the resolved system prompt.
type InstructionsProcessor struct {
	instruction Instruction
}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor(instruction Instruction) *InstructionsProcessor {
	return &InstructionsProcessor{instruction: instruction}
}

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest adds the system prompt to the request.
func (p *InstructionsProcessor) ProcessRequest(ctx context.Context, in ThinkInput, req *model.Request) error {
	if p.instruction.IsZero() {
		return nil
	}
	text, err := p.instruction.Resolve(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}
	if text != "" {
		req.Messages = append(req.Messages, core.SystemMessage(text))
	}
	return nil
}

// HistoryProcessor appends the conversation, optionally limited to the most
// recent messages.
type HistoryProcessor struct {
	window int
}

// NewHistoryProcessor creates a history processor; window <= 0 keeps everything.
func NewHistoryProcessor(window int) *HistoryProcessor { return &HistoryProcessor{window: window} }

// Name returns the processor's identifier.
func (p *HistoryProcessor) Name() string { return "history" }

// ProcessRequest adds conversation history to the request. A window never
// starts with orphaned tool observations whose call was cut off.
func (p *HistoryProcessor) ProcessRequest(_ context.Context, in ThinkInput, req *model.Request) error {
	msgs := in.Messages
	if p.window > 0 && len(msgs) > p.window {
		msgs = msgs[len(msgs)-p.window:]
	}
	for len(msgs) > 0 && msgs[0].Role == core.RoleTool {
		msgs = msgs[1:]
	}
	req.Messages = append(req.Messages, msgs...)
	return nil
}

// NextStepProcessor appends a user prompt asking for the next action. The
// prompt only lives in the request and is never stored in memory.
type NextStepProcessor struct {
	instruction Instruction
}

// NewNextStepProcessor creates a next-step processor.
func NewNextStepProcessor(instruction Instruction) *NextStepProcessor {
	return &NextStepProcessor{instruction: instruction}
}

// Name returns the processor's identifier.
func (p *NextStepProcessor) Name() string { return "next_step" }

// ProcessRequest adds the next-step prompt to the request.
func (p *NextStepProcessor) ProcessRequest(ctx context.Context, in ThinkInput, req *model.Request) error {
	if p.instruction.IsZero() {
		return nil
	}
	text, err := p.instruction.Resolve(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to resolve next step prompt: %w", err)
	}
	if text != "" {
		req.Messages = append(req.Messages, core.UserMessage(text))
	}
	return nil
}

// ToolsProcessor exposes the available tools under the configured choice mode.
type ToolsProcessor struct {
	choice model.ToolChoice
}

// NewToolsProcessor creates a tools processor.
func NewToolsProcessor(choice model.ToolChoice) *ToolsProcessor { return &ToolsProcessor{choice: choice} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest sets tools and tool choice on the request.
func (p *ToolsProcessor) ProcessRequest(_ context.Context, in ThinkInput, req *model.Request) error {
	req.ToolChoice = p.choice
	if p.choice == model.ToolChoiceNone || len(in.Tools) == 0 {
		req.Tools = nil
		return nil
	}
	req.Tools = append([]model.ToolDefinition(nil), in.Tools...)
	return nil
}
