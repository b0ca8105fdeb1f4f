package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/model"
)

// ErrToolCallRequired is returned when tool choice is required but the model
// answered without a tool call. It is retried like any boundary failure.
var ErrToolCallRequired = errors.New("tool choice required but model returned no tool call")

// ToolCallOptions configure a ToolCallStrategy.
type ToolCallOptions struct {
	SystemPrompt   Instruction
	NextStepPrompt Instruction
	ToolChoice     model.ToolChoice
	// HistoryWindow limits how many memory messages are sent; 0 sends all.
	HistoryWindow int
	Stream        bool
	// Budget is charged per model call when the context carries none.
	Budget *core.CallBudget
	// Processors run after the default pipeline.
	Processors []RequestProcessor
	Logger     logging.Logger
}

// ToolCallStrategy is the model backed Strategy: each think phase composes a
// model.Request through its processor pipeline and collects the reply.
type ToolCallStrategy struct {
	llm        model.Model
	opts       ToolCallOptions
	processors []RequestProcessor
}

// NewToolCallStrategy creates a strategy asking llm for the next action.
func NewToolCallStrategy(llm model.Model, optFns ...func(o *ToolCallOptions)) *ToolCallStrategy {
	opts := ToolCallOptions{ToolChoice: model.ToolChoiceAuto}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	processors := []RequestProcessor{
		NewInstructionsProcessor(opts.SystemPrompt),
		NewHistoryProcessor(opts.HistoryWindow),
		NewNextStepProcessor(opts.NextStepPrompt),
		NewToolsProcessor(opts.ToolChoice),
	}
	processors = append(processors, opts.Processors...)

	return &ToolCallStrategy{llm: llm, opts: opts, processors: processors}
}

// Model returns the underlying model.
func (s *ToolCallStrategy) Model() model.Model { return s.llm }

// BuildRequest runs the processor pipeline.
func (s *ToolCallStrategy) BuildRequest(ctx context.Context, in ThinkInput) (model.Request, error) {
	req := model.Request{Stream: s.opts.Stream}
	for _, p := range s.processors {
		if err := p.ProcessRequest(ctx, in, &req); err != nil {
			return model.Request{}, fmt.Errorf("processor %s: %w", p.Name(), model.Permanent(err))
		}
	}
	return req, nil
}

// Think implements Strategy.
func (s *ToolCallStrategy) Think(ctx context.Context, in ThinkInput) (core.Message, error) {
	req, err := s.BuildRequest(ctx, in)
	if err != nil {
		return core.Message{}, err
	}

	budget := core.CallBudgetFrom(ctx)
	if budget == nil {
		budget = s.opts.Budget
	}
	if err := budget.Charge(); err != nil {
		return core.Message{}, err
	}

	start := time.Now()
	resp, err := model.Collect(ctx, s.llm, req)
	dur := time.Since(start)
	if err != nil {
		logging.LogLLMCall(s.opts.Logger, s.llm.Info().String(), 0, dur, err, "agent", in.Agent)
		return core.Message{}, err
	}

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}
	logging.LogLLMCall(s.opts.Logger, s.llm.Info().String(), tokens, dur, nil, "agent", in.Agent, "tool_calls", len(resp.Message.ToolCalls))

	msg := resp.Message
	switch s.opts.ToolChoice {
	case model.ToolChoiceRequired:
		if !msg.HasToolCalls() {
			return core.Message{}, ErrToolCallRequired
		}
	case model.ToolChoiceNone:
		msg.ToolCalls = nil
	}

	return msg, nil
}

// Done implements Strategy: only an empty reply ends the run. Plain text is
// the step's output and the loop asks again until a terminal tool is called.
func (s *ToolCallStrategy) Done(msg core.Message) bool { return msg.Text() == "" }
