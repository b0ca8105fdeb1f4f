package agent

import (
	"context"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
)

// ThinkInput is everything a strategy sees when proposing the next action.
type ThinkInput struct {
	Agent    string
	Step     int
	MaxSteps int
	Messages []core.Message // snapshot of memory, oldest first
	Tools    []model.ToolDefinition
}

// Strategy produces the next action of an agent loop.
type Strategy interface {
	// Think returns the next assistant message, possibly with tool calls.
	Think(ctx context.Context, in ThinkInput) (core.Message, error)
	// Done reports whether a message without tool calls ends the run.
	// Messages it rejects count as the step's output and feed stuck detection.
	Done(msg core.Message) bool
}

// ThinkFunc adapts a function to a Strategy that finishes once the function
// returns an empty message.
type ThinkFunc func(ctx context.Context, in ThinkInput) (core.Message, error)

// Think implements Strategy.
func (f ThinkFunc) Think(ctx context.Context, in ThinkInput) (core.Message, error) { return f(ctx, in) }

// Done implements Strategy.
func (f ThinkFunc) Done(msg core.Message) bool { return msg.Text() == "" }
