package core

import (
	"context"

	"github.com/hupe1980/agentflow/logging"
)

// ToolContext is the constrained surface a tool implementation receives for
// one invocation: the (timeout bound) context, the originating call id, the
// calling agent and a logger already tagged with both.
type ToolContext struct {
	ctx            context.Context
	functionCallID string
	agentName      string
	logger         logging.Logger
}

// NewToolContext constructs a tool context for a single call. A nil logger
// is replaced with logging.NoOpLogger.
func NewToolContext(ctx context.Context, agentName, functionCallID string, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		functionCallID: functionCallID,
		agentName:      agentName,
		logger:         logger,
	}
}

// Context returns the context bound to the invocation. Tools performing
// blocking work must honour its cancellation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// FunctionCallID returns the id of the tool call being served.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent that issued the call.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Logger returns the invocation logger.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }
