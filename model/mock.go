package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentflow/core"
)

// Turn is one scripted model reply: either a message or an error.
type Turn struct {
	Message core.Message
	Err     error
}

// Reply builds a scripted assistant reply with optional tool calls.
func Reply(text string, calls ...core.ToolCall) Turn {
	return Turn{Message: core.AssistantMessage(text, calls...)}
}

// Stop builds an empty reply, the answer of a model with nothing left to do.
func Stop() Turn { return Reply("") }

// Fail builds a scripted boundary failure.
func Fail(err error) Turn { return Turn{Err: err} }

// ScriptedModel is a deterministic Model for tests and examples. It replays
// its turns in order and repeats the last one when the script runs out.
// Every request is recorded for later inspection.
type ScriptedModel struct {
	mu       sync.Mutex
	info     Info
	turns    []Turn
	next     int
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel replaying turns.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	return &ScriptedModel{
		info:  Info{Name: "scripted", Provider: "scripted", SupportsTools: true},
		turns: turns,
	}
}

// Push appends turns to the script.
func (m *ScriptedModel) Push(turns ...Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turns...)
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many generations were requested.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *ScriptedModel) take(req Request) (Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		return Turn{}, fmt.Errorf("scripted model: empty script")
	}
	i := m.next
	if i >= len(m.turns) {
		i = len(m.turns) - 1
	} else {
		m.next++
	}
	return m.turns[i], nil
}

// Generate implements Model; when req.Stream is set the text is emitted as
// one partial chunk before the final response.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 2)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		turn, err := m.take(req)
		if err != nil {
			errCh <- err
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}
		if ctx.Err() != nil {
			errCh <- ctx.Err()
			return
		}
		msg := turn.Message.Clone()
		if req.Stream && msg.Content != "" {
			respCh <- Response{Partial: true, Message: core.AssistantMessage(msg.Content)}
		}
		reason := "stop"
		if msg.HasToolCalls() {
			reason = "tool_calls"
		}
		respCh <- Response{ID: core.NewID(), Message: msg, FinishReason: reason}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }
