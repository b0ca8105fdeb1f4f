package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/tool"
	"github.com/hupe1980/agentflow/tool/builtin"
)

var fastRetry = model.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, BackoffMultiplier: 1}

func echoTool() tool.Tool {
	return tool.NewFunctionTool("echo", "Echo text", map[string]any{
		"type":       "object",
		"properties": map[string]any{"text": map[string]any{"type": "string"}},
	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		text, _ := args["text"].(string)
		return text, nil
	})
}

func sleepTool(d time.Duration) tool.Tool {
	return tool.NewFunctionTool("sleep", "Sleep", map[string]any{"type": "object"}, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		select {
		case <-time.After(d):
			return "slept", nil
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	})
}

func call(name, args string) core.ToolCall {
	return core.ToolCall{ID: core.NewID(), Name: name, Arguments: args}
}

func newTestAgent(llm model.Model, optFns ...func(o *Options)) *Agent {
	fns := append([]func(o *Options){func(o *Options) {
		o.Tools = tool.MustRegistry(echoTool(), builtin.NewTerminate())
		o.Retry = fastRetry
	}}, optFns...)
	return New("tester", NewToolCallStrategy(llm), fns...)
}

func countSystem(msgs []core.Message, content string) int {
	n := 0
	for _, m := range msgs {
		if m.Role == core.RoleSystem && m.Content == content {
			n++
		}
	}
	return n
}

func TestAgent_CompletesOnEmptyReply(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("hello there"), model.Stop())
	a := newTestAgent(llm)

	out, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)

	res := a.Result()
	assert.Equal(t, StateFinished, res.State)
	assert.Equal(t, FinishCompleted, res.FinishReason)
	assert.Equal(t, 2, res.Steps)
	assert.False(t, res.Failed)

	msgs := a.Memory().All()
	require.Len(t, msgs, 3)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, "hello there", msgs[1].Content)
	assert.Equal(t, core.RoleAssistant, msgs[2].Role)
}

func TestAgent_PlainTextKeepsRunning(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Reply("first I read the task"),
		model.Reply("now I call terminate", call("terminate", `{"status":"success"}`)),
	)
	a := newTestAgent(llm)

	_, err := a.Run(context.Background(), "go")
	require.NoError(t, err)

	res := a.Result()
	assert.Equal(t, FinishTerminated, res.FinishReason)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 2, llm.Calls())
}

func TestAgent_ToolCallThenAnswer(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Reply("", call("echo", `{"text":"ping"}`)),
		model.Reply("pong received"),
		model.Stop(),
	)
	a := newTestAgent(llm)

	out, err := a.Run(context.Background(), "say ping")
	require.NoError(t, err)
	assert.Equal(t, "pong received", out)

	msgs := a.Memory().All()
	require.Len(t, msgs, 5)
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Equal(t, msgs[1].ToolCalls[0].ID, msgs[2].ToolCallID)
	assert.Contains(t, msgs[2].Content, "ping")
	assert.Equal(t, 3, a.Result().Steps)
}

func TestAgent_TerminateFinishesAfterBatch(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("wrapping up",
		call("echo", `{"text":"one"}`),
		call("terminate", `{"status":"success"}`),
		call("echo", `{"text":"two"}`),
	))
	a := newTestAgent(llm)

	out, err := a.Run(context.Background(), "go")
	require.NoError(t, err)

	res := a.Result()
	assert.Equal(t, StateFinished, res.State)
	assert.Equal(t, FinishTerminated, res.FinishReason)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, 1, llm.Calls())
	assert.Equal(t, "two", out)

	tools := 0
	for _, m := range a.Memory().All() {
		if m.Role == core.RoleTool {
			tools++
		}
	}
	assert.Equal(t, 3, tools)
}

func TestAgent_TerminateFailure(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("", call("terminate", `{"status":"failure"}`)))
	a := newTestAgent(llm)

	out, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Contains(t, out, "failure")
	assert.True(t, a.Result().Failed)
}

func TestAgent_UnknownToolIsContained(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Reply("", call("does_not_exist", `{}`)),
		model.Reply("recovered"),
		model.Stop(),
	)
	a := newTestAgent(llm)

	out, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "recovered", out)

	msgs := a.Memory().All()
	assert.Equal(t, core.RoleTool, msgs[2].Role)
	assert.Contains(t, msgs[2].Content, "not found")
	assert.False(t, a.Result().Failed)
}

func TestAgent_EndingOnToolErrorMarksFailed(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("", call("does_not_exist", `{}`)))
	a := newTestAgent(llm, func(o *Options) {
		o.MaxSteps = 1
	})

	_, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	res := a.Result()
	assert.Equal(t, FinishMaxSteps, res.FinishReason)
	assert.True(t, res.Failed)
}

func TestAgent_RunRequiresIdleAndResetRestores(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("done"), model.Stop(), model.Reply("done"), model.Stop())
	a := newTestAgent(llm)

	_, err := a.Run(context.Background(), "first")
	require.NoError(t, err)
	require.Equal(t, StateFinished, a.State())

	_, err = a.Run(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidState))
	var stateErr *core.InvalidStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, "FINISHED", stateErr.State)

	require.NoError(t, a.Reset())
	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, 0, a.Memory().Len())

	out, err := a.Run(context.Background(), "third")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestAgent_StepRequiresRunning(t *testing.T) {
	a := newTestAgent(model.NewScriptedModel(model.Reply("x")))
	_, err := a.Step(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidState)
}

func TestAgent_StepEnforcesMaxSteps(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("", call("echo", `{"text":"tick"}`)))
	a := newTestAgent(llm, func(o *Options) {
		o.MaxSteps = 2
		o.DuplicateThreshold = 0
	})
	a.mu.Lock()
	a.state = StateRunning
	a.mu.Unlock()

	for i := 0; i < 2; i++ {
		_, err := a.Step(context.Background())
		require.NoError(t, err)
	}
	out, err := a.Step(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "max steps (2)")
	assert.Equal(t, FinishMaxSteps, a.Result().FinishReason)
	assert.Equal(t, 2, llm.Calls())

	_, err = a.Step(context.Background())
	assert.ErrorIs(t, err, core.ErrInvalidState)
	assert.Equal(t, 2, a.Result().Steps)
}

func TestAgent_StuckDetectionNudgesOnceThenFinishes(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("let me check again", call("echo", `{"text":"same"}`)))
	a := newTestAgent(llm, func(o *Options) {
		o.MaxSteps = 10
		o.DuplicateThreshold = 2
		o.MaxNudges = 1
	})

	out, err := a.Run(context.Background(), "loop forever")
	require.NoError(t, err)

	res := a.Result()
	assert.Equal(t, StateFinished, res.State)
	assert.Equal(t, FinishStuck, res.FinishReason)
	assert.Equal(t, 1, res.Nudges)
	assert.LessOrEqual(t, res.Steps, 10+1)
	assert.Equal(t, 3, res.Steps)
	assert.Contains(t, out, "stuck")
	assert.Equal(t, 1, countSystem(a.Memory().All(), DefaultStuckPrompt))
}

func TestAgent_StuckDetectionOnRepeatedText(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("I will keep thinking"))
	a := newTestAgent(llm, func(o *Options) {
		o.MaxSteps = 10
		o.DuplicateThreshold = 2
		o.MaxNudges = 1
	})

	out, err := a.Run(context.Background(), "think")
	require.NoError(t, err)

	res := a.Result()
	assert.Equal(t, FinishStuck, res.FinishReason)
	assert.Equal(t, 1, res.Nudges)
	assert.Equal(t, 3, res.Steps)
	assert.Contains(t, out, "I will keep thinking")
	assert.Contains(t, out, "stuck")
	assert.Equal(t, 1, countSystem(a.Memory().All(), DefaultStuckPrompt))
}

func TestAgent_StuckDetectionOnRepeatedToolCalls(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("", call("echo", `{"text":"same"}`)))
	a := newTestAgent(llm, func(o *Options) {
		o.MaxNudges = 2
	})

	_, err := a.Run(context.Background(), "loop")
	require.NoError(t, err)

	res := a.Result()
	assert.Equal(t, FinishStuck, res.FinishReason)
	assert.Equal(t, 2, res.Nudges)
	assert.Equal(t, 2, countSystem(a.Memory().All(), DefaultStuckPrompt))
}

func TestAgent_MaxSteps(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("", call("echo", `{"text":"tick"}`)))
	a := newTestAgent(llm, func(o *Options) {
		o.MaxSteps = 3
		o.DuplicateThreshold = 0
	})

	out, err := a.Run(context.Background(), "count")
	require.NoError(t, err)
	assert.Contains(t, out, "max steps (3)")

	res := a.Result()
	assert.Equal(t, FinishMaxSteps, res.FinishReason)
	assert.Equal(t, 3, res.Steps)

	last, ok := a.Memory().Last()
	require.True(t, ok)
	assert.Equal(t, core.RoleSystem, last.Role)
	assert.Equal(t, res.Notice, last.Content)
}

func TestAgent_ModelBoundaryExhaustion(t *testing.T) {
	llm := model.NewScriptedModel(model.Fail(errors.New("service unavailable")))
	a := newTestAgent(llm)

	_, err := a.Run(context.Background(), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrModelBoundary)

	var boundary *core.ModelBoundaryError
	require.ErrorAs(t, err, &boundary)
	assert.Equal(t, 3, boundary.Attempts)
	assert.Equal(t, 3, llm.Calls())
	assert.Equal(t, StateError, a.State())

	require.NoError(t, a.Reset())
	assert.Equal(t, StateIdle, a.State())
}

func TestAgent_RetryRecovers(t *testing.T) {
	llm := model.NewScriptedModel(model.Fail(errors.New("flaky")), model.Reply("ok"), model.Stop())
	a := newTestAgent(llm)

	out, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, llm.Calls())
}

func TestAgent_CancelledBeforeStart(t *testing.T) {
	a := newTestAgent(model.NewScriptedModel(model.Reply("never")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := a.Run(ctx, "go")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled")

	res := a.Result()
	assert.Equal(t, StateFinished, res.State)
	assert.Equal(t, FinishCancelled, res.FinishReason)
	assert.Equal(t, 0, res.Steps)
}

func TestAgent_CancelDuringThinkFinishes(t *testing.T) {
	blocking := ThinkFunc(func(ctx context.Context, _ ThinkInput) (core.Message, error) {
		<-ctx.Done()
		return core.Message{}, ctx.Err()
	})
	a := New("blocked", blocking, func(o *Options) { o.Retry = fastRetry })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := a.Run(ctx, "go")
	require.NoError(t, err)
	assert.Equal(t, StateFinished, a.State())
	assert.Equal(t, FinishCancelled, a.Result().FinishReason)
}

func TestAgent_ThinkTimeoutIsRetried(t *testing.T) {
	var attempts int32
	strategy := ThinkFunc(func(ctx context.Context, _ ThinkInput) (core.Message, error) {
		switch atomic.AddInt32(&attempts, 1) {
		case 1:
			<-ctx.Done()
			return core.Message{}, ctx.Err()
		case 2:
			return core.AssistantMessage("made it"), nil
		default:
			return core.AssistantMessage(""), nil
		}
	})
	a := New("slow", strategy, func(o *Options) {
		o.ThinkTimeout = 20 * time.Millisecond
		o.Retry = fastRetry
	})

	out, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "made it", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestAgent_ToolTimeoutIsContained(t *testing.T) {
	llm := model.NewScriptedModel(
		model.Reply("", call("sleep", `{}`)),
		model.Reply("moved on"),
		model.Stop(),
	)
	a := New("tester", NewToolCallStrategy(llm), func(o *Options) {
		o.Tools = tool.MustRegistry(sleepTool(time.Second))
		o.ToolTimeout = 20 * time.Millisecond
		o.Retry = fastRetry
	})

	out, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "moved on", out)
	assert.Contains(t, a.Memory().All()[2].Content, "timed out")
}

// assertToolReplies checks that every tool message answers a call issued by
// an earlier assistant message in msgs.
func assertToolReplies(t *testing.T, msgs []core.Message) {
	t.Helper()
	issued := map[string]bool{}
	for i, m := range msgs {
		switch m.Role {
		case core.RoleAssistant:
			for _, c := range m.ToolCalls {
				issued[c.ID] = true
			}
		case core.RoleTool:
			assert.True(t, issued[m.ToolCallID], "message %d answers unknown call %q", i, m.ToolCallID)
		}
	}
}

func TestAgent_MemoryCapacityBoundsHistory(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("", call("echo", `{"text":"x"}`)))
	a := newTestAgent(llm, func(o *Options) {
		o.MemoryCapacity = 5
		o.MaxSteps = 6
		o.DuplicateThreshold = 0
	})

	_, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.LessOrEqual(t, a.Memory().Len(), 5)
	assertToolReplies(t, a.Memory().All())
}

func TestAgent_EvictionKeepsToolRepliesWithTheirCall(t *testing.T) {
	batch := func() model.Turn {
		return model.Reply("",
			call("echo", `{"text":"a"}`),
			call("echo", `{"text":"b"}`),
			call("echo", `{"text":"c"}`),
		)
	}
	llm := model.NewScriptedModel(batch(), batch(), batch())
	a := newTestAgent(llm, func(o *Options) {
		o.MemoryCapacity = 5
		o.MaxSteps = 3
		o.DuplicateThreshold = 0
	})

	_, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	require.Equal(t, 3, llm.Calls())

	for i, req := range llm.Requests() {
		history := req.Messages
		for len(history) > 0 && history[0].Role == core.RoleSystem {
			history = history[1:]
		}
		require.NotEmpty(t, history, "request %d", i)
		assert.NotEqual(t, core.RoleTool, history[0].Role, "request %d", i)
		assertToolReplies(t, history)
	}
	msgs := a.Memory().All()
	require.NotEmpty(t, msgs)
	assert.NotEqual(t, core.RoleTool, msgs[0].Role)
	assertToolReplies(t, msgs)
}

func TestToolCallStrategy_ComposesRequest(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("answer"), model.Stop())
	strategy := NewToolCallStrategy(llm, func(o *ToolCallOptions) {
		o.SystemPrompt = NewInstructionFromText("You are {{.agent}}.")
		o.NextStepPrompt = NewInstructionFromText("What next?")
	})
	a := New("planner", strategy, func(o *Options) {
		o.Tools = tool.MustRegistry(echoTool())
	})

	_, err := a.Run(context.Background(), "task")
	require.NoError(t, err)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	msgs := reqs[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, core.SystemMessage("You are planner."), msgs[0])
	assert.Equal(t, "task", msgs[1].Content)
	assert.Equal(t, "What next?", msgs[2].Content)
	assert.Equal(t, model.ToolChoiceAuto, reqs[0].ToolChoice)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "echo", reqs[0].Tools[0].Function.Name)

	for _, m := range a.Memory().All() {
		assert.NotEqual(t, "What next?", m.Content)
	}
}

func TestToolCallStrategy_RequiredToolChoice(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("just text"))
	strategy := NewToolCallStrategy(llm, func(o *ToolCallOptions) {
		o.ToolChoice = model.ToolChoiceRequired
	})
	a := New("strict", strategy, func(o *Options) {
		o.Tools = tool.MustRegistry(echoTool())
		o.Retry = fastRetry
	})

	_, err := a.Run(context.Background(), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolCallRequired)
	assert.Equal(t, 3, llm.Calls())
}

func TestToolCallStrategy_NoneDropsToolCalls(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("text", call("echo", `{}`)), model.Stop())
	strategy := NewToolCallStrategy(llm, func(o *ToolCallOptions) {
		o.ToolChoice = model.ToolChoiceNone
	})
	a := New("mute", strategy, func(o *Options) { o.Tools = tool.MustRegistry(echoTool()) })

	out, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "text", out)
	assert.Empty(t, llm.Requests()[0].Tools)
}

func TestToolCallStrategy_BudgetIsNotRetried(t *testing.T) {
	llm := model.NewScriptedModel(model.Reply("", call("echo", `{"text":"a"}`)))
	a := newTestAgent(llm, func(o *Options) { o.DuplicateThreshold = 0 })

	ctx := core.WithCallBudget(context.Background(), core.NewCallBudget(1))
	_, err := a.Run(ctx, "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrBudgetExhausted)
	assert.ErrorIs(t, err, core.ErrModelBoundary)
	assert.Equal(t, 1, llm.Calls())
}

func TestHistoryProcessor_DropsOrphanedToolMessages(t *testing.T) {
	in := ThinkInput{Messages: []core.Message{
		core.UserMessage("q"),
		core.AssistantMessage("", core.ToolCall{ID: "1", Name: "echo"}),
		core.ToolMessage("a", "1", "echo"),
		core.ToolMessage("b", "2", "echo"),
		core.AssistantMessage("done"),
	}}

	var req model.Request
	require.NoError(t, NewHistoryProcessor(3).ProcessRequest(context.Background(), in, &req))
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "done", req.Messages[0].Content)

	in.Messages = in.Messages[2:]
	req = model.Request{}
	require.NoError(t, NewHistoryProcessor(0).ProcessRequest(context.Background(), in, &req))
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "done", req.Messages[0].Content)
}

func TestFingerprint(t *testing.T) {
	a := core.AssistantMessage("", core.ToolCall{ID: "1", Name: "echo", Arguments: `{"x":1}`})
	b := core.AssistantMessage("", core.ToolCall{ID: "2", Name: "echo", Arguments: `{"x":1}`})
	c := core.AssistantMessage("", core.ToolCall{ID: "3", Name: "echo", Arguments: `{"x":2}`})

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
	assert.Equal(t, "hello", Fingerprint(core.AssistantMessage("  hello ")))
	assert.Empty(t, Fingerprint(core.AssistantMessage("")))
}
