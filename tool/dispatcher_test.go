package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
)

type mockTool struct {
	name     string
	delay    time.Duration
	result   any
	err      error
	panicMsg any
	onCall   func(args map[string]any)
}

func (mt *mockTool) Name() string               { return mt.name }
func (mt *mockTool) Description() string        { return "mock tool" }
func (mt *mockTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (mt *mockTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	if mt.onCall != nil {
		mt.onCall(args)
	}
	return mt.result, mt.err
}

func calls(names ...string) []core.ToolCall {
	out := make([]core.ToolCall, len(names))
	for i, n := range names {
		out[i] = core.ToolCall{ID: n + "-id", Name: n, Arguments: "{}"}
	}
	return out
}

func TestDispatcher_PreservesOrderAndCount(t *testing.T) {
	d := NewDispatcher(MustRegistry(
		&mockTool{name: "slow", delay: 30 * time.Millisecond, result: "s"},
		&mockTool{name: "fast", result: "f"},
	))

	var emitted []core.Message
	results := d.Dispatch(context.Background(), calls("slow", "fast", "slow"), func(m core.Message) {
		emitted = append(emitted, m)
	})

	require.Len(t, results, 3)
	require.Len(t, emitted, 3)
	for i, want := range []string{"slow", "fast", "slow"} {
		assert.Equal(t, want, results[i].Tool)
		assert.Equal(t, want+"-id", emitted[i].ToolCallID)
		assert.Equal(t, core.RoleTool, emitted[i].Role)
		assert.False(t, results[i].IsError)
	}
}

func TestDispatcher_SequentialSideEffects(t *testing.T) {
	var (
		mu    sync.Mutex
		trace []string
	)
	record := func(name string) func(map[string]any) {
		return func(map[string]any) {
			mu.Lock()
			defer mu.Unlock()
			trace = append(trace, name)
		}
	}
	d := NewDispatcher(MustRegistry(
		&mockTool{name: "first", delay: 20 * time.Millisecond, onCall: record("first")},
		&mockTool{name: "second", onCall: record("second")},
	))

	d.Dispatch(context.Background(), calls("first", "second"), nil)
	assert.Equal(t, []string{"first", "second"}, trace)
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher(MustRegistry(&mockTool{name: "known", result: "ok"}))

	results := d.Dispatch(context.Background(), calls("unknown", "known"), nil)
	require.Len(t, results, 2)
	assert.True(t, results[0].IsError)
	assert.Equal(t, CodeNotFound, results[0].Err.Code)
	assert.Equal(t, core.FaultDispatch, results[0].Err.Kind())
	assert.Contains(t, results[0].Message().Content, "not found")
	assert.False(t, results[1].IsError)
}

func TestDispatcher_MalformedArguments(t *testing.T) {
	d := NewDispatcher(MustRegistry(&mockTool{name: "t"}))

	res := d.Execute(context.Background(), core.ToolCall{ID: "1", Name: "t", Arguments: "{not json"})
	assert.True(t, res.IsError)
	assert.Equal(t, CodeInvalidArguments, res.Err.Code)

	res = d.Execute(context.Background(), core.ToolCall{ID: "2", Name: "t", Arguments: "null"})
	assert.False(t, res.IsError)
}

func TestDispatcher_ErrorIsolation(t *testing.T) {
	d := NewDispatcher(MustRegistry(
		&mockTool{name: "ok", result: "fine"},
		&mockTool{name: "bad", err: errors.New("boom")},
	))

	results := d.Dispatch(context.Background(), calls("bad", "ok"), nil)
	assert.True(t, results[0].IsError)
	assert.Equal(t, CodeExecution, results[0].Err.Code)
	assert.Equal(t, "boom", results[0].Output)
	assert.False(t, results[1].IsError)
}

func TestDispatcher_PanicRecovery(t *testing.T) {
	d := NewDispatcher(MustRegistry(&mockTool{name: "panic", panicMsg: "kaboom"}))

	res := d.Execute(context.Background(), calls("panic")[0])
	assert.True(t, res.IsError)
	assert.Equal(t, CodePanic, res.Err.Code)
	assert.Contains(t, res.Output, "kaboom")
}

func TestDispatcher_Timeout(t *testing.T) {
	d := NewDispatcher(MustRegistry(&mockTool{name: "hang", delay: time.Second}), func(o *DispatcherOptions) {
		o.Timeout = 20 * time.Millisecond
	})

	start := time.Now()
	res := d.Execute(context.Background(), calls("hang")[0])
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, res.IsError)
	assert.Equal(t, CodeTimeout, res.Err.Code)
}

func TestDispatcher_Terminal(t *testing.T) {
	d := NewDispatcher(MustRegistry(
		&mockTool{name: "terminate", result: "done"},
		&mockTool{name: "self_terminating", result: Terminate("bye")},
		&mockTool{name: "other", result: "x"},
	), func(o *DispatcherOptions) {
		o.TerminalTools = []string{"terminate"}
	})

	results := d.Dispatch(context.Background(), calls("other", "terminate", "self_terminating"), nil)
	assert.False(t, results[0].Terminal)
	assert.True(t, results[1].Terminal)
	assert.True(t, results[2].Terminal)
	assert.Equal(t, "bye", results[2].Output)
}

func TestDispatcher_FailedTerminalIsNotTerminal(t *testing.T) {
	d := NewDispatcher(MustRegistry(&mockTool{name: "terminate", err: errors.New("nope")}), func(o *DispatcherOptions) {
		o.TerminalTools = []string{"terminate"}
	})

	res := d.Execute(context.Background(), calls("terminate")[0])
	assert.True(t, res.IsError)
	assert.False(t, res.Terminal)
}

func TestDispatcher_CancelledContextSkipsRemaining(t *testing.T) {
	var ran bool
	d := NewDispatcher(MustRegistry(&mockTool{name: "t", onCall: func(map[string]any) { ran = true }}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := d.Dispatch(ctx, calls("t", "t"), nil)
	require.Len(t, results, 2)
	assert.False(t, ran)
	for _, r := range results {
		assert.True(t, r.IsError)
		assert.Equal(t, CodeCancelled, r.Err.Code)
	}
}

func TestDispatcher_MaxObserve(t *testing.T) {
	d := NewDispatcher(MustRegistry(&mockTool{name: "long", result: "abcdefghij"}), func(o *DispatcherOptions) {
		o.MaxObserve = 4
	})

	res := d.Execute(context.Background(), calls("long")[0])
	assert.Equal(t, "abcd... (truncated)", res.Output)
}

func TestDispatcher_LogsEachCall(t *testing.T) {
	zc, logs := observer.New(zapcore.DebugLevel)
	d := NewDispatcher(MustRegistry(
		&mockTool{name: "ok", result: "fine"},
		&mockTool{name: "bad", err: errors.New("boom")},
	), func(o *DispatcherOptions) {
		o.AgentName = "tester"
		o.Logger = logging.NewZapAdapter(zap.New(zc))
	})

	d.Dispatch(context.Background(), calls("ok", "bad"), nil)

	completed := logs.FilterMessage("tool.call.completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, "ok", completed[0].ContextMap()["tool"])
	assert.Equal(t, "tester", completed[0].ContextMap()["agent"])

	failed := logs.FilterMessage("tool.call.failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.WarnLevel, failed[0].Level)
	assert.Equal(t, "bad-id", failed[0].ContextMap()["call_id"])
	assert.Contains(t, failed[0].ContextMap()["error"], "boom")
}
