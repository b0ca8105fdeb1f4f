package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{"debug": LogLevelDebug, "": LogLevelInfo, "WARN": LogLevelWarn, "error": LogLevelError} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestStructuredLogger_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("agent").
		WithRun("run-1", "manus").
		With("flow", "direct")

	l.Info("agent.run.start", "max_steps", 5)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "agent.run.start", rec["msg"])
	assert.Equal(t, "agent", rec["component"])
	assert.Equal(t, "run-1", rec["run_id"])
	assert.Equal(t, "manus", rec["agent"])
	assert.Equal(t, "direct", rec["flow"])
	assert.EqualValues(t, 5, rec["max_steps"])
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})
	l.Info("hidden")
	l.Debug("hidden")
	assert.Empty(t, buf.String())
	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestStructuredLogger_WithDoesNotMutate(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelInfo, Output: &buf})
	_ = base.With("k", "v")
	base.Info("plain")
	assert.NotContains(t, buf.String(), `"k"`)
}

func TestDomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Output: &buf})
	LogToolCall(l, "bash", 10*time.Millisecond, errors.New("boom"), "call_id", "c1")
	assert.Contains(t, buf.String(), "tool.call.failed")
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), `"call_id":"c1"`)

	buf.Reset()
	LogLLMCall(l, "gpt", 100, time.Second, nil)
	assert.Contains(t, buf.String(), "llm.call.completed")
	assert.Contains(t, buf.String(), `"token_count":100`)

	buf.Reset()
	LogFlowExecution(l, "planning", 3, time.Second, nil)
	assert.Contains(t, buf.String(), "flow.execution.completed")
	assert.Contains(t, buf.String(), `"step_count":3`)
}

func TestForRun(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		var buf bytes.Buffer
		l := ForRun(NewLogger(&LoggerConfig{Level: LogLevelInfo, Output: &buf}), "run-1", "manus")
		l.Info("agent.run.start", "max_steps", 5)

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "run-1", rec["run_id"])
		assert.Equal(t, "manus", rec["agent"])
		assert.EqualValues(t, 5, rec["max_steps"])
	})

	t.Run("any logger", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := ForRun(NewZapAdapter(zap.New(core)), "run-2", "coder")
		l.Warn("agent.stuck.nudge", "nudge", 1)
		l.Warn("agent.stuck.nudge", "nudge", 2)

		entries := logs.All()
		require.Len(t, entries, 2)
		for i, e := range entries {
			fields := e.ContextMap()
			assert.Equal(t, "run-2", fields["run_id"])
			assert.Equal(t, "coder", fields["agent"])
			assert.EqualValues(t, i+1, fields["nudge"])
		}
	})

	assert.IsType(t, &prefixLogger{}, ForRun(nil, "r", "a"))
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	z := NewZapAdapter(zap.New(core))

	z.Info("tool.call.completed", "tool", "bash", "duration_ms", 3)
	z.Warn("odd", "dangling")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "tool.call.completed", entries[0].Message)
	assert.Equal(t, "bash", entries[0].ContextMap()["tool"])
	assert.Contains(t, entries[1].ContextMap(), "!BADKEY")
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))
	l := NewDefaultSlogLogger()
	assert.Same(t, l, OrNoOp(l))
}
