package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/core"
)

func TestCollect_ReturnsFinalResponse(t *testing.T) {
	m := NewScriptedModel(Reply("hello", core.ToolCall{ID: "1", Name: "terminate", Arguments: `{"status":"success"}`}))

	resp, err := Collect(context.Background(), m, Request{Stream: true, Messages: []core.Message{core.UserMessage("hi")}})
	require.NoError(t, err)
	assert.False(t, resp.Partial)
	assert.Equal(t, "hello", resp.Message.Content)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, 1, m.Calls())
}

func TestCollect_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	m := NewScriptedModel(Fail(boom))
	_, err := Collect(context.Background(), m, Request{})
	assert.ErrorIs(t, err, boom)
}

func TestCollect_NoFinalResponse(t *testing.T) {
	m := GenerateFunc(func(context.Context, Request) (Response, error) {
		return Response{Partial: true}, nil
	})
	_, err := Collect(context.Background(), m, Request{})
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestScriptedModel_RepeatsLastTurn(t *testing.T) {
	m := NewScriptedModel(Reply("a"), Reply("b"))
	var got []string
	for i := 0; i < 4; i++ {
		resp, err := Collect(context.Background(), m, Request{})
		require.NoError(t, err)
		got = append(got, resp.Message.Content)
	}
	assert.Equal(t, []string{"a", "b", "b", "b"}, got)
	assert.Len(t, m.Requests(), 4)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, BackoffMultiplier: 2, OnRetry: func(_ error, attempt int, _ time.Duration) {
		retried = append(retried, attempt)
	}}

	out, attempts, err := Retry(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetry_Exhausted(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	_, attempts, err := Retry(context.Background(), policy, func(context.Context) (int, error) {
		return 0, errors.New("down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	_, attempts, err := Retry(context.Background(), RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(errors.New("bad request"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.False(t, IsRetryable(core.ErrBudgetExhausted))
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, OnRetry: func(error, int, time.Duration) { cancel() }}
	_, _, err := Retry(ctx, policy, func(context.Context) (int, error) { return 0, errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicy_DelayCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 3 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 3*time.Second, p.Delay(5))
}
