package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/flow"
	"github.com/hupe1980/agentflow/plan"
)

func openTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "agentflow.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func planningReport(t *testing.T, id string, started time.Time) *flow.Report {
	t.Helper()

	p, err := plan.New("plan_1", "Write a report", []string{"Collect data", "[coder] Write code"})
	require.NoError(t, err)
	require.NoError(t, p.Start(0))
	require.NoError(t, p.Complete(0, "done"))
	require.NoError(t, p.Start(1))
	require.NoError(t, p.Block(1, "bash failed"))
	snap := p.Snapshot()

	return &flow.Report{
		RunID:   id,
		Flow:    flow.TypePlanning,
		Input:   "write a report",
		Output:  "Step 0 (Collect data): done",
		Notice:  "Partial success",
		Plan:    &snap,
		Replans: 2,
		Partial: true,
		Steps: []flow.StepReport{
			{Index: 0, Description: "Collect data", Executor: "primary", Status: plan.StatusCompleted, FinishReason: agent.FinishCompleted, AgentSteps: 2, Output: "done", Duration: 1500 * time.Millisecond},
			{Index: 1, Description: "[coder] Write code", Executor: "coder", Status: plan.StatusBlocked, FinishReason: agent.FinishCompleted, AgentSteps: 1, Err: "bash failed"},
		},
		ModelCalls: 5,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
	}
}

func TestRecordAndGetRun(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute).UTC()

	require.NoError(t, s.Record(ctx, planningReport(t, "run-1", started)))

	rec, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "planning", rec.Flow)
	assert.Equal(t, "partial", rec.Status())
	assert.Equal(t, int64(3000), rec.DurationMS)
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, "coder", rec.Steps[1].Executor)
	assert.Equal(t, "blocked", rec.Steps[1].Status)

	rep, err := rec.Report()
	require.NoError(t, err)
	assert.Equal(t, "run-1", rep.RunID)
	assert.Equal(t, 5, rep.ModelCalls)
	assert.Equal(t, 2, rep.Replans)
	assert.True(t, rep.Partial)
	require.NotNil(t, rep.Plan)
	assert.Equal(t, "plan_1", rep.Plan.ID)
	require.Len(t, rep.Plan.Steps, 2)
	assert.Equal(t, plan.StatusBlocked, rep.Plan.Steps[1].Status)
	assert.Equal(t, "coder", rep.Plan.Steps[1].Tag)
	assert.Equal(t, 1500*time.Millisecond, rep.Steps[0].Duration)
	assert.Equal(t, agent.FinishCompleted, rep.Steps[0].FinishReason)
}

func TestRecordTwiceReplacesSteps(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	r := planningReport(t, "run-1", time.Now().UTC())
	require.NoError(t, s.Record(ctx, r))

	r.Steps = r.Steps[:1]
	r.Output = "updated"
	require.NoError(t, s.Record(ctx, r))

	rec, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "updated", rec.Output)
	assert.Len(t, rec.Steps, 1)

	runs, err := s.ListRuns(ctx, RunQuery{})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestListRuns(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	require.NoError(t, s.Record(ctx, planningReport(t, "run-a", base)))
	require.NoError(t, s.Record(ctx, &flow.Report{
		RunID:      "run-b",
		Flow:       flow.TypeDirect,
		Input:      "hello",
		Output:     "hi",
		StartedAt:  base.Add(time.Minute),
		FinishedAt: base.Add(2 * time.Minute),
	}))
	require.NoError(t, s.Record(ctx, &flow.Report{
		RunID:      "run-c",
		Flow:       flow.TypeDirect,
		Input:      "boom",
		Err:        "model boundary exhausted",
		StartedAt:  base.Add(2 * time.Minute),
		FinishedAt: base.Add(3 * time.Minute),
	}))

	runs, err := s.ListRuns(ctx, RunQuery{})
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"run-c", "run-b", "run-a"}, []string{runs[0].RunID, runs[1].RunID, runs[2].RunID})
	assert.Equal(t, "failed", runs[0].Status())
	assert.Empty(t, runs[0].Steps)

	runs, err = s.ListRuns(ctx, RunQuery{Flow: "DIRECT", Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-c", runs[0].RunID)

	since := base.Add(30 * time.Second)
	runs, err = s.ListRuns(ctx, RunQuery{Since: &since})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestGetRunByPrefix(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, planningReport(t, "abc123", time.Now().UTC())))
	require.NoError(t, s.Record(ctx, planningReport(t, "abd456", time.Now().UTC())))

	rec, err := s.GetRun(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", rec.RunID)

	_, err = s.GetRun(ctx, "ab")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = s.GetRun(ctx, "zzz")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestDeleteRun(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, planningReport(t, "run-1", time.Now().UTC())))
	require.NoError(t, s.DeleteRun(ctx, "run-1"))

	_, err := s.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.DeleteRun(ctx, "run-1"), ErrRunNotFound)
}

func TestRecorderThroughFlow(t *testing.T) {
	s := openTestStorage(t)
	ctx := context.Background()

	f, err := flow.New(flow.TypeDirect, map[string]agent.Factory{
		"primary": func() (*agent.Agent, error) {
			return agent.New("primary", agent.ThinkFunc(func(_ context.Context, in agent.ThinkInput) (core.Message, error) {
				if in.Messages[len(in.Messages)-1].Role == core.RoleAssistant {
					return core.AssistantMessage(""), nil
				}
				return core.AssistantMessage("all done"), nil
			})), nil
		},
	}, func(o *flow.Options) { o.Recorder = s })
	require.NoError(t, err)

	rep, err := f.Run(ctx, "say done")
	require.NoError(t, err)

	rec, err := s.GetRun(ctx, rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, "all done", rec.Output)
	assert.Equal(t, "completed", rec.Status())
	require.Len(t, rec.Steps, 1)
	assert.Equal(t, "primary", rec.Steps[0].Executor)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)

	s, err := Open(context.Background(), Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}
