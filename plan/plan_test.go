package plan

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNew_RequiresSteps(t *testing.T) {
	_, err := New("p", "empty", []string{" ", ""})
	require.Error(t, err)

	p, err := New("p", "title", []string{"A", "", "B"})
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestNewStep_ParsesTag(t *testing.T) {
	assert.Equal(t, "code", NewStep("[CODE] write the parser").Tag)
	assert.Equal(t, "data_analysis", NewStep("  [data_analysis] chart it").Tag)
	assert.Empty(t, NewStep("no tag [here]").Tag)
}

func TestPlan_Lifecycle(t *testing.T) {
	p, err := New("p1", "ABC", []string{"A", "B", "C"})
	require.NoError(t, err)

	for want := 0; want < 3; want++ {
		i, st, ok := p.Next()
		require.True(t, ok)
		assert.Equal(t, want, i)
		assert.Equal(t, StatusNotStarted, st.Status)
		require.NoError(t, p.Start(i))
		require.NoError(t, p.Complete(i, "done"))
	}

	_, _, ok := p.Next()
	assert.False(t, ok)
	assert.True(t, p.Completed())
	completed, total := p.Progress()
	assert.Equal(t, 3, completed)
	assert.Equal(t, 3, total)
}

func TestPlan_NextResumesInProgress(t *testing.T) {
	p, _ := New("p", "t", []string{"A", "B"})
	require.NoError(t, p.Start(0))
	require.NoError(t, p.Complete(0, ""))
	require.NoError(t, p.Start(1))

	i, st, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, StatusInProgress, st.Status)
}

func TestPlan_CompletedIsFinal(t *testing.T) {
	p, _ := New("p", "t", []string{"A"})
	require.NoError(t, p.Start(0))
	require.NoError(t, p.Complete(0, ""))

	err := p.Block(0, "nope")
	var te *TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StatusCompleted, te.From)
	assert.Equal(t, StatusBlocked, te.To)

	require.NoError(t, p.Complete(0, "notes only"))
	st, _ := p.Step(0)
	assert.Equal(t, "notes only", st.Notes)
}

func TestPlan_RejectsSkippedAndBackwardTransitions(t *testing.T) {
	p, _ := New("p", "t", []string{"A", "B", "C"})

	tests := []struct {
		name  string
		setup func()
		index int
		to    Status
	}{
		{name: "not started to completed", index: 0, to: StatusCompleted},
		{name: "not started to blocked", index: 0, to: StatusBlocked},
		{name: "in progress back to not started", setup: func() { require.NoError(t, p.Start(1)) }, index: 1, to: StatusNotStarted},
		{name: "blocked to in progress", setup: func() { require.NoError(t, p.Block(1, "failed")) }, index: 1, to: StatusInProgress},
		{name: "blocked to not started", index: 1, to: StatusNotStarted},
		{name: "blocked to completed", index: 1, to: StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			before, _ := p.Step(tt.index)

			err := p.Mark(tt.index, tt.to, "")
			var te *TransitionError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, before.Status, te.From)
			assert.Equal(t, tt.to, te.To)

			after, _ := p.Step(tt.index)
			assert.Equal(t, before.Status, after.Status)
		})
	}

	require.NoError(t, p.Replan([]string{"B again"}))
	i, st, ok := p.Next()
	require.True(t, ok)
	assert.Equal(t, "B again", st.Description)
	assert.NoError(t, p.Start(i))
}

func TestPlan_AdvanceStartsPendingStep(t *testing.T) {
	p, _ := New("p", "t", []string{"A", "B"})

	require.NoError(t, p.Advance(0, StatusCompleted, "done"))
	require.NoError(t, p.Advance(1, StatusBlocked, "stuck"))
	snap := p.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Steps[0].Status)
	assert.Equal(t, StatusBlocked, snap.Steps[1].Status)

	var te *TransitionError
	require.ErrorAs(t, p.Advance(1, StatusInProgress, ""), &te)
	assert.Equal(t, StatusBlocked, te.From)
}

func TestPlan_OutOfRange(t *testing.T) {
	p, _ := New("p", "t", []string{"A"})
	assert.True(t, errors.Is(p.Start(3), ErrStepOutOfRange))
	_, err := p.Step(-1)
	assert.ErrorIs(t, err, ErrStepOutOfRange)
}

func TestPlan_ReplanKeepsCompleted(t *testing.T) {
	p, _ := New("p", "t", []string{"A", "B", "C"})
	require.NoError(t, p.Advance(0, StatusCompleted, ""))
	require.NoError(t, p.Advance(1, StatusBlocked, "failed"))

	require.NoError(t, p.Replan([]string{"B2", "[code] C2"}))

	snap := p.Snapshot()
	require.Len(t, snap.Steps, 3)
	assert.Equal(t, "A", snap.Steps[0].Description)
	assert.Equal(t, StatusCompleted, snap.Steps[0].Status)
	assert.Equal(t, "B2", snap.Steps[1].Description)
	assert.Equal(t, StatusNotStarted, snap.Steps[1].Status)
	assert.Equal(t, "code", snap.Steps[2].Tag)
	assert.Empty(t, p.Blocked())

	assert.Error(t, p.Replan(nil))
}

func TestPlan_UpdatePreservesUnchangedSteps(t *testing.T) {
	p, _ := New("p", "t", []string{"A", "B"})
	require.NoError(t, p.Advance(0, StatusCompleted, "ok"))
	require.NoError(t, p.Start(1))

	require.NoError(t, p.Update("new title", []string{"A", "B", "C"}))
	snap := p.Snapshot()
	assert.Equal(t, "new title", snap.Title)
	assert.Equal(t, StatusCompleted, snap.Steps[0].Status)
	assert.Equal(t, StatusInProgress, snap.Steps[1].Status)
	assert.Equal(t, StatusNotStarted, snap.Steps[2].Status)

	var te *TransitionError
	assert.ErrorAs(t, p.Update("", []string{"X"}), &te)
}

func TestPlan_Format(t *testing.T) {
	p, _ := New("p1", "Demo", []string{"A", "B", "C"})
	require.NoError(t, p.Advance(0, StatusCompleted, "first"))
	require.NoError(t, p.Start(1))
	require.NoError(t, p.Advance(2, StatusBlocked, ""))

	out := p.Format()
	assert.Contains(t, out, "Plan: Demo (ID: p1)")
	assert.Contains(t, out, "Progress: 1/3 steps completed (33.3%)")
	assert.Contains(t, out, "Status: 1 completed, 1 in progress, 1 blocked, 0 not started")
	assert.Contains(t, out, "0. [✓] A\n   Notes: first")
	assert.Contains(t, out, "1. [→] B")
	assert.Contains(t, out, "2. [!] C")
}

func TestSnapshot_YAML(t *testing.T) {
	p, _ := New("p1", "Demo", []string{"[code] A"})
	data, err := p.Snapshot().YAML()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "tag: code"))

	var back Snapshot
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, p.Snapshot(), back)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" Completed ")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, st)

	_, err = ParseStatus("done")
	assert.Error(t, err)
}
