package flow

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/plan"
)

// Report describes one flow execution.
type Report struct {
	RunID      string         `json:"run_id" yaml:"run_id"`
	Flow       Type           `json:"flow" yaml:"flow"`
	Input      string         `json:"input" yaml:"input"`
	Output     string         `json:"output" yaml:"output"`
	Notice     string         `json:"notice,omitempty" yaml:"notice,omitempty"`
	Plan       *plan.Snapshot `json:"plan,omitempty" yaml:"plan,omitempty"`
	Steps      []StepReport   `json:"steps,omitempty" yaml:"steps,omitempty"`
	Replans    int            `json:"replans,omitempty" yaml:"replans,omitempty"`
	Partial    bool           `json:"partial,omitempty" yaml:"partial,omitempty"`
	Cancelled  bool           `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	ModelCalls int            `json:"model_calls" yaml:"model_calls"`
	Err        string         `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time      `json:"finished_at" yaml:"finished_at"`
}

// StepReport describes the execution of one plan step, or the single run of
// a direct flow.
type StepReport struct {
	Index        int                `json:"index" yaml:"index"`
	Description  string             `json:"description" yaml:"description"`
	Executor     string             `json:"executor" yaml:"executor"`
	Status       plan.Status        `json:"status" yaml:"status"`
	FinishReason agent.FinishReason `json:"finish_reason,omitempty" yaml:"finish_reason,omitempty"`
	AgentSteps   int                `json:"agent_steps" yaml:"agent_steps"`
	Output       string             `json:"output,omitempty" yaml:"output,omitempty"`
	Err          string             `json:"error,omitempty" yaml:"error,omitempty"`
	Duration     time.Duration      `json:"duration" yaml:"duration"`
}

// Text renders the output followed by the notice, if any.
func (r *Report) Text() string {
	switch {
	case r.Notice == "":
		return r.Output
	case r.Output == "":
		return r.Notice
	default:
		return r.Output + "\n\n" + r.Notice
	}
}

// Duration returns how long the execution took.
func (r *Report) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

func newReport(t Type, input string) *Report {
	return &Report{RunID: core.NewID(), Flow: t, Input: input, StartedAt: time.Now()}
}

// Recorder persists execution reports.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

// RecorderFunc is a functional adapter for Recorder.
type RecorderFunc func(ctx context.Context, r *Report) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, r *Report) error { return f(ctx, r) }

// finishReport stamps r and hands it to the recorder. Recorder failures are
// logged and never fail the execution.
func finishReport(ctx context.Context, opts Options, r *Report, budget *core.CallBudget) {
	r.FinishedAt = time.Now()
	r.ModelCalls = budget.Used()

	var err error
	if r.Err != "" {
		err = errors.New(r.Err)
	}
	logging.LogFlowExecution(opts.Logger, string(r.Flow), len(r.Steps), r.Duration(), err,
		"run_id", r.RunID,
		"replans", r.Replans,
		"partial", r.Partial,
		"cancelled", r.Cancelled,
		"model_calls", r.ModelCalls,
	)

	if opts.Recorder == nil {
		return
	}
	if err := opts.Recorder.Record(context.WithoutCancel(ctx), r); err != nil {
		opts.Logger.Error("flow.record.failed", "run_id", r.RunID, "error", err.Error())
	}
}
