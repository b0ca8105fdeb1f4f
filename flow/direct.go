package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/plan"
)

// DirectFlow runs the primary agent once and returns its result.
type DirectFlow struct {
	factory agent.Factory
	opts    Options
}

var _ Runner = (*DirectFlow)(nil)

// Execute implements Flow.
func (f *DirectFlow) Execute(ctx context.Context, input string) (string, error) {
	r, err := f.Run(ctx, input)
	if err != nil {
		return "", err
	}
	return r.Text(), nil
}

// Run builds a fresh primary agent and runs it on input.
func (f *DirectFlow) Run(ctx context.Context, input string) (*Report, error) {
	report := newReport(TypeDirect, input)
	budget := core.NewCallBudget(f.opts.MaxModelCalls)
	ctx = core.WithCallBudget(ctx, budget)
	defer finishReport(ctx, f.opts, report, budget)

	f.opts.Logger.Info("flow.run.start", "run_id", report.RunID, "flow", TypeDirect, "agent", f.opts.Primary)

	a, err := f.factory()
	if err != nil {
		err = fmt.Errorf("build agent %s: %w", f.opts.Primary, err)
		report.Err = err.Error()
		return report, err
	}

	start := time.Now()
	_, runErr := a.Run(ctx, input)
	res := a.Result()

	step := StepReport{
		Description:  input,
		Executor:     f.opts.Primary,
		Status:       plan.StatusCompleted,
		FinishReason: res.FinishReason,
		AgentSteps:   res.Steps,
		Output:       res.Output,
		Duration:     time.Since(start),
	}
	if runErr != nil || res.Failed {
		step.Status = plan.StatusBlocked
	}
	if runErr != nil {
		step.Err = runErr.Error()
	}
	report.Steps = append(report.Steps, step)
	report.Output = res.Output
	report.Notice = res.Notice
	report.Cancelled = res.FinishReason == agent.FinishCancelled

	if runErr != nil {
		report.Err = runErr.Error()
		return report, runErr
	}
	return report, nil
}
