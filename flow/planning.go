package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/plan"
)

// PlanningFlow drafts a plan for the input and executes it step by step,
// delegating each step to a fresh agent chosen by the Selector. After every
// step has resolved the plan is verified; an inconsistent plan is revised
// and re-executed up to MaxReplans times.
type PlanningFlow struct {
	agents   map[string]agent.Factory
	selector *Selector
	opts     Options
}

var _ Runner = (*PlanningFlow)(nil)

// Execute implements Flow.
func (f *PlanningFlow) Execute(ctx context.Context, input string) (string, error) {
	r, err := f.Run(ctx, input)
	if err != nil {
		return "", err
	}
	return r.Text(), nil
}

// Run executes the planning loop. A run always ends FINISHED: blocked steps
// that survive re-planning yield a partial success notice and cancellation
// yields a cancellation notice. Only a failure to draft the initial plan or
// an illegal plan transition is returned as an error.
func (f *PlanningFlow) Run(ctx context.Context, input string) (*Report, error) {
	report := newReport(TypePlanning, input)
	budget := core.NewCallBudget(f.opts.MaxModelCalls)
	ctx = core.WithCallBudget(ctx, budget)
	defer finishReport(ctx, f.opts, report, budget)

	f.opts.Logger.Info("flow.run.start", "run_id", report.RunID, "flow", TypePlanning, "max_replans", f.opts.MaxReplans)

	pl, err := f.opts.Planner.Draft(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			f.cancelled(report, nil, ctx.Err())
			return report, nil
		}
		err = fmt.Errorf("draft plan: %w", err)
		report.Err = err.Error()
		return report, err
	}
	f.opts.Logger.Info("flow.plan.drafted", "run_id", report.RunID, "plan_id", pl.ID(), "steps", pl.Len())

	for {
		if err := f.executeSteps(ctx, report, input, pl); err != nil {
			if ctx.Err() == nil {
				report.Err = err.Error()
				return report, err
			}
			f.cancelled(report, pl, err)
			return report, nil
		}

		verr := f.opts.Planner.Verify(ctx, input, pl)
		if verr == nil {
			break
		}
		f.opts.Logger.Warn("flow.plan.verify.failed", "run_id", report.RunID, "plan_id", pl.ID(), "error", verr.Error())

		if report.Replans >= f.opts.MaxReplans {
			f.partial(report, pl)
			return report, nil
		}
		report.Replans++

		steps, rerr := f.opts.Planner.Revise(ctx, input, pl, verr)
		if rerr == nil {
			rerr = pl.Replan(steps)
		}
		if rerr != nil {
			if ctx.Err() != nil {
				f.cancelled(report, pl, ctx.Err())
				return report, nil
			}
			f.opts.Logger.Warn("flow.plan.replan.failed", "run_id", report.RunID, "attempt", report.Replans, "error", rerr.Error())
			continue
		}
		f.opts.Logger.Info("flow.plan.replan", "run_id", report.RunID, "attempt", report.Replans, "steps", len(steps))
	}

	snap := pl.Snapshot()
	report.Plan = &snap
	report.Output = f.finalOutput(ctx, input, pl, report)
	return report, nil
}

// executeSteps runs every actionable step. It returns the context error when
// the run is cancelled between or during steps, or a plan transition error.
func (f *PlanningFlow) executeSteps(ctx context.Context, report *Report, input string, pl *plan.Plan) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		i, step, ok := pl.Next()
		if !ok {
			return nil
		}
		if err := pl.Start(i); err != nil {
			return err
		}

		sr := f.executeStep(ctx, report.RunID, input, pl, i, step)
		if sr.FinishReason == agent.FinishCancelled && ctx.Err() != nil {
			report.Steps = append(report.Steps, sr)
			return ctx.Err()
		}

		var err error
		if sr.Status == plan.StatusBlocked {
			notes := sr.Err
			if notes == "" {
				notes = "step did not complete: " + string(sr.FinishReason)
			}
			err = pl.Block(i, notes)
			f.opts.Logger.Warn("flow.plan.step.blocked", "run_id", report.RunID, "step", i, "executor", sr.Executor, "reason", notes)
		} else {
			err = pl.Complete(i, shorten(sr.Output, 200))
			f.opts.Logger.Info("flow.plan.step.completed", "run_id", report.RunID, "step", i, "executor", sr.Executor, "agent_steps", sr.AgentSteps)
		}
		report.Steps = append(report.Steps, sr)
		if err != nil {
			return err
		}
	}
}

// executeStep runs one plan step on a fresh agent. The step is BLOCKED when
// the agent cannot be built, ends in ERROR, reports failure or gets stuck.
func (f *PlanningFlow) executeStep(ctx context.Context, runID, input string, pl *plan.Plan, i int, step plan.Step) (sr StepReport) {
	key := f.selector.Select(step)
	sr = StepReport{Index: i, Description: step.Description, Executor: key, Status: plan.StatusCompleted}
	start := time.Now()
	defer func() { sr.Duration = time.Since(start) }()

	f.opts.Logger.Info("flow.plan.step.start", "run_id", runID, "step", i, "executor", key, "tag", step.Tag)

	a, err := f.agents[key]()
	if err != nil {
		sr.Status = plan.StatusBlocked
		sr.Err = fmt.Sprintf("build agent %s: %v", key, err)
		return sr
	}

	_, runErr := a.Run(ctx, stepPrompt(input, pl, i, step))
	res := a.Result()

	sr.FinishReason = res.FinishReason
	sr.AgentSteps = res.Steps
	sr.Output = res.Output
	switch {
	case runErr != nil:
		sr.Status = plan.StatusBlocked
		sr.Err = runErr.Error()
	case res.Failed, res.FinishReason == agent.FinishStuck:
		sr.Status = plan.StatusBlocked
		sr.Err = res.Notice
	}
	return sr
}

func stepPrompt(input string, pl *plan.Plan, i int, step plan.Step) string {
	return fmt.Sprintf(
		"OVERALL TASK:\n%s\n\nCURRENT PLAN STATUS:\n%s\nYOUR CURRENT TASK:\nYou are now working on step %d: %q\n\n"+
			"Please execute this step using the appropriate tools. When you're done, provide a summary of what you accomplished.",
		input, pl.Format(), i, step.Description,
	)
}

// finalOutput asks a Summarizer planner for the final answer and falls back
// to the step outputs.
func (f *PlanningFlow) finalOutput(ctx context.Context, input string, pl *plan.Plan, report *Report) string {
	if s, ok := f.opts.Planner.(plan.Summarizer); ok {
		summary, err := s.Summarize(ctx, input, pl)
		if err == nil && summary != "" {
			return summary
		}
		if err != nil {
			f.opts.Logger.Warn("flow.plan.summarize.failed", "run_id", report.RunID, "error", err.Error())
		}
	}
	return stepOutputs(report)
}

func stepOutputs(report *Report) string {
	var b strings.Builder
	for _, s := range report.Steps {
		if s.Status != plan.StatusCompleted || s.Output == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Step %d (%s): %s", s.Index, s.Description, s.Output)
	}
	return b.String()
}

func (f *PlanningFlow) partial(report *Report, pl *plan.Plan) {
	snap := pl.Snapshot()
	report.Plan = &snap
	report.Partial = true
	report.Output = stepOutputs(report)

	completed, total := snap.Progress()
	var blocked []string
	for i, st := range snap.Steps {
		if st.Status != plan.StatusCompleted {
			blocked = append(blocked, fmt.Sprintf("%d (%s)", i, st.Description))
		}
	}
	report.Notice = fmt.Sprintf(
		"Partial success: %d/%d steps completed after %d re-plan(s); unresolved steps: %s",
		completed, total, report.Replans, strings.Join(blocked, ", "),
	)
	f.opts.Logger.Warn("flow.plan.partial", "run_id", report.RunID, "completed", completed, "total", total)
}

func (f *PlanningFlow) cancelled(report *Report, pl *plan.Plan, cause error) {
	if pl != nil {
		snap := pl.Snapshot()
		report.Plan = &snap
	}
	report.Cancelled = true
	report.Output = stepOutputs(report)
	report.Notice = fmt.Sprintf("Cancelled: %v", cause)
	f.opts.Logger.Warn("flow.run.cancelled", "run_id", report.RunID, "error", cause.Error())
}

func shorten(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
