package plan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/tool"
)

// Planner drafts, verifies and revises plans for a request.
type Planner interface {
	// Draft creates the initial plan.
	Draft(ctx context.Context, request string) (*Plan, error)
	// Verify examines a plan whose steps are all resolved. It returns a
	// *core.PlanInconsistencyError when the plan does not satisfy the request.
	Verify(ctx context.Context, request string, p *Plan) error
	// Revise returns the step descriptions replacing every non-completed step.
	Revise(ctx context.Context, request string, p *Plan, cause error) ([]string, error)
}

// Summarizer is optionally implemented by a Planner to produce the final
// answer of a plan run.
type Summarizer interface {
	Summarize(ctx context.Context, request string, p *Plan) (string, error)
}

// ErrNoRevision is returned when the model proposes no revised steps.
var ErrNoRevision = errors.New("planner returned no revised steps")

// DefaultSteps is the plan used when the model does not create one.
var DefaultSteps = []string{"Analyze request", "Execute task", "Verify results"}

// DefaultPlannerPrompt is the system prompt of the ModelPlanner.
const DefaultPlannerPrompt = "You are a planning assistant. Create a concise, actionable plan with clear steps. " +
	"Focus on key milestones rather than detailed sub-steps. " +
	"Optimize for clarity and efficiency."

// ModelPlannerOptions configure a ModelPlanner.
type ModelPlannerOptions struct {
	SystemPrompt string
	// Timeout bounds one model call. Zero disables the bound.
	Timeout time.Duration
	Retry   model.RetryPolicy
	Logger  logging.Logger
}

// ModelPlanner implements Planner and Summarizer against a model.Model,
// using the planning tool with a required tool choice.
type ModelPlanner struct {
	llm  model.Model
	opts ModelPlannerOptions
}

var (
	_ Planner    = (*ModelPlanner)(nil)
	_ Summarizer = (*ModelPlanner)(nil)
)

// NewModelPlanner creates a planner backed by llm.
func NewModelPlanner(llm model.Model, optFns ...func(o *ModelPlannerOptions)) *ModelPlanner {
	opts := ModelPlannerOptions{
		SystemPrompt: DefaultPlannerPrompt,
		Retry:        model.DefaultRetryPolicy(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &ModelPlanner{llm: llm, opts: opts}
}

// Draft asks the model to create a plan through the planning tool. When the
// model creates none, a plan with DefaultSteps is returned.
func (p *ModelPlanner) Draft(ctx context.Context, request string) (*Plan, error) {
	planningTool := NewTool(nil)

	resp, err := p.generate(ctx, "draft", model.Request{
		Messages: []core.Message{
			core.SystemMessage(p.opts.SystemPrompt),
			core.UserMessage("Create a reasonable plan with clear steps to accomplish the task: " + request),
		},
		Tools:      []model.ToolDefinition{tool.Definition(planningTool)},
		ToolChoice: model.ToolChoiceRequired,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := tool.NewDispatcher(tool.MustRegistry(planningTool), func(o *tool.DispatcherOptions) {
		o.AgentName = "planner"
		o.Logger = p.opts.Logger
	})
	for _, r := range dispatcher.Dispatch(ctx, planningCalls(resp.Message), nil) {
		if r.IsError {
			p.opts.Logger.Warn("plan.draft.tool_failed", "error", r.Output)
		}
	}

	if drafted, err := planningTool.Store().Get(""); err == nil {
		p.opts.Logger.Info("plan.draft.created", "plan_id", drafted.ID(), "steps", drafted.Len())
		return drafted, nil
	}

	p.opts.Logger.Warn("plan.draft.fallback", "reason", "model created no plan")
	return New("plan_"+core.NewID()[:8], "Plan for: "+shorten(request, 50), DefaultSteps)
}

// Verify reports blocked or unfinished steps as an inconsistency.
func (p *ModelPlanner) Verify(_ context.Context, _ string, pl *Plan) error {
	snap := pl.Snapshot()

	var blocked, open []string
	for i, st := range snap.Steps {
		switch st.Status {
		case StatusBlocked:
			blocked = append(blocked, fmt.Sprintf("%d (%s)", i, st.Description))
		case StatusNotStarted, StatusInProgress:
			open = append(open, fmt.Sprintf("%d (%s)", i, st.Description))
		}
	}

	switch {
	case len(blocked) > 0:
		return &core.PlanInconsistencyError{PlanID: snap.ID, Reason: "blocked steps " + strings.Join(blocked, ", ")}
	case len(open) > 0:
		return &core.PlanInconsistencyError{PlanID: snap.ID, Reason: "unfinished steps " + strings.Join(open, ", ")}
	default:
		return nil
	}
}

// Revise asks the model for a revised sequence of remaining steps. Steps
// matching an already completed step are dropped from the answer.
func (p *ModelPlanner) Revise(ctx context.Context, request string, pl *Plan, cause error) ([]string, error) {
	reason := "the plan could not be completed"
	if cause != nil {
		reason = cause.Error()
	}

	resp, err := p.generate(ctx, "revise", model.Request{
		Messages: []core.Message{
			core.SystemMessage(p.opts.SystemPrompt),
			core.UserMessage(fmt.Sprintf(
				"Task: %s\n\nCurrent plan:\n%s\nVerification failed: %s\n\n"+
					"Use the planning tool with the update command to replace the blocked and unfinished steps "+
					"with a revised sequence that works around the problem. Completed steps are kept as they are.",
				request, pl.Format(), reason,
			)),
		},
		Tools:      []model.ToolDefinition{tool.Definition(NewTool(nil))},
		ToolChoice: model.ToolChoiceRequired,
	})
	if err != nil {
		return nil, err
	}

	done := map[string]struct{}{}
	for _, st := range pl.Snapshot().Steps {
		if st.Status == StatusCompleted {
			done[st.Description] = struct{}{}
		}
	}

	var steps []string
	for _, call := range planningCalls(resp.Message) {
		var args struct {
			Steps []string `json:"steps"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			continue
		}
		for _, s := range args.Steps {
			s = strings.TrimSpace(s)
			if _, ok := done[s]; ok || s == "" {
				continue
			}
			steps = append(steps, s)
		}
	}
	if len(steps) == 0 {
		return nil, ErrNoRevision
	}
	return steps, nil
}

// Summarize asks the model for a final summary of the plan run.
func (p *ModelPlanner) Summarize(ctx context.Context, request string, pl *Plan) (string, error) {
	resp, err := p.generate(ctx, "summarize", model.Request{
		Messages: []core.Message{
			core.SystemMessage("You are a planning assistant. Your task is to summarize the completed plan."),
			core.UserMessage(fmt.Sprintf(
				"Task: %s\n\nThe plan has been completed. Here is the final plan status:\n\n%s\n"+
					"Please provide a summary of what was accomplished and any final thoughts.",
				request, pl.Format(),
			)),
		},
		ToolChoice: model.ToolChoiceNone,
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Text(), nil
}

// generate charges the call budget carried by ctx and calls the model with
// bounded retries.
func (p *ModelPlanner) generate(ctx context.Context, op string, req model.Request) (model.Response, error) {
	resp, attempts, err := model.Retry(ctx, p.opts.Retry, func(ctx context.Context) (model.Response, error) {
		if err := core.CallBudgetFrom(ctx).Charge(); err != nil {
			return model.Response{}, err
		}
		if p.opts.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
			defer cancel()
		}
		return model.Collect(ctx, p.llm, req)
	})
	if err != nil {
		p.opts.Logger.Error("plan.model.failed", "op", op, "attempts", attempts, "error", err.Error())
		return model.Response{}, &core.ModelBoundaryError{Agent: "planner", Attempts: attempts, Err: err}
	}
	return resp, nil
}

func planningCalls(msg core.Message) []core.ToolCall {
	var out []core.ToolCall
	for _, c := range msg.ToolCalls {
		if c.Name == ToolName {
			if c.ID == "" {
				c.ID = core.NewID()
			}
			out = append(out, c)
		}
	}
	return out
}

func shorten(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
