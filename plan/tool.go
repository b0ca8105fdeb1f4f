package plan

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
	"github.com/hupe1980/agentflow/tool"
)

// ToolName is the name of the planning tool.
const ToolName = "planning"

// Tool lets a model create and manage plans in a Store.
type Tool struct {
	store *Store
}

var _ tool.Tool = (*Tool)(nil)

// NewTool creates a planning tool backed by store. A nil store gets a fresh one.
func NewTool(store *Store) *Tool {
	if store == nil {
		store = NewStore()
	}
	return &Tool{store: store}
}

// Store returns the backing store.
func (t *Tool) Store() *Store { return t.store }

// Name returns the tool identifier.
func (t *Tool) Name() string { return ToolName }

// Description returns the tool description.
func (t *Tool) Description() string {
	return "A planning tool that allows the agent to create and manage plans for solving complex tasks. " +
		"Supports commands: create, update, list, get, set_active, mark_step, delete."
}

// Parameters returns the JSON schema for tool parameters.
func (t *Tool) Parameters() map[string]any {
	statuses := make([]string, 0, len(Statuses()))
	for _, s := range Statuses() {
		statuses = append(statuses, string(s))
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"create", "update", "list", "get", "set_active", "mark_step", "delete"},
				"description": "The command to execute.",
			},
			"plan_id": map[string]any{
				"type":        "string",
				"description": "Plan identifier. Required for create, update, set_active and delete.",
			},
			"title": map[string]any{
				"type":        "string",
				"description": "Plan title. Required for create, optional for update.",
			},
			"steps": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Step descriptions. Required for create, optional for update. Prefix a step with [tag] to route it to a specialised executor.",
			},
			"step_index": map[string]any{
				"type":        "integer",
				"description": "Zero based step index for mark_step.",
			},
			"step_status": map[string]any{
				"type":        "string",
				"enum":        statuses,
				"description": "New status for mark_step.",
			},
			"step_notes": map[string]any{
				"type":        "string",
				"description": "Notes for mark_step.",
			},
		},
		"required": []string{"command"},
	}
}

// Call implements the Tool interface with structured arguments.
func (t *Tool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return nil, tool.NewToolError(ToolName, err.Error(), tool.CodeValidation)
	}
	command, _ := args["command"].(string)

	planID, _ := args["plan_id"].(string)

	switch command {
	case "create":
		return t.handleCreate(toolCtx, planID, args)
	case "update":
		return t.handleUpdate(planID, args)
	case "list":
		return t.handleList(), nil
	case "get":
		return t.handleGet(planID)
	case "set_active":
		return t.handleSetActive(planID)
	case "mark_step":
		return t.handleMarkStep(planID, args)
	case "delete":
		return t.handleDelete(planID)
	default:
		return nil, t.invalid(fmt.Sprintf("unknown command: %s", command))
	}
}

func (t *Tool) handleCreate(toolCtx *core.ToolContext, planID string, args map[string]any) (any, error) {
	if planID == "" {
		planID = "plan_" + core.NewID()[:8]
	}
	title, _ := args["title"].(string)
	if title == "" {
		return nil, t.invalid("title is required for create")
	}
	steps, err := stringSlice(args["steps"])
	if err != nil || len(steps) == 0 {
		return nil, t.invalid("steps must be a non-empty list of strings")
	}

	p, err := t.store.Create(planID, title, steps)
	if err != nil {
		return nil, err
	}

	if toolCtx != nil {
		toolCtx.Logger().Debug("plan.created", "plan_id", p.ID(), "steps", p.Len())
	}

	return fmt.Sprintf("Plan created successfully with ID: %s\n\n%s", p.ID(), p.Format()), nil
}

func (t *Tool) handleUpdate(planID string, args map[string]any) (any, error) {
	if planID == "" {
		return nil, t.invalid("plan_id is required for update")
	}
	p, err := t.store.Get(planID)
	if err != nil {
		return nil, err
	}
	title, _ := args["title"].(string)
	var steps []string
	if raw, ok := args["steps"]; ok && raw != nil {
		if steps, err = stringSlice(raw); err != nil {
			return nil, t.invalid(err.Error())
		}
	}
	if err := p.Update(title, steps); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Plan updated successfully: %s\n\n%s", p.ID(), p.Format()), nil
}

func (t *Tool) handleList() string {
	plans := t.store.List()
	if len(plans) == 0 {
		return "No plans available. Create a plan with the 'create' command."
	}
	active := t.store.Active()
	var b strings.Builder
	b.WriteString("Available plans:\n")
	for _, p := range plans {
		marker := ""
		if p.ID() == active {
			marker = " (active)"
		}
		completed, total := p.Progress()
		fmt.Fprintf(&b, "• %s%s: %s - %d/%d steps completed\n", p.ID(), marker, p.Title(), completed, total)
	}
	return b.String()
}

func (t *Tool) handleGet(planID string) (any, error) {
	p, err := t.store.Get(planID)
	if err != nil {
		return nil, err
	}
	return p.Format(), nil
}

func (t *Tool) handleSetActive(planID string) (any, error) {
	if planID == "" {
		return nil, t.invalid("plan_id is required for set_active")
	}
	if err := t.store.SetActive(planID); err != nil {
		return nil, err
	}
	p, err := t.store.Get(planID)
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Plan '%s' is now the active plan.\n\n%s", planID, p.Format()), nil
}

func (t *Tool) handleMarkStep(planID string, args map[string]any) (any, error) {
	p, err := t.store.Get(planID)
	if err != nil {
		return nil, err
	}
	index, ok := intArg(args["step_index"])
	if !ok {
		return nil, t.invalid("step_index is required for mark_step")
	}

	status, err := p.Step(index)
	if err != nil {
		return nil, t.invalid(err.Error())
	}
	next := status.Status
	if raw, _ := args["step_status"].(string); raw != "" {
		if next, err = ParseStatus(raw); err != nil {
			return nil, t.invalid(err.Error())
		}
	}
	notes, _ := args["step_notes"].(string)

	if err := p.Advance(index, next, notes); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Step %d updated in plan '%s'.\n\n%s", index, p.ID(), p.Format()), nil
}

func (t *Tool) handleDelete(planID string) (any, error) {
	if planID == "" {
		return nil, t.invalid("plan_id is required for delete")
	}
	if err := t.store.Delete(planID); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Plan '%s' has been deleted.", planID), nil
}

func (t *Tool) invalid(msg string) error {
	return tool.NewToolError(ToolName, msg, tool.CodeInvalidArguments)
}

func stringSlice(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("steps must be a list of strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("steps must be a list of strings")
	}
}

func intArg(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}
