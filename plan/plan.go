// Package plan implements the step plan driven by the planning flow: an
// ordered list of steps with a small status state machine, an in-memory
// store, the "planning" tool that lets a model manage plans, and the
// model-backed Planner that drafts, verifies and revises them.
package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Status is the lifecycle status of a plan step.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Statuses lists all valid statuses.
func Statuses() []Status {
	return []Status{StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked}
}

// ParseStatus converts s into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Statuses() {
		if st == v {
			return st, nil
		}
	}
	return "", fmt.Errorf("invalid step status %q", s)
}

// Mark returns the checkbox used when rendering the status.
func (s Status) Mark() string {
	switch s {
	case StatusInProgress:
		return "[→]"
	case StatusCompleted:
		return "[✓]"
	case StatusBlocked:
		return "[!]"
	default:
		return "[ ]"
	}
}

// Actionable reports whether a step with this status still needs work.
func (s Status) Actionable() bool { return s == StatusNotStarted || s == StatusInProgress }

// transitions holds the allowed status changes. Completed and blocked steps
// are final; only Replan and Update put new work in place of a blocked step.
var transitions = map[Status][]Status{
	StatusNotStarted: {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusBlocked},
	StatusBlocked:    nil,
	StatusCompleted:  nil,
}

func canTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ErrStepOutOfRange is returned for a step index outside the plan.
var ErrStepOutOfRange = errors.New("step index out of range")

// TransitionError reports an illegal status change.
type TransitionError struct {
	Index int
	From  Status
	To    Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("step %d: cannot transition from %s to %s", e.Index, e.From, e.To)
}

// Step is one unit of work.
type Step struct {
	Description string `json:"description" yaml:"description"`
	Status      Status `json:"status" yaml:"status"`
	Notes       string `json:"notes,omitempty" yaml:"notes,omitempty"`
	// Tag is taken from a leading "[tag]" in the description and selects a
	// specialised executor.
	Tag string `json:"tag,omitempty" yaml:"tag,omitempty"`
}

var tagPattern = regexp.MustCompile(`^\s*\[([A-Za-z0-9_\-]+)\]`)

// NewStep creates a NOT_STARTED step and extracts its tag.
func NewStep(description string) Step {
	description = strings.TrimSpace(description)
	step := Step{Description: description, Status: StatusNotStarted}
	if m := tagPattern.FindStringSubmatch(description); m != nil {
		step.Tag = strings.ToLower(m[1])
	}
	return step
}

// Snapshot is an immutable copy of a plan, suitable for rendering and export.
type Snapshot struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// YAML encodes the snapshot.
func (s Snapshot) YAML() ([]byte, error) { return yaml.Marshal(s) }

// Progress returns the number of completed steps and the total.
func (s Snapshot) Progress() (completed, total int) {
	for _, st := range s.Steps {
		if st.Status == StatusCompleted {
			completed++
		}
	}
	return completed, len(s.Steps)
}

// Format renders the snapshot for prompts and logs.
func (s Snapshot) Format() string {
	var b strings.Builder

	header := fmt.Sprintf("Plan: %s (ID: %s)", s.Title, s.ID)
	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("=", len([]rune(header))) + "\n\n")

	completed, total := s.Progress()
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	counts := map[Status]int{}
	for _, st := range s.Steps {
		counts[st.Status]++
	}
	fmt.Fprintf(&b, "Progress: %d/%d steps completed (%.1f%%)\n", completed, total, pct)
	fmt.Fprintf(&b, "Status: %d completed, %d in progress, %d blocked, %d not started\n\n",
		counts[StatusCompleted], counts[StatusInProgress], counts[StatusBlocked], counts[StatusNotStarted])

	b.WriteString("Steps:\n")
	for i, st := range s.Steps {
		fmt.Fprintf(&b, "%d. %s %s\n", i, st.Status.Mark(), st.Description)
		if st.Notes != "" {
			fmt.Fprintf(&b, "   Notes: %s\n", st.Notes)
		}
	}
	return b.String()
}

// Plan is an ordered list of steps. All methods are safe for concurrent use;
// mutations are serialized so one flow can share a plan with its executors.
type Plan struct {
	mu    sync.Mutex
	id    string
	title string
	steps []Step
}

// New creates a plan with every step NOT_STARTED. Blank descriptions are
// skipped; at least one step is required.
func New(id, title string, descriptions []string) (*Plan, error) {
	steps := buildSteps(descriptions)
	if len(steps) == 0 {
		return nil, errors.New("plan requires at least one step")
	}
	return &Plan{id: id, title: title, steps: steps}, nil
}

func buildSteps(descriptions []string) []Step {
	steps := make([]Step, 0, len(descriptions))
	for _, d := range descriptions {
		if strings.TrimSpace(d) == "" {
			continue
		}
		steps = append(steps, NewStep(d))
	}
	return steps
}

// ID returns the plan id.
func (p *Plan) ID() string { return p.id }

// Title returns the plan title.
func (p *Plan) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.steps)
}

// Step returns a copy of step i.
func (p *Plan) Step(i int) (Step, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.steps) {
		return Step{}, fmt.Errorf("%w: %d", ErrStepOutOfRange, i)
	}
	return p.steps[i], nil
}

// Next returns the first step that is NOT_STARTED or IN_PROGRESS.
func (p *Plan) Next() (int, Step, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, st := range p.steps {
		if st.Status.Actionable() {
			return i, st, true
		}
	}
	return -1, Step{}, false
}

// Mark moves step i to status, replacing its notes when notes is non-empty.
// Marking a step with its current status only updates the notes.
func (p *Plan) Mark(i int, status Status, notes string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mark(i, status, notes)
}

// Advance is Mark for callers that skip the IN_PROGRESS bookkeeping: a
// NOT_STARTED step asked to become COMPLETED or BLOCKED is started first.
// Both hops happen under one lock.
func (p *Plan) Advance(i int, status Status, notes string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i >= 0 && i < len(p.steps) && p.steps[i].Status == StatusNotStarted &&
		(status == StatusCompleted || status == StatusBlocked) {
		if err := p.mark(i, StatusInProgress, ""); err != nil {
			return err
		}
	}
	return p.mark(i, status, notes)
}

func (p *Plan) mark(i int, status Status, notes string) error {
	if i < 0 || i >= len(p.steps) {
		return fmt.Errorf("%w: %d", ErrStepOutOfRange, i)
	}
	from := p.steps[i].Status
	if !canTransition(from, status) {
		return &TransitionError{Index: i, From: from, To: status}
	}
	p.steps[i].Status = status
	if notes != "" {
		p.steps[i].Notes = notes
	}
	return nil
}

// Start marks step i IN_PROGRESS.
func (p *Plan) Start(i int) error { return p.Mark(i, StatusInProgress, "") }

// Complete marks step i COMPLETED.
func (p *Plan) Complete(i int, notes string) error { return p.Mark(i, StatusCompleted, notes) }

// Block marks step i BLOCKED.
func (p *Plan) Block(i int, notes string) error { return p.Mark(i, StatusBlocked, notes) }

// Update replaces title and steps. A step keeps its status and notes when
// the description at the same index is unchanged. Completed steps cannot be
// changed or removed.
func (p *Plan) Update(title string, descriptions []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if title != "" {
		p.title = title
	}
	if len(descriptions) == 0 {
		return nil
	}
	next := buildSteps(descriptions)
	if len(next) == 0 {
		return errors.New("plan requires at least one step")
	}
	for i, old := range p.steps {
		if old.Status != StatusCompleted {
			continue
		}
		if i >= len(next) || next[i].Description != old.Description {
			return &TransitionError{Index: i, From: StatusCompleted, To: StatusNotStarted}
		}
	}
	for i := range next {
		if i < len(p.steps) && p.steps[i].Description == next[i].Description {
			next[i] = p.steps[i]
		}
	}
	p.steps = next
	return nil
}

// Replan keeps the completed steps and replaces every other step with the
// revised descriptions.
func (p *Plan) Replan(descriptions []string) error {
	revised := buildSteps(descriptions)
	if len(revised) == 0 {
		return errors.New("replan requires at least one step")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := make([]Step, 0, len(p.steps)+len(revised))
	for _, st := range p.steps {
		if st.Status == StatusCompleted {
			kept = append(kept, st)
		}
	}
	p.steps = append(kept, revised...)
	return nil
}

// Progress returns the number of completed steps and the total.
func (p *Plan) Progress() (completed, total int) { return p.Snapshot().Progress() }

// Completed reports whether every step is COMPLETED.
func (p *Plan) Completed() bool {
	completed, total := p.Progress()
	return total > 0 && completed == total
}

// Blocked returns the indexes of BLOCKED steps.
func (p *Plan) Blocked() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for i, st := range p.steps {
		if st.Status == StatusBlocked {
			out = append(out, i)
		}
	}
	return out
}

// Snapshot returns a copy of the plan.
func (p *Plan) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{ID: p.id, Title: p.title, Steps: append([]Step(nil), p.steps...)}
}

// Format renders the plan.
func (p *Plan) Format() string { return p.Snapshot().Format() }

// MarshalYAML encodes the plan as its snapshot.
func (p *Plan) MarshalYAML() (any, error) { return p.Snapshot(), nil }
