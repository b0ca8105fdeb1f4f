package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/memory"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/tool"
)

// Options configure an Agent.
type Options struct {
	Description string
	// Tools available to the act phase. Nil means no tools.
	Tools              *tool.Registry
	MaxSteps           int
	MemoryCapacity     int
	DuplicateThreshold int
	// MaxNudges caps corrective prompts per run; the next detection finishes
	// the run as stuck.
	MaxNudges    int
	ThinkTimeout time.Duration
	ToolTimeout  time.Duration
	Retry        model.RetryPolicy
	// TerminalTools end the run after the batch that called them.
	TerminalTools []string
	MaxObserve    int
	StuckPrompt   string
	Fingerprint   func(core.Message) string
	Logger        logging.Logger
}

// Factory builds a fresh agent. Flows call it once per execution so no
// memory or state leaks between calls.
type Factory func() (*Agent, error)

// Agent is one configurable agent loop.
//
// An Agent is driven by a single goroutine at a time; State, Result and
// Memory may be read concurrently.
type Agent struct {
	name       string
	strategy   Strategy
	opts       Options
	dispatcher *tool.Dispatcher

	mu           sync.RWMutex
	state        State
	memory       *memory.Memory
	steps        int
	nudges       int
	output       string
	terminalOut  string
	notice       string
	finishReason FinishReason
	failed       bool
	lastErrored  bool
	err          error
	stuck        stuckDetector
}

// New creates an agent in state IDLE.
func New(name string, strategy Strategy, optFns ...func(o *Options)) *Agent {
	opts := Options{
		MaxSteps:           20,
		MemoryCapacity:     100,
		DuplicateThreshold: 2,
		MaxNudges:          1,
		Retry:              model.DefaultRetryPolicy(),
		TerminalTools:      []string{"terminate"},
		StuckPrompt:        DefaultStuckPrompt,
		Fingerprint:        Fingerprint,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Tools == nil {
		opts.Tools = tool.MustRegistry()
	}

	dispatcher := tool.NewDispatcher(opts.Tools, func(o *tool.DispatcherOptions) {
		o.Timeout = opts.ToolTimeout
		o.MaxObserve = opts.MaxObserve
		o.TerminalTools = opts.TerminalTools
		o.AgentName = name
		o.Logger = opts.Logger
	})

	return &Agent{
		name:       name,
		strategy:   strategy,
		opts:       opts,
		dispatcher: dispatcher,
		state:      StateIdle,
		memory:     memory.New(opts.MemoryCapacity),
		stuck:      stuckDetector{threshold: opts.DuplicateThreshold},
	}
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the configured description.
func (a *Agent) Description() string { return a.opts.Description }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *tool.Registry { return a.opts.Tools }

// State returns the current lifecycle state.
func (a *Agent) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Memory returns the agent's message log.
func (a *Agent) Memory() *memory.Memory {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.memory
}

// Result returns a snapshot of the current outcome.
func (a *Agent) Result() Result {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := a.output
	if out == "" {
		out = a.terminalOut
	}
	return Result{
		State:        a.state,
		Steps:        a.steps,
		Output:       out,
		Notice:       a.notice,
		FinishReason: a.finishReason,
		Failed:       a.failed,
		Nudges:       a.nudges,
		Err:          a.err,
	}
}

// Reset returns a finished or failed agent to IDLE with an empty memory.
func (a *Agent) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateRunning {
		return &core.InvalidStateError{Op: "reset", State: string(a.state)}
	}
	a.state = StateIdle
	a.memory = memory.New(a.opts.MemoryCapacity)
	a.steps, a.nudges = 0, 0
	a.output, a.terminalOut, a.notice = "", "", ""
	a.finishReason = ""
	a.failed, a.lastErrored = false, false
	a.err = nil
	a.stuck.reset()
	return nil
}

// Run appends request as a user message and drives steps until the loop
// leaves RUNNING. It returns the final text: the last non-empty assistant
// content or tool output, followed by any notice. Only model boundary
// exhaustion is returned as an error; running a non-idle agent fails with
// *core.InvalidStateError.
func (a *Agent) Run(ctx context.Context, request string, media ...core.Media) (string, error) {
	a.mu.Lock()
	if a.state != StateIdle {
		st := a.state
		a.mu.Unlock()
		return "", &core.InvalidStateError{Op: "run", State: string(st)}
	}
	a.state = StateRunning
	a.mu.Unlock()

	runID := core.NewID()
	ctx, span := startRunSpan(ctx, a.name, runID, a.opts.MaxSteps)
	start := time.Now()

	log := logging.ForRun(a.opts.Logger, runID, a.name)
	log.Info("agent.run.start", "max_steps", a.opts.MaxSteps, "tools", a.opts.Tools.Len())

	if request != "" || len(media) > 0 {
		a.memory.Append(core.UserMessage(request, media...))
	}

	for a.State() == StateRunning {
		if err := ctx.Err(); err != nil {
			a.cancel(err)
			break
		}
		if _, err := a.Step(ctx); err != nil {
			break
		}
	}

	res := a.Result()
	endRunSpan(span, res)

	logArgs := []any{
		"state", res.State,
		"finish_reason", res.FinishReason,
		"steps", res.Steps,
		"nudges", res.Nudges,
		"failed", res.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if res.Err != nil {
		log.Error("agent.run.failed", append(logArgs, "error", res.Err.Error())...)
		return res.Text(), res.Err
	}
	log.Info("agent.run.finished", logArgs...)

	return res.Text(), nil
}

// Step runs one think/act cycle and returns a textual summary of it: the
// assistant content, or the tool observations when tools were called. Once
// MaxSteps cycles have run, Step finishes the agent with a truncation notice
// instead and returns that notice.
func (a *Agent) Step(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.state != StateRunning {
		st := a.state
		a.mu.Unlock()
		return "", &core.InvalidStateError{Op: "step", State: string(st)}
	}
	if a.steps >= a.opts.MaxSteps {
		a.mu.Unlock()
		notice := fmt.Sprintf("Terminated: reached max steps (%d)", a.opts.MaxSteps)
		a.memory.Append(core.SystemMessage(notice))
		a.finish(FinishMaxSteps, notice)
		return notice, nil
	}
	a.steps++
	step := a.steps
	a.mu.Unlock()

	ctx, span := startStepSpan(ctx, a.name, step)
	defer span.End()

	a.opts.Logger.Debug("agent.step.start", "agent", a.name, "step", step, "max_steps", a.opts.MaxSteps)

	msg, err := a.think(ctx, step)
	if err != nil {
		if ctx.Err() != nil {
			a.cancel(ctx.Err())
			return "", nil
		}
		a.fail(err)
		span.RecordError(err)
		return "", err
	}

	a.memory.Append(msg)
	if text := msg.Text(); text != "" {
		a.setOutput(text)
	}

	if !msg.HasToolCalls() {
		a.setLastErrored(false)
		if a.strategy.Done(msg) {
			a.finish(FinishCompleted, "")
		} else {
			a.detectStuck(msg)
		}
		a.opts.Logger.Debug("agent.step.finished", "agent", a.name, "step", step, "tool_calls", 0)
		return msg.Content, nil
	}

	results := a.dispatcher.Dispatch(ctx, msg.ToolCalls, a.memory.Append)

	var (
		observations = make([]string, 0, len(results))
		terminal     bool
		terminalFail bool
	)
	for _, r := range results {
		observations = append(observations, r.Observation())
		switch {
		case r.Terminal:
			terminal = true
			terminalFail = terminalFail || r.Failed
			a.setTerminalOutput(r.Output)
		case r.Output != "":
			a.setOutput(r.Output)
		}
	}
	a.setLastErrored(results[len(results)-1].IsError)

	a.opts.Logger.Debug("agent.step.finished", "agent", a.name, "step", step, "tool_calls", len(results), "terminal", terminal)

	if terminal {
		if terminalFail {
			a.mu.Lock()
			a.failed = true
			a.mu.Unlock()
		}
		a.finish(FinishTerminated, "")
	} else {
		a.detectStuck(msg)
	}

	return strings.Join(observations, "\n\n"), nil
}

// think asks the strategy for the next message with per-attempt timeout and
// bounded retries. Exhaustion yields a *core.ModelBoundaryError.
func (a *Agent) think(ctx context.Context, step int) (core.Message, error) {
	ctx, span := startThinkSpan(ctx, a.name)

	in := ThinkInput{
		Agent:    a.name,
		Step:     step,
		MaxSteps: a.opts.MaxSteps,
		Messages: a.memory.All(),
		Tools:    a.opts.Tools.Definitions(),
	}

	policy := a.opts.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		a.opts.Logger.Warn("agent.think.retry", "agent", a.name, "step", step, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err.Error())
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}

	msg, attempts, err := model.Retry(ctx, policy, func(ctx context.Context) (core.Message, error) {
		if a.opts.ThinkTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.opts.ThinkTimeout)
			defer cancel()
		}
		return a.strategy.Think(ctx, in)
	})
	endThinkSpan(span, attempts, len(msg.ToolCalls), err)
	if err != nil {
		return core.Message{}, &core.ModelBoundaryError{Agent: a.name, Attempts: attempts, Err: err}
	}

	msg.Role = core.RoleAssistant
	for i := range msg.ToolCalls {
		if msg.ToolCalls[i].ID == "" {
			msg.ToolCalls[i].ID = core.NewID()
		}
	}
	return msg, nil
}

// detectStuck injects a corrective prompt when the same response repeats,
// up to MaxNudges times; the next detection finishes the run.
func (a *Agent) detectStuck(msg core.Message) {
	a.mu.Lock()
	stuck := a.stuck.observe(a.opts.Fingerprint(msg))
	nudges := a.nudges
	a.mu.Unlock()

	if !stuck {
		return
	}

	if nudges < a.opts.MaxNudges {
		a.mu.Lock()
		a.nudges++
		a.mu.Unlock()
		a.memory.Append(core.SystemMessage(a.opts.StuckPrompt))
		a.opts.Logger.Warn("agent.stuck.nudge", "agent", a.name, "nudge", nudges+1, "max_nudges", a.opts.MaxNudges)
		return
	}

	notice := fmt.Sprintf("Terminated: agent is stuck repeating the same response (%d corrective prompt(s) ignored)", nudges)
	a.memory.Append(core.SystemMessage(notice))
	a.opts.Logger.Warn("agent.stuck.finished", "agent", a.name, "nudges", nudges)
	a.finish(FinishStuck, notice)
}

func (a *Agent) setOutput(s string) {
	a.mu.Lock()
	a.output = s
	a.mu.Unlock()
}

func (a *Agent) setTerminalOutput(s string) {
	a.mu.Lock()
	a.terminalOut = s
	a.mu.Unlock()
}

func (a *Agent) setLastErrored(v bool) {
	a.mu.Lock()
	a.lastErrored = v
	a.mu.Unlock()
}

func (a *Agent) finish(reason FinishReason, notice string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateRunning {
		return
	}
	a.state = StateFinished
	a.finishReason = reason
	a.notice = notice
	a.failed = a.failed || a.lastErrored
}

func (a *Agent) cancel(cause error) {
	a.finish(FinishCancelled, fmt.Sprintf("Cancelled: %v", cause))
}

func (a *Agent) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateError
	a.err = err
}
