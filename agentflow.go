// Package agentflow provides a high-level façade that assembles a ready to
// run flow from a config.Config: the model backend, the builtin tools, one
// agent factory per configured profile, the planner and the recorder.
//
// Most applications interact with this package by:
//  1. Loading a configuration via config.Load
//  2. Creating an AgentFlow via New (optionally overriding the model, the
//     recorder or the logger)
//  3. Calling Run (full report) or Execute (result text only)
//
// Lower level packages (agent, plan, flow) remain usable on their own when
// a different assembly is needed.
package agentflow

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/config"
	"github.com/hupe1980/agentflow/flow"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/model"
	"github.com/hupe1980/agentflow/model/anthropic"
	"github.com/hupe1980/agentflow/model/openai"
	"github.com/hupe1980/agentflow/plan"
	"github.com/hupe1980/agentflow/tool"
	"github.com/hupe1980/agentflow/tool/builtin"
)

// DefaultSystemPrompt is used for profiles without a system prompt.
const DefaultSystemPrompt = "You are {{.agent}}, an all-capable AI assistant aimed at solving any task presented by the user. " +
	"You have various tools at your disposal that you can call upon to efficiently complete complex requests. " +
	"Whether it's programming, information processing, file operations or writing, you can handle it all."

// DefaultNextStepPrompt is used for profiles without a next step prompt.
const DefaultNextStepPrompt = "Based on user needs, proactively select the most appropriate tool or combination of tools. " +
	"For complex tasks, you can break down the problem and use different tools step by step to solve it. " +
	"After using each tool, clearly explain the execution results and suggest the next steps. " +
	"If you want to stop the interaction at any point, use the `terminate` tool/function call."

// Options configures the AgentFlow instance.
type Options struct {
	// Model overrides the model built from the llm configuration.
	Model model.Model
	// Recorder receives the report of every execution (nil disables).
	Recorder flow.Recorder
	// ExtraTools are registered on every agent next to its builtin tools.
	// They are shared across executions and must be safe for that.
	ExtraTools []tool.Tool
	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// AgentFlow is the assembled orchestrator.
type AgentFlow struct {
	cfg    *config.Config
	opts   Options
	llm    model.Model
	agents map[string]agent.Factory
	runner flow.Runner
}

// New assembles an AgentFlow from cfg. Every agent profile is built once
// up front so configuration errors surface here rather than mid-run.
func New(cfg *config.Config, optFns ...func(o *Options)) (*AgentFlow, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	llm := opts.Model
	if llm == nil {
		var err error
		if llm, err = NewModel(cfg.LLM); err != nil {
			return nil, err
		}
	}

	af := &AgentFlow{cfg: cfg, opts: opts, llm: llm, agents: make(map[string]agent.Factory, len(cfg.Agents))}

	for _, name := range cfg.AgentNames() {
		factory := af.factory(name, cfg.Agents[name])
		if _, err := factory(); err != nil {
			return nil, fmt.Errorf("agent %s: %w", name, err)
		}
		af.agents[name] = factory
	}

	flowType, err := flow.ParseType(cfg.Flow.Type)
	if err != nil {
		return nil, err
	}

	runner, err := flow.New(flowType, af.agents, func(o *flow.Options) {
		o.Primary = cfg.Flow.Primary
		o.ExecutorKeys = cfg.Flow.ExecutorKeys
		o.MaxReplans = cfg.Flow.MaxReplans
		o.MaxModelCalls = cfg.Flow.MaxModelCalls
		o.Recorder = opts.Recorder
		o.Logger = opts.Logger
		if flowType == flow.TypePlanning {
			o.Planner = plan.NewModelPlanner(llm, func(po *plan.ModelPlannerOptions) {
				po.Timeout = cfg.Agent.ThinkTimeout
				po.Retry = af.retryPolicy()
				po.Logger = opts.Logger
			})
		}
	})
	if err != nil {
		return nil, err
	}
	af.runner = runner

	opts.Logger.Info("agentflow.ready", "flow", flowType, "model", llm.Info().String(), "agents", cfg.AgentNames())
	return af, nil
}

// NewModel builds the model backend selected by cfg.Provider.
func NewModel(cfg config.LLMConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Model
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = cfg.MaxTokens
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model)
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// Run executes the configured flow on input, bounded by flow.timeout.
func (af *AgentFlow) Run(ctx context.Context, input string) (*flow.Report, error) {
	if af.cfg.Flow.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, af.cfg.Flow.Timeout)
		defer cancel()
	}
	return af.runner.Run(ctx, input)
}

// Execute runs the flow and returns the result text.
func (af *AgentFlow) Execute(ctx context.Context, input string) (string, error) {
	r, err := af.Run(ctx, input)
	if err != nil {
		return "", err
	}
	return r.Text(), nil
}

// Flow returns the underlying flow.
func (af *AgentFlow) Flow() flow.Runner { return af.runner }

// Model returns the model shared by every agent and the planner.
func (af *AgentFlow) Model() model.Model { return af.llm }

// Agent builds a fresh instance of the named agent.
func (af *AgentFlow) Agent(name string) (*agent.Agent, error) {
	factory, ok := af.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent %q not configured", name)
	}
	return factory()
}

func (af *AgentFlow) factory(name string, p config.Profile) agent.Factory {
	cfg := af.cfg

	systemPrompt := p.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	if cfg.Tools.Workspace != "" {
		if abs, err := filepath.Abs(cfg.Tools.Workspace); err == nil {
			systemPrompt += "\nThe workspace directory is: " + abs
		}
	}
	nextStepPrompt := p.NextStepPrompt
	if nextStepPrompt == "" {
		nextStepPrompt = DefaultNextStepPrompt
	}

	return func() (*agent.Agent, error) {
		tools, err := ToolsFor(cfg, p)
		if err != nil {
			return nil, err
		}
		registry, err := tool.NewRegistry(append(tools, af.opts.ExtraTools...)...)
		if err != nil {
			return nil, err
		}

		strategy := agent.NewToolCallStrategy(af.llm, func(o *agent.ToolCallOptions) {
			o.SystemPrompt = agent.NewInstructionFromText(systemPrompt)
			o.NextStepPrompt = agent.NewInstructionFromText(nextStepPrompt)
			o.Stream = cfg.LLM.Stream
			o.Logger = af.opts.Logger
		})

		return agent.New(name, strategy, func(o *agent.Options) {
			o.Description = p.Description
			o.Tools = registry
			o.MaxSteps = cfg.Agent.MaxSteps
			o.MemoryCapacity = cfg.Agent.MemoryCapacity
			o.DuplicateThreshold = cfg.Agent.DuplicateThreshold
			o.MaxNudges = cfg.Agent.MaxNudges
			o.ThinkTimeout = cfg.Agent.ThinkTimeout
			o.ToolTimeout = cfg.Agent.ToolTimeout
			o.MaxObserve = cfg.Agent.MaxObserve
			o.Retry = af.retryPolicy()
			o.Logger = af.opts.Logger
		}), nil
	}
}

func (af *AgentFlow) retryPolicy() model.RetryPolicy {
	p := model.DefaultRetryPolicy()
	p.MaxRetries = af.cfg.Agent.MaxRetries
	return p
}

// ToolsFor builds fresh builtin tools for profile p. The terminate tool is
// always included so every agent can end its run.
func ToolsFor(cfg *config.Config, p config.Profile) ([]tool.Tool, error) {
	names := p.Tools
	if len(names) > 0 && !slices.Contains(names, builtin.TerminateName) {
		names = append(slices.Clone(names), builtin.TerminateName)
	}
	return builtin.New(builtin.Config{
		Workspace:     cfg.Tools.Workspace,
		BashTimeout:   cfg.Tools.BashTimeout,
		PythonTimeout: cfg.Tools.PythonTimeout,
	}, names...)
}
