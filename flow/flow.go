// Package flow provides the orchestrators that turn an input text into a
// result text by driving one or more agent loops.
//
// A flow owns no state across calls: every Execute builds fresh agents from
// their factories, a fresh plan and a fresh model call budget, so two
// executions never observe each other except through external resources the
// tools touch.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/logging"
	"github.com/hupe1980/agentflow/plan"
)

// Type selects a flow strategy.
type Type string

const (
	// TypeDirect runs the primary agent once.
	TypeDirect Type = "direct"
	// TypePlanning drafts a plan and executes it step by step.
	TypePlanning Type = "planning"
)

// ParseType converts s into a Type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeDirect, TypePlanning:
		return t, nil
	default:
		return "", fmt.Errorf("unknown flow type %q (want %s or %s)", s, TypeDirect, TypePlanning)
	}
}

// Flow is the orchestrator entry point used by front ends.
type Flow interface {
	// Execute runs the flow for input and returns the result text. Only
	// model boundary exhaustion outside a plan step and state misuse are
	// returned as errors.
	Execute(ctx context.Context, input string) (string, error)
}

// Runner is implemented by the built-in flows; Run returns the full report.
type Runner interface {
	Flow
	Run(ctx context.Context, input string) (*Report, error)
}

var (
	// ErrNoAgents is returned when a flow is created without agents.
	ErrNoAgents = errors.New("flow requires at least one agent")
	// ErrPlannerRequired is returned for a planning flow without a planner.
	ErrPlannerRequired = errors.New("planning flow requires a planner")
)

// Options configure a flow.
type Options struct {
	// Primary is the key of the primary agent. When empty, "primary" is used
	// if registered, otherwise the only registered agent.
	Primary string
	// ExecutorKeys restricts which agents may execute plan steps. Empty
	// allows every registered agent.
	ExecutorKeys []string
	// Planner drafts, verifies and revises plans. Required for TypePlanning.
	Planner plan.Planner
	// MaxReplans bounds re-planning after failed verification.
	MaxReplans int
	// MaxModelCalls bounds model calls per execution; zero is unlimited.
	MaxModelCalls int
	// Recorder receives the report of every execution.
	Recorder Recorder
	Logger   logging.Logger
}

// New creates a flow of type t over the given agent factories.
func New(t Type, agents map[string]agent.Factory, optFns ...func(o *Options)) (Runner, error) {
	opts := Options{MaxReplans: 2}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	primary, err := resolvePrimary(opts.Primary, agents)
	if err != nil {
		return nil, err
	}
	opts.Primary = primary
	if opts.MaxReplans < 0 {
		opts.MaxReplans = 0
	}

	switch t {
	case TypeDirect:
		return &DirectFlow{factory: agents[primary], opts: opts}, nil
	case TypePlanning:
		if opts.Planner == nil {
			return nil, ErrPlannerRequired
		}
		selector, err := NewSelector(primary, agents, opts.ExecutorKeys)
		if err != nil {
			return nil, err
		}
		return &PlanningFlow{agents: agents, selector: selector, opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown flow type %q", t)
	}
}

func resolvePrimary(key string, agents map[string]agent.Factory) (string, error) {
	if key != "" {
		if _, ok := agents[key]; !ok {
			return "", fmt.Errorf("primary agent %q not registered", key)
		}
		return key, nil
	}
	if _, ok := agents["primary"]; ok {
		return "primary", nil
	}
	if len(agents) == 1 {
		for k := range agents {
			return k, nil
		}
	}
	return "", fmt.Errorf("primary agent not set and ambiguous among %s", strings.Join(sortedKeys(agents), ", "))
}

func sortedKeys(agents map[string]agent.Factory) []string {
	keys := make([]string, 0, len(agents))
	for k := range agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
