package flow

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentflow/agent"
	"github.com/hupe1980/agentflow/plan"
)

// Selector determines which agent executes a plan step.
//
// Selection logic:
//   - the step tag, when an agent with that key is registered and allowed
//   - otherwise the first allowed executor key
//   - otherwise the primary agent
type Selector struct {
	primary string
	allowed map[string]struct{}
	keys    []string
}

// NewSelector creates a selector. Every executor key must be registered.
func NewSelector(primary string, agents map[string]agent.Factory, executorKeys []string) (*Selector, error) {
	s := &Selector{primary: primary, allowed: map[string]struct{}{}}
	for _, k := range executorKeys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := agents[k]; !ok {
			return nil, fmt.Errorf("executor %q not registered", k)
		}
		if _, dup := s.allowed[k]; !dup {
			s.allowed[k] = struct{}{}
			s.keys = append(s.keys, k)
		}
	}
	if len(s.keys) == 0 {
		for _, k := range sortedKeys(agents) {
			s.allowed[k] = struct{}{}
		}
	}
	return s, nil
}

// Select returns the agent key for step.
func (s *Selector) Select(step plan.Step) string {
	if step.Tag != "" {
		if _, ok := s.allowed[step.Tag]; ok {
			return step.Tag
		}
	}
	if len(s.keys) > 0 {
		return s.keys[0]
	}
	return s.primary
}
