package testutil

import (
	"time"

	"github.com/hupe1980/agentflow/config"
)

// ConfigBuilder helps construct configurations with fluent chaining for
// tests. It starts from config.DefaultConfig with fast retries.
// Example:
//
//	cfg := NewConfigBuilder(t.TempDir()).Flow("planning").Agent("coder", "writes code", "bash").Build()
type ConfigBuilder struct {
	cfg config.Config
}

// NewConfigBuilder creates a builder whose tools work in workspace.
func NewConfigBuilder(workspace string) *ConfigBuilder {
	cfg := config.DefaultConfig()
	cfg.Tools.Workspace = workspace
	cfg.Agent.MaxRetries = 0
	cfg.Agent.ThinkTimeout = 5 * time.Second
	cfg.Agent.ToolTimeout = 5 * time.Second
	cfg.Flow.Timeout = 30 * time.Second
	return &ConfigBuilder{cfg: cfg}
}

// Flow sets the flow type (chainable).
func (b *ConfigBuilder) Flow(t string) *ConfigBuilder { b.cfg.Flow.Type = t; return b }

// MaxSteps sets the per agent step limit (chainable).
func (b *ConfigBuilder) MaxSteps(n int) *ConfigBuilder { b.cfg.Agent.MaxSteps = n; return b }

// MaxReplans sets the re-plan bound (chainable).
func (b *ConfigBuilder) MaxReplans(n int) *ConfigBuilder { b.cfg.Flow.MaxReplans = n; return b }

// Executors restricts the plan step executors (chainable).
func (b *ConfigBuilder) Executors(keys ...string) *ConfigBuilder {
	b.cfg.Flow.ExecutorKeys = keys
	return b
}

// Agent adds or replaces an agent profile (chainable).
func (b *ConfigBuilder) Agent(name, description string, tools ...string) *ConfigBuilder {
	agents := make(map[string]config.Profile, len(b.cfg.Agents)+1)
	for k, v := range b.cfg.Agents {
		agents[k] = v
	}
	agents[name] = config.Profile{Description: description, Tools: tools}
	b.cfg.Agents = agents
	return b
}

// Storage enables run history at path (chainable).
func (b *ConfigBuilder) Storage(path string) *ConfigBuilder {
	b.cfg.Storage.Enabled = true
	b.cfg.Storage.Path = path
	return b
}

// Build returns a copy of the configuration.
func (b *ConfigBuilder) Build() *config.Config {
	cfg := b.cfg
	return &cfg
}
