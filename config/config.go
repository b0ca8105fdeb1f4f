// Package config loads agentflow settings from a YAML file, AGENTFLOW_*
// environment variables and built-in defaults, in increasing precedence of
// defaults < file < environment.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/agentflow/flow"
	"github.com/hupe1980/agentflow/logging"
)

// Providers supported by LLMConfig.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "AGENTFLOW"

// LLMConfig selects and parameterizes the model backend.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"`
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int64   `mapstructure:"max_tokens" yaml:"max_tokens"`
	Stream      bool    `mapstructure:"stream" yaml:"stream"`
}

// AgentConfig holds the loop limits shared by every agent.
type AgentConfig struct {
	MaxSteps           int           `mapstructure:"max_steps" yaml:"max_steps"`
	MemoryCapacity     int           `mapstructure:"memory_capacity" yaml:"memory_capacity"`
	DuplicateThreshold int           `mapstructure:"duplicate_threshold" yaml:"duplicate_threshold"`
	MaxNudges          int           `mapstructure:"max_nudges" yaml:"max_nudges"`
	ThinkTimeout       time.Duration `mapstructure:"think_timeout" yaml:"think_timeout"`
	ToolTimeout        time.Duration `mapstructure:"tool_timeout" yaml:"tool_timeout"`
	MaxRetries         int           `mapstructure:"max_retries" yaml:"max_retries"`
	MaxObserve         int           `mapstructure:"max_observe" yaml:"max_observe"`
}

// Profile describes one named agent. Tools lists builtin tool names; empty
// means all of them.
type Profile struct {
	Description    string   `mapstructure:"description" yaml:"description"`
	SystemPrompt   string   `mapstructure:"system_prompt" yaml:"system_prompt"`
	NextStepPrompt string   `mapstructure:"next_step_prompt" yaml:"next_step_prompt"`
	Tools          []string `mapstructure:"tools" yaml:"tools"`
}

// FlowConfig selects the orchestrator.
type FlowConfig struct {
	Type          string        `mapstructure:"type" yaml:"type"`
	Primary       string        `mapstructure:"primary" yaml:"primary"`
	MaxReplans    int           `mapstructure:"max_replans" yaml:"max_replans"`
	ExecutorKeys  []string      `mapstructure:"executor_keys" yaml:"executor_keys"`
	MaxModelCalls int           `mapstructure:"max_model_calls" yaml:"max_model_calls"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ToolsConfig configures the builtin tools.
type ToolsConfig struct {
	Workspace     string        `mapstructure:"workspace" yaml:"workspace"`
	BashTimeout   time.Duration `mapstructure:"bash_timeout" yaml:"bash_timeout"`
	PythonTimeout time.Duration `mapstructure:"python_timeout" yaml:"python_timeout"`
}

// LogConfig selects the logger. Backend is slog or zap.
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Format  string `mapstructure:"format" yaml:"format"`
	Backend string `mapstructure:"backend" yaml:"backend"`
}

// StorageConfig configures the run history database.
type StorageConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	Path        string        `mapstructure:"path" yaml:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout" yaml:"busy_timeout"`
}

// Config is the root configuration.
type Config struct {
	LLM     LLMConfig          `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig        `mapstructure:"agent" yaml:"agent"`
	Agents  map[string]Profile `mapstructure:"agents" yaml:"agents"`
	Flow    FlowConfig         `mapstructure:"flow" yaml:"flow"`
	Tools   ToolsConfig        `mapstructure:"tools" yaml:"tools"`
	Log     LogConfig          `mapstructure:"log" yaml:"log"`
	Storage StorageConfig      `mapstructure:"storage" yaml:"storage"`
}

// Load reads the configuration. An empty cfgFile searches ./config.yaml and
// $HOME/.agentflow/config.yaml; a missing file is not an error.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.agentflow")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.Agents) == 0 {
		cfg.Agents = DefaultConfig().Agents
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be repaired by defaults.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be %s or %s, got %q", ProviderOpenAI, ProviderAnthropic, c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if _, err := flow.ParseType(c.Flow.Type); err != nil {
		return fmt.Errorf("flow.type: %w", err)
	}
	if c.Flow.MaxReplans < 0 {
		return errors.New("flow.max_replans must not be negative")
	}
	if c.Flow.MaxModelCalls < 0 {
		return errors.New("flow.max_model_calls must not be negative")
	}
	if c.Agent.MaxSteps <= 0 {
		return errors.New("agent.max_steps must be positive")
	}
	if c.Agent.MemoryCapacity <= 0 {
		return errors.New("agent.memory_capacity must be positive")
	}
	if c.Agent.MaxRetries < 0 {
		return errors.New("agent.max_retries must not be negative")
	}
	if len(c.Agents) == 0 {
		return errors.New("at least one agent profile is required")
	}
	if c.Flow.Primary != "" {
		if _, ok := c.Agents[c.Flow.Primary]; !ok {
			return fmt.Errorf("flow.primary %q is not a configured agent", c.Flow.Primary)
		}
	}
	for _, k := range c.Flow.ExecutorKeys {
		if _, ok := c.Agents[strings.ToLower(k)]; !ok {
			return fmt.Errorf("flow.executor_keys: %q is not a configured agent", k)
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Backend {
	case "slog", "zap":
	default:
		return fmt.Errorf("log.backend must be slog or zap, got %q", c.Log.Backend)
	}
	if c.Storage.Enabled && c.Storage.Path == "" {
		return errors.New("storage.path is required when storage is enabled")
	}
	return nil
}

// AgentNames returns the configured agent names in sorted order.
func (c *Config) AgentNames() []string {
	names := make([]string, 0, len(c.Agents))
	for name := range c.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", d.LLM.Temperature)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
	v.SetDefault("llm.stream", d.LLM.Stream)

	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)
	v.SetDefault("agent.memory_capacity", d.Agent.MemoryCapacity)
	v.SetDefault("agent.duplicate_threshold", d.Agent.DuplicateThreshold)
	v.SetDefault("agent.max_nudges", d.Agent.MaxNudges)
	v.SetDefault("agent.think_timeout", d.Agent.ThinkTimeout)
	v.SetDefault("agent.tool_timeout", d.Agent.ToolTimeout)
	v.SetDefault("agent.max_retries", d.Agent.MaxRetries)
	v.SetDefault("agent.max_observe", d.Agent.MaxObserve)

	v.SetDefault("flow.type", d.Flow.Type)
	v.SetDefault("flow.primary", d.Flow.Primary)
	v.SetDefault("flow.max_replans", d.Flow.MaxReplans)
	v.SetDefault("flow.executor_keys", d.Flow.ExecutorKeys)
	v.SetDefault("flow.max_model_calls", d.Flow.MaxModelCalls)
	v.SetDefault("flow.timeout", d.Flow.Timeout)

	v.SetDefault("tools.workspace", d.Tools.Workspace)
	v.SetDefault("tools.bash_timeout", d.Tools.BashTimeout)
	v.SetDefault("tools.python_timeout", d.Tools.PythonTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.backend", d.Log.Backend)

	v.SetDefault("storage.enabled", d.Storage.Enabled)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.busy_timeout", d.Storage.BusyTimeout)

	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.base_url", EnvPrefix+"_LLM_BASE_URL", "OPENAI_BASE_URL")
}

// DefaultConfig returns the built-in defaults: a single "primary" agent
// with every builtin tool behind a direct flow.
func DefaultConfig() Config {
	return Config{
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0,
			MaxTokens:   4096,
		},
		Agent: AgentConfig{
			MaxSteps:           20,
			MemoryCapacity:     100,
			DuplicateThreshold: 2,
			MaxNudges:          1,
			ThinkTimeout:       2 * time.Minute,
			ToolTimeout:        2 * time.Minute,
			MaxRetries:         2,
			MaxObserve:         10000,
		},
		Agents: map[string]Profile{
			"primary": {Description: "A versatile agent that can solve various tasks using multiple tools"},
		},
		Flow: FlowConfig{
			Type:       string(flow.TypeDirect),
			MaxReplans: 2,
			Timeout:    time.Hour,
		},
		Tools: ToolsConfig{
			Workspace:     "workspace",
			BashTimeout:   2 * time.Minute,
			PythonTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "text",
			Backend: "slog",
		},
		Storage: StorageConfig{
			Path:        "agentflow.db",
			BusyTimeout: 5 * time.Second,
		},
	}
}
