// Package logging provides a minimal logging interface and adapters for agentflow.
//
// The Logger interface defines the four levelled methods the agent loop, the
// tool dispatcher and the flows use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and StructuredLogger built on log/slog
//   - ZapAdapter for applications already standardised on zap
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LogLevelInfo, Format: "text", Output: os.Stderr})
//	a := agent.New("manus", strategy, func(o *agent.Options) { o.Logger = logger })
package logging
