package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/logging"
)

var tracer = otel.Tracer("github.com/hupe1980/agentflow/tool")

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	// Timeout bounds a single tool call. Zero disables the bound.
	Timeout time.Duration
	// MaxObserve truncates observation text to this many runes. Zero keeps everything.
	MaxObserve int
	// TerminalTools are names whose successful invocation ends the run.
	TerminalTools []string
	// AgentName is propagated into every ToolContext.
	AgentName string
	Logger    logging.Logger
}

// Dispatcher executes a batch of tool calls sequentially, in the order the
// model emitted them. Every failure mode (unknown tool, malformed arguments,
// tool error, panic, timeout) is contained in an error Result; Dispatch
// never returns a Go error.
type Dispatcher struct {
	registry *Registry
	opts     DispatcherOptions
	terminal map[string]struct{}
}

// NewDispatcher creates a Dispatcher resolving tools from registry.
func NewDispatcher(registry *Registry, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	terminal := make(map[string]struct{}, len(opts.TerminalTools))
	for _, name := range opts.TerminalTools {
		terminal[name] = struct{}{}
	}

	return &Dispatcher{registry: registry, opts: opts, terminal: terminal}
}

// Registry returns the registry the dispatcher resolves against.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch executes calls one after another. emit, if non-nil, receives the
// observation message of each result as soon as it is available, so later
// calls observe the effects of earlier ones. Once ctx is cancelled the
// remaining calls are answered with a cancellation error without running.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []core.ToolCall, emit func(core.Message)) []Result {
	results := make([]Result, 0, len(calls))
	batchStart := time.Now()

	for _, call := range calls {
		var res Result
		if ctx.Err() != nil {
			res = Fail(call, NewToolError(call.Name, "call skipped: run cancelled", CodeCancelled))
		} else {
			res = d.Execute(ctx, call)
		}
		results = append(results, res)
		if emit != nil {
			emit(res.Message())
		}
	}

	d.opts.Logger.Debug(
		"tool.dispatch.batch.complete",
		"agent", d.opts.AgentName,
		"count", len(calls),
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

// Execute runs a single call and always returns a Result.
func (d *Dispatcher) Execute(ctx context.Context, call core.ToolCall) Result {
	ctx, span := tracer.Start(ctx, "tool.call")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)

	start := time.Now()
	res := d.execute(ctx, call)
	res.CallID = call.ID
	res.Tool = call.Name
	res.Duration = time.Since(start)
	res.Output = truncate(res.Output, d.opts.MaxObserve)

	if res.IsError {
		if res.Err == nil {
			res.Err = NewToolError(call.Name, res.Output, CodeExecution)
		}
		// A terminal tool that failed does not end the run.
		res.Terminal = false
		span.SetStatus(codes.Error, res.Err.Message)
		span.SetAttributes(attribute.String("tool.error_code", res.Err.Code))
	}
	span.SetAttributes(attribute.Bool("tool.is_error", res.IsError), attribute.Bool("tool.terminal", res.Terminal))

	var logErr error
	if res.IsError {
		logErr = res.Err
	}
	logging.LogToolCall(d.opts.Logger, call.Name, res.Duration, logErr,
		"agent", d.opts.AgentName,
		"call_id", call.ID,
		"terminal", res.Terminal,
	)

	return res
}

func (d *Dispatcher) execute(ctx context.Context, call core.ToolCall) Result {
	impl, ok := d.registry.Get(call.Name)
	if !ok {
		return Fail(call, NewToolError(call.Name, fmt.Sprintf("tool %s not found", call.Name), CodeNotFound))
	}

	args, err := decodeArguments(call.Arguments)
	if err != nil {
		return Fail(call, NewToolError(call.Name, fmt.Sprintf("failed to unmarshal args: %v", err), CodeInvalidArguments))
	}

	value, err := d.invoke(ctx, impl, call, args)
	if err != nil {
		var toolErr *ToolError
		if !errors.As(err, &toolErr) {
			toolErr = NewToolError(call.Name, err.Error(), CodeExecution)
		}
		if toolErr.Code == CodePanic {
			d.opts.Logger.Error("tool.dispatch.panic", "agent", d.opts.AgentName, "tool", call.Name, "recover", toolErr.Details)
		}
		return Fail(call, toolErr)
	}

	res := fromValue(value)
	if _, ok := d.terminal[call.Name]; ok {
		res.Terminal = true
	}
	return res
}

type outcome struct {
	value any
	err   error
}

// invoke runs the tool on its own goroutine so a per-call timeout can be
// enforced and a panic recovered. A timed out tool keeps running until it
// observes its cancelled context; its late result is discarded.
func (d *Dispatcher) invoke(ctx context.Context, impl Tool, call core.ToolCall, args map[string]any) (any, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if d.opts.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
	}
	defer cancel()

	toolCtx := core.NewToolContext(callCtx, d.opts.AgentName, call.ID, d.opts.Logger)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: panicError(call.Name, r)}
			}
		}()
		v, err := impl.Call(toolCtx, args)
		done <- outcome{value: v, err: err}
	}()

	var o outcome
	select {
	case o = <-done:
		if o.err == nil || callCtx.Err() == nil {
			return o.value, o.err
		}
	case <-callCtx.Done():
	}

	if ctx.Err() != nil {
		return nil, NewToolError(call.Name, "call cancelled", CodeCancelled)
	}
	return nil, NewToolError(call.Name, fmt.Sprintf("call timed out after %s", d.opts.Timeout), CodeTimeout)
}

// panicError converts a recovered panic value to a contained tool error.
func panicError(tool string, r any) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: fmt.Sprintf("panic recovered: %v", r),
		Code:    CodePanic,
		Details: string(debug.Stack()),
	}
}

func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil { // literal null
		args = map[string]any{}
	}
	return args, nil
}

func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "... (truncated)"
}
