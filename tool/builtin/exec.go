package builtin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/tool"
)

// ExecOptions configure the process backed tools.
type ExecOptions struct {
	// Dir is the working directory of spawned processes.
	Dir string
	// Timeout is used when the call does not carry its own.
	Timeout time.Duration
}

// NewBash returns the bash tool.
func NewBash(optFns ...func(o *ExecOptions)) tool.Tool {
	opts := ExecOptions{Timeout: 120 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewFunctionTool(
		"bash",
		`Execute a bash command in the terminal.
* Long running commands: run them in the background and redirect output to a file, e.g. command = "python3 app.py > server.log 2>&1 &".
* Timeout: if a command times out, retry running it in the background.`,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The bash command to execute.",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Optional timeout in seconds.",
				},
			},
			"required": []string{"command"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			command, _ := args["command"].(string)
			if strings.TrimSpace(command) == "" {
				return nil, errors.New("command must not be empty")
			}
			return run(tc, opts, timeoutArg(args, opts.Timeout), "bash", "bash", "-c", command)
		},
	)
}

// NewPythonExecute returns the python_execute tool. Only printed output is
// captured.
func NewPythonExecute(optFns ...func(o *ExecOptions)) tool.Tool {
	opts := ExecOptions{Timeout: 5 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewFunctionTool(
		"python_execute",
		"Executes Python code string. Note: Only print outputs are visible, function return values are not captured. Use print statements to see results.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "The Python code to execute.",
				},
				"timeout": map[string]any{
					"type":        "integer",
					"description": "Optional timeout in seconds.",
				},
			},
			"required": []string{"code"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			code, _ := args["code"].(string)
			return run(tc, opts, timeoutArg(args, opts.Timeout), "python_execute", "python3", "-c", code)
		},
	)
}

func timeoutArg(args map[string]any, def time.Duration) time.Duration {
	if secs, ok := args["timeout"].(float64); ok && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

// run executes name with args and reports stdout, plus stderr when present.
// A non-zero exit is returned as an error observation carrying the output.
func run(tc *core.ToolContext, opts ExecOptions, timeout time.Duration, toolName, name string, args ...string) (any, error) {
	ctx := tc.Context()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()

	tc.Logger().Debug("tool.exec.finished", "tool", toolName, "command", name, "duration_ms", time.Since(start).Milliseconds(), "error", err != nil)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, tool.NewToolError(toolName, fmt.Sprintf("execution timed out after %s", timeout), tool.CodeTimeout)
	}

	out := strings.TrimRight(stdout.String(), "\n")
	if msg := strings.TrimRight(stderr.String(), "\n"); msg != "" {
		if out != "" {
			out += "\n"
		}
		out += msg
	}

	if err != nil {
		if out == "" {
			out = err.Error()
		}
		return tool.Result{Output: out, IsError: true}, nil
	}
	return out, nil
}
