package builtin

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentflow/tool"
)

// Config carries the settings shared by the builtin tools.
type Config struct {
	Workspace     string
	BashTimeout   time.Duration
	PythonTimeout time.Duration
}

// Names lists the builtin tool names in their canonical order.
func Names() []string {
	return []string{TerminateName, "create_chat_completion", "file_saver", "bash", "python_execute", "str_replace_editor"}
}

// New builds the builtin tools listed in names. An empty list builds all.
func New(cfg Config, names ...string) ([]tool.Tool, error) {
	if len(names) == 0 {
		names = Names()
	}

	var ws *Workspace
	workspace := func() *Workspace {
		if ws == nil {
			dir := cfg.Workspace
			if dir == "" {
				dir = "."
			}
			ws = NewWorkspace(dir)
		}
		return ws
	}
	execOpts := func(timeout time.Duration) func(o *ExecOptions) {
		return func(o *ExecOptions) {
			o.Dir = workspace().Root()
			if timeout > 0 {
				o.Timeout = timeout
			}
		}
	}

	tools := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		switch name {
		case TerminateName:
			tools = append(tools, NewTerminate())
		case "create_chat_completion":
			tools = append(tools, NewCreateChatCompletion())
		case "file_saver":
			tools = append(tools, NewFileSaver(workspace()))
		case "bash":
			tools = append(tools, NewBash(execOpts(cfg.BashTimeout)))
		case "python_execute":
			tools = append(tools, NewPythonExecute(execOpts(cfg.PythonTimeout)))
		case "str_replace_editor":
			tools = append(tools, NewEditor(workspace()))
		default:
			return nil, fmt.Errorf("unknown builtin tool %q", name)
		}
	}
	return tools, nil
}
