package builtin

import (
	"fmt"
	"os"
	"path"

	"github.com/spf13/afero"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/tool"
)

// NewFileSaver returns the file_saver tool writing into ws.
func NewFileSaver(ws *Workspace) tool.Tool {
	return tool.NewFunctionTool(
		"file_saver",
		`Save content to a local file at a specified path.
Use this tool when you need to save text, code, or generated content to a file.
Paths are resolved inside the agent workspace.`,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "(required) The content to save to the file.",
				},
				"file_path": map[string]any{
					"type":        "string",
					"description": "(required) The path where the file should be saved, including filename and extension.",
				},
				"mode": map[string]any{
					"type":        "string",
					"description": "(optional) The file opening mode. Default is 'w' for write. Use 'a' for append.",
					"enum":        []string{"w", "a"},
				},
			},
			"required": []string{"content", "file_path"},
		},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			content, _ := args["content"].(string)
			target, _ := args["file_path"].(string)
			mode, _ := args["mode"].(string)

			name := ws.clean(target)
			if dir := path.Dir(name); dir != "/" {
				if err := ws.fs.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("error saving file: %w", err)
				}
			}

			flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
			if mode == "a" {
				flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
			}
			f, err := ws.fs.OpenFile(name, flags, 0o644)
			if err != nil {
				return nil, fmt.Errorf("error saving file: %w", err)
			}
			defer f.Close()

			if _, err := f.WriteString(content); err != nil {
				return nil, fmt.Errorf("error saving file: %w", err)
			}

			tc.Logger().Debug("tool.file_saver.saved", "path", name, "bytes", len(content))

			return fmt.Sprintf("Content successfully saved to %s", target), nil
		},
	)
}

func readFile(fs afero.Fs, name string) (string, error) {
	raw, err := afero.ReadFile(fs, name)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
