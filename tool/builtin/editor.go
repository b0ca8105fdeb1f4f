package builtin

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/internal/util"
	"github.com/hupe1980/agentflow/tool"
)

const (
	snippetLines     = 4
	maxResponseLen   = 16000
	truncatedMessage = "<response clipped><NOTE>To save on context only part of this file has been shown. Search the file with grep -n and view the lines you need.</NOTE>"
)

const editorDescription = `Custom editing tool for viewing, creating and editing files.
* State is persistent across command calls.
* If path is a file, view displays the result of applying cat -n. If path is a directory, view lists non-hidden files and directories up to 2 levels deep.
* The create command cannot be used if the specified path already exists as a file.
* If a command generates a long output, it will be truncated and marked with <response clipped>.
* The undo_edit command will revert the last edit made to the file at path.

Notes for using the str_replace command:
* old_str should match EXACTLY one or more consecutive lines from the original file. Be mindful of whitespace.
* If old_str is not unique in the file, the replacement will not be performed. Include enough context to make it unique.
* new_str should contain the edited lines that replace old_str.`

// Editor is the str_replace_editor tool. It keeps an undo history per path
// and is safe for concurrent use.
type Editor struct {
	ws *Workspace

	mu      sync.Mutex
	history map[string][]string
}

// NewEditor creates an editor confined to ws.
func NewEditor(ws *Workspace) *Editor {
	return &Editor{ws: ws, history: map[string][]string{}}
}

// Name implements tool.Tool.
func (e *Editor) Name() string { return "str_replace_editor" }

// Description implements tool.Tool.
func (e *Editor) Description() string { return editorDescription }

// Parameters implements tool.Tool.
func (e *Editor) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The command to run.",
				"enum":        []string{"view", "create", "str_replace", "insert", "undo_edit"},
			},
			"path": map[string]any{
				"type":        "string",
				"description": "Path to file or directory inside the workspace.",
			},
			"file_text": map[string]any{
				"type":        "string",
				"description": "Required for create: the content of the file.",
			},
			"old_str": map[string]any{
				"type":        "string",
				"description": "Required for str_replace: the string to replace.",
			},
			"new_str": map[string]any{
				"type":        "string",
				"description": "Optional for str_replace, required for insert: the new string.",
			},
			"insert_line": map[string]any{
				"type":        "integer",
				"description": "Required for insert: new_str is inserted AFTER this line.",
			},
			"view_range": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "integer"},
				"description": "Optional for view on files: [start, end] lines, end -1 means to the end of the file.",
			},
		},
		"required": []string{"command", "path"},
	}
}

// Call implements tool.Tool.
func (e *Editor) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, e.Parameters()); err != nil {
		return nil, &tool.ToolError{Tool: e.Name(), Message: err.Error(), Code: tool.CodeValidation, Details: err}
	}

	command, _ := args["command"].(string)
	raw, _ := args["path"].(string)
	name := e.ws.clean(raw)

	if err := e.validatePath(command, name); err != nil {
		return nil, err
	}

	tc.Logger().Debug("tool.editor.command", "command", command, "path", name)

	switch command {
	case "view":
		return e.handleView(name, args["view_range"])
	case "create":
		text, ok := args["file_text"].(string)
		if !ok {
			return nil, errors.New("parameter file_text is required for command: create")
		}
		if err := e.write(name, text); err != nil {
			return nil, err
		}
		e.push(name, "")
		return fmt.Sprintf("File created successfully at: %s", raw), nil
	case "str_replace":
		oldStr, ok := args["old_str"].(string)
		if !ok {
			return nil, errors.New("parameter old_str is required for command: str_replace")
		}
		newStr, _ := args["new_str"].(string)
		return e.handleReplace(name, raw, oldStr, newStr)
	case "insert":
		line, okLine := args["insert_line"].(float64)
		newStr, okStr := args["new_str"].(string)
		if !okLine || !okStr {
			return nil, errors.New("parameters insert_line and new_str are required for command: insert")
		}
		return e.handleInsert(name, raw, int(line), newStr)
	case "undo_edit":
		return e.handleUndo(name, raw)
	default:
		return nil, fmt.Errorf("unrecognized command %s", command)
	}
}

func (e *Editor) validatePath(command, name string) error {
	info, err := e.ws.fs.Stat(name)
	exists := err == nil
	if !exists && command != "create" {
		return fmt.Errorf("the path %s does not exist", name)
	}
	if exists && command == "create" {
		return fmt.Errorf("file already exists at: %s; cannot overwrite files using command create", name)
	}
	if exists && info.IsDir() && command != "view" {
		return fmt.Errorf("the path %s is a directory and only the view command can be used on directories", name)
	}
	return nil
}

func (e *Editor) handleView(name string, viewRange any) (any, error) {
	info, err := e.ws.fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		if viewRange != nil {
			return nil, errors.New("the view_range parameter is not allowed when path points to a directory")
		}
		return e.listDir(name)
	}

	content, err := readFile(e.ws.fs, name)
	if err != nil {
		return nil, err
	}

	start := 1
	if viewRange != nil {
		bounds, ok := viewRange.([]any)
		if !ok || len(bounds) != 2 {
			return nil, errors.New("invalid view_range: it should be a list of two integers")
		}
		from, okFrom := bounds[0].(float64)
		to, okTo := bounds[1].(float64)
		if !okFrom || !okTo {
			return nil, errors.New("invalid view_range: it should be a list of two integers")
		}
		lines := strings.Split(content, "\n")
		s, end := int(from), int(to)
		if s < 1 || s > len(lines) {
			return nil, fmt.Errorf("invalid view_range: first element %d should be within [1, %d]", s, len(lines))
		}
		if end != -1 && (end < s || end > len(lines)) {
			return nil, fmt.Errorf("invalid view_range: second element %d should be -1 or within [%d, %d]", end, s, len(lines))
		}
		if end == -1 {
			end = len(lines)
		}
		content = strings.Join(lines[s-1:end], "\n")
		start = s
	}

	return makeOutput(content, name, start), nil
}

func (e *Editor) listDir(root string) (any, error) {
	var entries []string
	err := afero.Walk(e.ws.fs, root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
		if rel == "" {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		depth := strings.Count(rel, "/") + 1
		if depth > 2 {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			rel += "/"
		}
		entries = append(entries, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)
	return fmt.Sprintf("Files and directories up to 2 levels deep in %s, excluding hidden items:\n%s", root, strings.Join(entries, "\n")), nil
}

func (e *Editor) handleReplace(name, display, oldStr, newStr string) (any, error) {
	content, err := readFile(e.ws.fs, name)
	if err != nil {
		return nil, err
	}

	switch n := strings.Count(content, oldStr); {
	case oldStr == "" || n == 0:
		return nil, fmt.Errorf("no replacement was performed, old_str %q did not appear verbatim in %s", oldStr, display)
	case n > 1:
		var lines []string
		for i, l := range strings.Split(content, "\n") {
			if strings.Contains(l, oldStr) {
				lines = append(lines, fmt.Sprint(i+1))
			}
		}
		return nil, fmt.Errorf("no replacement was performed, multiple occurrences of old_str %q in lines [%s], please ensure it is unique", oldStr, strings.Join(lines, ", "))
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := e.write(name, updated); err != nil {
		return nil, err
	}
	e.push(name, content)

	replaceLine := strings.Count(strings.SplitN(content, oldStr, 2)[0], "\n")
	from := max(0, replaceLine-snippetLines)
	to := replaceLine + snippetLines + strings.Count(newStr, "\n")
	lines := strings.Split(updated, "\n")
	to = min(to+1, len(lines))
	snippet := strings.Join(lines[from:to], "\n")

	return makeOutput(snippet, "a snippet of "+display, from+1) +
		"Review the changes and make sure they are as expected. Edit the file again if necessary.", nil
}

func (e *Editor) handleInsert(name, display string, line int, newStr string) (any, error) {
	content, err := readFile(e.ws.fs, name)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(content, "\n")
	if line < 0 || line > len(lines) {
		return nil, fmt.Errorf("invalid insert_line %d: it should be within [0, %d]", line, len(lines))
	}

	inserted := strings.Split(newStr, "\n")
	updatedLines := make([]string, 0, len(lines)+len(inserted))
	updatedLines = append(updatedLines, lines[:line]...)
	updatedLines = append(updatedLines, inserted...)
	updatedLines = append(updatedLines, lines[line:]...)

	if err := e.write(name, strings.Join(updatedLines, "\n")); err != nil {
		return nil, err
	}
	e.push(name, content)

	from := max(0, line-snippetLines)
	to := min(line+len(inserted)+snippetLines, len(updatedLines))
	snippet := strings.Join(updatedLines[from:to], "\n")

	return makeOutput(snippet, "a snippet of the edited file", from+1) +
		"Review the changes and make sure they are as expected (correct indentation, no duplicate lines). Edit the file again if necessary.", nil
}

func (e *Editor) handleUndo(name, display string) (any, error) {
	e.mu.Lock()
	stack := e.history[name]
	if len(stack) == 0 {
		e.mu.Unlock()
		return nil, fmt.Errorf("no edit history found for %s", display)
	}
	previous := stack[len(stack)-1]
	e.history[name] = stack[:len(stack)-1]
	e.mu.Unlock()

	if err := e.write(name, previous); err != nil {
		return nil, err
	}
	return fmt.Sprintf("Last edit to %s undone successfully.", display), nil
}

func (e *Editor) push(name, previous string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history[name] = append(e.history[name], previous)
}

func (e *Editor) write(name, content string) error {
	if dir := path.Dir(name); dir != "/" {
		if err := e.ws.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ran into %v while trying to write to %s", err, name)
		}
	}
	if err := afero.WriteFile(e.ws.fs, name, []byte(content), 0o644); err != nil {
		return fmt.Errorf("ran into %v while trying to write to %s", err, name)
	}
	return nil
}

func makeOutput(content, descriptor string, initLine int) string {
	if len(content) > maxResponseLen {
		content = content[:maxResponseLen] + truncatedMessage
	}
	lines := strings.Split(content, "\n")
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the result of running `cat -n` on %s:\n", descriptor)
	for i, l := range lines {
		fmt.Fprintf(&b, "%6d\t%s\n", i+initLine, l)
	}
	return b.String()
}
