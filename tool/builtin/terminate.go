package builtin

import (
	"fmt"

	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/tool"
)

// TerminateName is the default terminal tool name.
const TerminateName = "terminate"

const terminateDescription = `Terminate the interaction when the request is met OR if the assistant cannot proceed further with the task.
When you have finished all the tasks, call this tool to end the work.`

// NewTerminate returns the terminate tool. Calling it ends the agent loop
// after the current batch; status "failure" marks the outcome as failed.
func NewTerminate() tool.Tool {
	return tool.NewFunctionTool(
		TerminateName,
		terminateDescription,
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status": map[string]any{
					"type":        "string",
					"description": "The finish status of the interaction.",
					"enum":        []string{"success", "failure"},
				},
			},
			"required": []string{"status"},
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			status, _ := args["status"].(string)
			msg := fmt.Sprintf("The interaction has been completed with status: %s", status)
			if status == "failure" {
				return tool.TerminateFailed(msg), nil
			}
			return tool.Terminate(msg), nil
		},
	)
}
