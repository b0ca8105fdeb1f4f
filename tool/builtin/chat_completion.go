package builtin

import (
	"github.com/hupe1980/agentflow/core"
	"github.com/hupe1980/agentflow/tool"
)

// NewCreateChatCompletion returns a tool through which the model delivers a
// structured final response. With no fields the schema has a single string
// "response" property and the call returns it verbatim; otherwise the
// named string fields are returned as a JSON object.
func NewCreateChatCompletion(fields ...string) tool.Tool {
	if len(fields) == 0 {
		fields = []string{"response"}
	}

	props := make(map[string]any, len(fields))
	for _, f := range fields {
		props[f] = map[string]any{
			"type":        "string",
			"description": "The " + f + " that should be delivered to the user.",
		}
	}

	return tool.NewFunctionTool(
		"create_chat_completion",
		"Creates a structured completion with specified output formatting.",
		map[string]any{
			"type":       "object",
			"properties": props,
			"required":   fields,
		},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			if len(fields) == 1 {
				s, _ := args[fields[0]].(string)
				return s, nil
			}
			out := make(map[string]any, len(fields))
			for _, f := range fields {
				out[f] = args[f]
			}
			return out, nil
		},
	)
}
