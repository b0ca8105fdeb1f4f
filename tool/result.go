package tool

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hupe1980/agentflow/core"
)

// Result is the outcome of one tool call. Exactly one Result is produced
// per dispatched call, in call order.
type Result struct {
	CallID   string        `json:"call_id"`
	Tool     string        `json:"tool"`
	Output   string        `json:"output"`
	Media    []core.Media  `json:"media,omitempty"`
	IsError  bool          `json:"is_error,omitempty"`
	Terminal bool          `json:"terminal,omitempty"`
	// Failed is set by a terminal tool reporting an unsuccessful outcome.
	Failed   bool          `json:"failed,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`

	// Err carries the structured failure when IsError is set.
	Err *ToolError `json:"-"`
}

// Message renders the result as the tool-role observation answering its call.
func (r Result) Message() core.Message {
	return core.ToolMessage(r.Observation(), r.CallID, r.Tool, r.Media...)
}

// Observation is the text the model sees for this result.
func (r Result) Observation() string {
	switch {
	case r.IsError:
		return "Error: " + r.Output
	case r.Output == "":
		return fmt.Sprintf("Tool `%s` completed with no output.", r.Tool)
	default:
		return fmt.Sprintf("Observed output of tool `%s`:\n%s", r.Tool, r.Output)
	}
}

// Fail builds an error result for the given call.
func Fail(call core.ToolCall, err *ToolError) Result {
	return Result{
		CallID:  call.ID,
		Tool:    call.Name,
		Output:  err.Message,
		IsError: true,
		Err:     err,
	}
}

// Terminate marks output as the final observation of the run. Tools return
// it to stop the agent loop after the current batch.
func Terminate(output string) Result {
	return Result{Output: output, Terminal: true}
}

// TerminateFailed is Terminate for a run that ends without success.
func TerminateFailed(output string) Result {
	return Result{Output: output, Terminal: true, Failed: true}
}

// fromValue converts a tool return value into a Result. A tool may return a
// Result directly to control the error and terminal flags or attach media.
func fromValue(v any) Result {
	switch val := v.(type) {
	case nil:
		return Result{}
	case Result:
		return val
	case *Result:
		if val == nil {
			return Result{}
		}
		return *val
	case string:
		return Result{Output: val}
	case []byte:
		return Result{Output: string(val)}
	case core.Media:
		return Result{Media: []core.Media{val}}
	case fmt.Stringer:
		return Result{Output: val.String()}
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return Result{Output: fmt.Sprintf("%v", val)}
		}
		return Result{Output: string(raw)}
	}
}
