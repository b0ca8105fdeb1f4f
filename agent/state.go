package agent

// State is the lifecycle state of an Agent.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateFinished State = "FINISHED"
	StateError    State = "ERROR"
)

// FinishReason explains why a loop reached FINISHED.
type FinishReason string

const (
	FinishTerminated FinishReason = "terminated" // a terminal tool was called
	FinishCompleted  FinishReason = "completed"  // the model answered without tool calls
	FinishMaxSteps   FinishReason = "max_steps"
	FinishStuck      FinishReason = "stuck"
	FinishCancelled  FinishReason = "cancelled"
)

// Result is a snapshot of a loop's outcome.
type Result struct {
	State        State        `json:"state"`
	Steps        int          `json:"steps"`
	Output       string       `json:"output"`
	Notice       string       `json:"notice,omitempty"`
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	// Failed is set when the run ended on an unrecovered tool error or the
	// terminal tool reported failure.
	Failed bool  `json:"failed,omitempty"`
	Nudges int   `json:"nudges,omitempty"`
	Err    error `json:"-"`
}

// Text renders the output followed by the notice, if any.
func (r Result) Text() string {
	switch {
	case r.Notice == "":
		return r.Output
	case r.Output == "":
		return r.Notice
	default:
		return r.Output + "\n\n" + r.Notice
	}
}
