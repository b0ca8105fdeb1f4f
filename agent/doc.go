// Package agent implements the agent loop: a single configurable state
// machine (IDLE, RUNNING, FINISHED, ERROR) that repeats a think phase and
// an act phase until the model stops requesting tools, a terminal tool is
// called, the step limit is reached or the loop is found to be stuck.
//
// Behavior that used to be expressed through agent subclasses is injected
// as a Strategy:
//   - ToolCallStrategy asks a model.Model for the next assistant message,
//     composing the request through a RequestProcessor pipeline.
//   - ThinkFunc adapts a plain function, which is handy in tests.
//
// Failures follow a strict policy. Tool and dispatch faults are contained
// as tool messages in Memory so the model can self-correct. Only model
// boundary exhaustion (ERROR, *core.ModelBoundaryError) and state misuse
// (*core.InvalidStateError) reach the caller.
package agent
