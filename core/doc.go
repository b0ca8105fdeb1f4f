// Package core provides the foundational domain types shared by every other
// package in agentflow:
//
//   - Message / ToolCall / Media: the conversation record kept in memory
//   - ToolContext: the scoped surface handed to each tool invocation
//   - CallBudget: a model call limit shared by the loops of one flow run
//   - the fault taxonomy (ModelBoundaryError, InvalidStateError,
//     PlanInconsistencyError and the contained fault kinds)
//
// The package has no dependencies on model providers, tools or flows so it can
// be imported from anywhere without introducing cycles.
package core
