// Package model defines the provider-agnostic abstractions for talking to a
// language model from the think phase of an agent loop.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.ToolCall)
//   - Bounded retries with backoff for the model boundary (RetryPolicy)
//   - Deterministic test doubles (ScriptedModel, GenerateFunc)
//
// Providers (openai, anthropic) implement Model so agents and flows remain
// decoupled from vendor SDKs.
package model
