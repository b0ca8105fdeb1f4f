package core

import "strings"

// Role identifies the author of a Message.
type Role string

const (
	// RoleSystem marks instructions and corrective notices.
	RoleSystem Role = "system"
	// RoleUser marks the request and any follow-up input.
	RoleUser Role = "user"
	// RoleAssistant marks model output, optionally carrying tool calls.
	RoleAssistant Role = "assistant"
	// RoleTool marks the observation produced for a single tool call.
	RoleTool Role = "tool"
)

// ToolCall is a single action requested by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // raw JSON object
}

// Media is an attachment carried alongside a message (e.g. a screenshot
// returned by a tool). Either Data (base64) or URI is set.
type Media struct {
	MimeType string `json:"mime_type,omitempty"`
	Data     string `json:"data,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// Message is one entry of the conversation log.
//
// ToolCalls is only populated for assistant messages, ToolCallID and Name only
// for tool messages. Messages are treated as immutable once appended; use Clone
// before handing one out.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Media      []Media    `json:"media,omitempty"`
}

// SystemMessage creates a system message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Content: text} }

// UserMessage creates a user message with optional media.
func UserMessage(text string, media ...Media) Message {
	return Message{Role: RoleUser, Content: text, Media: media}
}

// AssistantMessage creates an assistant message with optional tool calls.
func AssistantMessage(text string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// ToolMessage creates the observation message answering the call with callID.
func ToolMessage(text, callID, name string, media ...Media) Message {
	return Message{Role: RoleTool, Content: text, ToolCallID: callID, Name: name, Media: media}
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		copy(out.ToolCalls, m.ToolCalls)
	}
	if m.Media != nil {
		out.Media = make([]Media, len(m.Media))
		copy(out.Media, m.Media)
	}
	return out
}

// Text returns the trimmed content.
func (m Message) Text() string { return strings.TrimSpace(m.Content) }
