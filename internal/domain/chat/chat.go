// Package chat defines the conversation and streaming-event types shared by
// the agentic loop, the completion transport, and the SSE boundary.
package chat

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the running conversation buffer.
type Message struct {
	Role    Role
	Content string
	// ToolCalls is set on assistant messages that requested tool execution.
	ToolCalls []ToolCall
	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string
}

// ToolCall is a fully reassembled function invocation request.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON, treated as untrusted input
}

// ToolCallDelta is one streamed fragment of a tool call. Name and Arguments
// may arrive split across chunks and are keyed by Index for reassembly.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// FinishReason signals why a completion stream ended.
type FinishReason string

const (
	FinishNone      FinishReason = ""
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
)

// Delta is one streamed chunk of a completion.
type Delta struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason FinishReason
}

// Tool describes a function the model may call. Parameters is a JSON Schema
// object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// EventType enumerates the events pushed to the chat transport.
type EventType string

const (
	EventToken  EventType = "token"
	EventStatus EventType = "status"
	EventDone   EventType = "done"
	EventError  EventType = "error"
)

// Event is one typed item of the server-push stream for a chat turn.
type Event struct {
	Type    EventType
	Content string
}
