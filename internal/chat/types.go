// Package chat defines the conversation data model shared by the
// orchestrator, the model providers, and the transport layer.
package chat

// Role values for Message.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// ToolCall is a single structured tool invocation recovered from model
// output. At most one per model turn; immutable once parsed.
type ToolCall struct {
	Name       string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
}

// ToolResult is the outcome of executing one ToolCall. Data is
// tool-specific and opaque to the orchestrator.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Message is one turn of the conversation. The sequence is owned by the
// caller; the orchestrator receives and returns it but never persists it.
type Message struct {
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Reasoning   string       `json:"reasoning,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	Streaming   bool         `json:"streaming,omitempty"`
}

// EventType tags a StreamEvent.
type EventType string

const (
	EventStart    EventType = "start"
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is one element of the ordered event sequence a run emits:
// exactly one Start, zero or more Chunk, then exactly one Complete or
// Error.
type StreamEvent struct {
	Type EventType

	// Start
	Model string

	// Chunk: per-fragment deltas plus cumulative text for the current
	// model invocation.
	ContentDelta   string
	ReasoningDelta string
	Content        string
	Reasoning      string

	// Complete
	FinalContent   string
	FinalReasoning string
	ToolCalls      []ToolCall

	// Error
	Err string
}
