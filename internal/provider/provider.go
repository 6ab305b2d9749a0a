package provider

import "context"

// Message roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a single conversational turn. Tool-result messages carry the
// originating call in ToolCalls with Result set, which keeps the correlation
// id next to its output.
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall
}

// ToolCall mirrors the shape of a tool invocation produced by the assistant.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
	Result    string
}

// ToolDef describes a tool offered to the backend for native tool calling.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ReplyKind discriminates the two response shapes a backend can produce.
type ReplyKind string

const (
	ReplyText      ReplyKind = "text"
	ReplyToolCalls ReplyKind = "tool_calls"
)

// ChatReply is the tagged result of one backend turn. Kind is ReplyToolCalls
// exactly when Calls is non-empty.
type ChatReply struct {
	Kind       ReplyKind
	Content    string
	Calls      []ToolCall
	StopReason string
}

// Provider abstracts a chat-completion backend. Chat submits the full message
// history plus the offered tool definitions and returns a single reply; it may
// fail with a transport error.
type Provider interface {
	Name() string
	Chat(ctx context.Context, msgs []Message, tools []ToolDef) (*ChatReply, error)
}

func replyKind(calls []ToolCall) ReplyKind {
	if len(calls) > 0 {
		return ReplyToolCalls
	}
	return ReplyText
}
