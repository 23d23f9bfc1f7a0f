package llms

import (
	"time"

	"github.com/jinzhu/copier"
)

// Role describes who a message is from.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single entry in a conversation history. Histories are
// append-only: callers add messages, they never rewrite earlier ones.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Name is the tool name when Role is RoleTool.
	Name string `json:"name,omitempty"`
	// ToolCallID links a RoleTool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// ToolCalls carries the raw calls requested by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// AudioRef optionally points at synthesized audio for Content.
	AudioRef string `json:"audio_ref,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a timestamped message.
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content, Timestamp: time.Now()}
}

// ToolCall is a tool invocation requested by the inference service. Arguments
// is the raw JSON payload as produced by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FinishReason is the probe call's finish indicator.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
)

// CompletionRequest describes one call to the inference service.
type CompletionRequest struct {
	Messages    []Message
	Tools       []Tool
	Temperature float32
	MaxTokens   int
}

// Completion is a non-streaming inference response.
type Completion struct {
	FinishReason FinishReason
	Message      Message
}

// SnapshotHistory deep-copies a conversation history so a retry attempt can
// operate on a stable view while later attempts append to the live one.
func SnapshotHistory(history []Message) []Message {
	if len(history) == 0 {
		return nil
	}

	snapshot := make([]Message, 0, len(history))
	copier.Copy(&snapshot, &history)
	return snapshot
}
