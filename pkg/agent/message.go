package agent

import (
	"fmt"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID     string                 `json:"id"`
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// ToolResult is the outcome of exactly one tool call. A failed execution
// still produces a result; Error carries the human-readable cause.
type ToolResult struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolUpdate reports fractional progress from a long-running tool.
type ToolUpdate struct {
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
}

// AgentMessage is the conversation's unit of record. It is richer than what
// providers accept: Custom messages exist only for internal bookkeeping and
// are dropped at conversion time, Metadata is opaque to the engine.
type AgentMessage struct {
	Role       Role                   `json:"role"`
	Content    string                 `json:"content"`
	Images     []string               `json:"images,omitempty"`
	Thinking   string                 `json:"thinking,omitempty"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Name       string                 `json:"name,omitempty"`
	Custom     bool                   `json:"custom,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewUserMessage builds a plain user message.
func NewUserMessage(text string) AgentMessage {
	return AgentMessage{Role: RoleUser, Content: text}
}

// NewSystemMessage builds a system message.
func NewSystemMessage(text string) AgentMessage {
	return AgentMessage{Role: RoleSystem, Content: text}
}

// NewToolMessage builds the tool result message for a call. The message is
// appended even when the result failed so the model sees the error.
func NewToolMessage(call ToolCall, result ToolResult) AgentMessage {
	content := result.Content
	if !result.Success {
		content = fmt.Sprintf("Error: %s", result.Error)
	}
	return AgentMessage{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}

// NewCallID returns a fresh tool call id for providers that omit one.
func NewCallID() string {
	return uuid.New().String()
}

// ValidateSequence checks the tool-call correlation invariant: every tool
// message must reference a tool_calls entry of a preceding assistant
// message, and no two tool messages may share a call id.
func ValidateSequence(messages []AgentMessage) error {
	declared := make(map[string]bool)
	answered := make(map[string]bool)

	for i, msg := range messages {
		switch msg.Role {
		case RoleAssistant:
			for _, tc := range msg.ToolCalls {
				declared[tc.ID] = true
			}
		case RoleTool:
			if msg.ToolCallID == "" {
				return fmt.Errorf("message %d: tool message without tool_call_id", i)
			}
			if !declared[msg.ToolCallID] {
				return fmt.Errorf("message %d: tool_call_id %q does not reference a preceding assistant tool call", i, msg.ToolCallID)
			}
			if answered[msg.ToolCallID] {
				return fmt.Errorf("message %d: duplicate tool result for call %q", i, msg.ToolCallID)
			}
			answered[msg.ToolCallID] = true
		}
	}

	return nil
}
