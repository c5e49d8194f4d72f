package agent

import "context"

// ProviderMessage is the provider-native message shape produced by the
// conversion pipeline. Custom messages never reach this type.
type ProviderMessage struct {
	Role       Role                   `json:"role"`
	Content    string                 `json:"content"`
	Images     []string               `json:"images,omitempty"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Name       string                 `json:"name,omitempty"`
}

// TransformContextFunc operates on AgentMessage slices before provider
// conversion. It may prune, inject, or summarize, and it sees custom
// messages. It must not return provider-native types.
type TransformContextFunc func(ctx context.Context, messages []AgentMessage) ([]AgentMessage, error)

// ConvertFunc maps transformed agent messages to provider-native ones.
// Implementations must be pure and side-effect free.
type ConvertFunc func(messages []AgentMessage) []ProviderMessage

// ConvertToLLM is the default ConvertFunc. It drops every message with
// Custom set and otherwise maps fields one to one, preserving order.
func ConvertToLLM(messages []AgentMessage) []ProviderMessage {
	out := make([]ProviderMessage, 0, len(messages))
	for _, msg := range messages {
		if msg.Custom {
			continue
		}
		out = append(out, ProviderMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			Images:     msg.Images,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
			Name:       msg.Name,
		})
	}
	return out
}

// buildProviderMessages runs the two-stage pipeline: transform first (so it
// can see and act on custom messages), conversion second. The order is a
// contract; filtering before transform is a bug.
func buildProviderMessages(ctx context.Context, messages []AgentMessage, transform TransformContextFunc, convert ConvertFunc) ([]ProviderMessage, error) {
	transformed := messages
	if transform != nil {
		var err error
		transformed, err = transform(ctx, messages)
		if err != nil {
			return nil, err
		}
	}
	if convert == nil {
		convert = ConvertToLLM
	}
	return convert(transformed), nil
}
