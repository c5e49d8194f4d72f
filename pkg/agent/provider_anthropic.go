package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

const defaultAnthropicMaxTokens = 4096

// Thinking budgets by level, in tokens.
var anthropicThinkingBudgets = map[string]int64{
	"low":    1024,
	"medium": 4096,
	"high":   16384,
}

// AnthropicProvider streams responses from the Anthropic API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates an Anthropic provider.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Stream starts a streaming message request and adapts SDK events to
// engine chunks.
func (p *AnthropicProvider) Stream(ctx context.Context, req StreamRequest) (ChunkStream, error) {
	params, err := buildAnthropicParams(req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Messages.NewStreaming(ctx, params)
	return &anthropicStream{stream: stream}, nil
}

func buildAnthropicParams(req StreamRequest) (anthropic.MessageNewParams, error) {
	messages := []anthropic.MessageParam{}
	system := []anthropic.TextBlockParam{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})

		case RoleTool:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))

		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				blocks := []anthropic.ContentBlockParamUnion{}
				if msg.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Params, tc.Name))
				}
				messages = append(messages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			} else {
				messages = append(messages, anthropic.MessageParam{
					Role: anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{
						anthropic.NewTextBlock(msg.Content),
					},
				})
			}

		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}

	if budget, ok := anthropicThinkingBudgets[req.ThinkingLevel]; ok {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	if len(req.Tools) > 0 {
		tools := []anthropic.ToolUnionParam{}
		for _, schema := range req.Tools {
			toolParam := anthropic.ToolParam{
				Name:        schema.Name,
				Description: anthropic.String(schema.Description),
			}
			if schema.Parameters != nil {
				toolParam.InputSchema = anthropic.ToolInputSchemaParam{
					Properties: schema.Parameters["properties"],
				}
				if required, ok := schema.Parameters["required"].([]string); ok {
					toolParam.InputSchema.Required = required
				}
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	return params, nil
}

// anthropicStream translates SDK stream events into engine chunks,
// accumulating the message so tool calls can be extracted once complete.
type anthropicStream struct {
	stream     *ssestream.Stream[anthropic.MessageStreamEventUnion]
	message    anthropic.Message
	inThinking bool
	buffered   []StreamChunk
	current    StreamChunk
	err        error
	finished   bool
}

func (s *anthropicStream) Next() bool {
	if s.err != nil || s.finished {
		return false
	}

	// Chunks queued by a previous SDK event (tool calls, done) drain
	// first.
	if len(s.buffered) > 0 {
		s.current = s.buffered[0]
		s.buffered = s.buffered[1:]
		if s.current.Type == ChunkDone {
			s.finished = true
		}
		return true
	}

	for s.stream.Next() {
		event := s.stream.Current()
		if err := s.message.Accumulate(event); err != nil {
			s.err = fmt.Errorf("failed to accumulate message: %w", err)
			return false
		}

		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "thinking" {
				s.inThinking = true
				s.current = StreamChunk{Type: ChunkThinkingStart}
				return true
			}

		case anthropic.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				s.current = StreamChunk{Type: ChunkTextDelta, Text: delta.Text}
				return true
			case anthropic.ThinkingDelta:
				s.current = StreamChunk{Type: ChunkThinkingDelta, Text: delta.Thinking}
				return true
			}

		case anthropic.ContentBlockStopEvent:
			if s.inThinking {
				s.inThinking = false
				s.current = StreamChunk{Type: ChunkThinkingEnd}
				return true
			}

		case anthropic.MessageStopEvent:
			toolCalls, err := extractAnthropicToolCalls(s.message.Content)
			if err != nil {
				s.err = err
				return false
			}
			if len(toolCalls) > 0 {
				s.buffered = append(s.buffered, StreamChunk{Type: ChunkToolCall, ToolCalls: toolCalls})
			}
			s.buffered = append(s.buffered, StreamChunk{Type: ChunkDone})
			return s.Next()
		}
	}

	if err := s.stream.Err(); err != nil {
		s.err = NewRetryableProviderError(Classify(err), err)
		if !IsRetryable(err) {
			s.err = NewFatalProviderError(Classify(err), err)
		}
	}
	return false
}

func (s *anthropicStream) Current() StreamChunk {
	return s.current
}

func (s *anthropicStream) Err() error {
	return s.err
}

func extractAnthropicToolCalls(blocks []anthropic.ContentBlockUnion) ([]ToolCall, error) {
	var calls []ToolCall
	for _, block := range blocks {
		if tu, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			var params map[string]interface{}
			if raw := tu.JSON.Input.Raw(); raw != "" {
				if err := json.Unmarshal([]byte(raw), &params); err != nil {
					return nil, fmt.Errorf("failed to parse tool input: %w", err)
				}
			}
			calls = append(calls, ToolCall{ID: tu.ID, Name: tu.Name, Params: params})
		}
	}
	return calls, nil
}
