package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIProvider streams chat completions from the OpenAI API.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates an OpenAI provider.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Stream starts a streaming chat completion and adapts SDK chunks to
// engine chunks.
func (p *OpenAIProvider) Stream(ctx context.Context, req StreamRequest) (ChunkStream, error) {
	params, err := buildOpenAIParams(req)
	if err != nil {
		return nil, err
	}
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	return &openaiStream{stream: stream}, nil
}

func buildOpenAIParams(req StreamRequest) (openai.ChatCompletionNewParams, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))

		case RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))

		case RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, tc := range msg.ToolCalls {
					paramsJSON, err := json.Marshal(tc.Params)
					if err != nil {
						return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to marshal tool params: %w", err)
					}
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: string(paramsJSON),
						},
					})
				}
				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}

		case RoleTool:
			messages = append(messages, openai.ToolMessage(msg.ToolCallID, msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, schema := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        schema.Name,
					Description: openai.String(schema.Description),
					Parameters:  openai.FunctionParameters(schema.Parameters),
				},
			})
		}
		params.Tools = tools
	}

	return params, nil
}

// openaiStream translates SDK chunks into engine chunks. Tool call deltas
// are accumulated by the SDK accumulator and yielded once the stream
// finishes.
type openaiStream struct {
	stream   *ssestream.Stream[openai.ChatCompletionChunk]
	acc      openai.ChatCompletionAccumulator
	buffered []StreamChunk
	current  StreamChunk
	err      error
	finished bool
}

func (s *openaiStream) Next() bool {
	if s.err != nil || s.finished {
		return false
	}

	if len(s.buffered) > 0 {
		s.current = s.buffered[0]
		s.buffered = s.buffered[1:]
		if s.current.Type == ChunkDone {
			s.finished = true
		}
		return true
	}

	for s.stream.Next() {
		chunk := s.stream.Current()
		s.acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				s.current = StreamChunk{Type: ChunkTextDelta, Text: delta.Content}
				return true
			}
		}
	}

	if err := s.stream.Err(); err != nil {
		category := Classify(err)
		if IsRetryable(err) {
			s.err = NewRetryableProviderError(category, err)
		} else {
			s.err = NewFatalProviderError(category, err)
		}
		return false
	}

	toolCalls, err := extractOpenAIToolCalls(s.acc)
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

func (s *openaiStream) Current() StreamChunk {
	return s.current
}

func (s *openaiStream) Err() error {
	return s.err
}

func extractOpenAIToolCalls(acc openai.ChatCompletionAccumulator) ([]ToolCall, error) {
	if len(acc.Choices) == 0 {
		return nil, nil
	}
	var calls []ToolCall
	for _, tc := range acc.Choices[0].Message.ToolCalls {
		var params map[string]interface{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
			}
		}
		calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Params: params})
	}
	return calls, nil
}
