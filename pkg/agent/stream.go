package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// streamResponse runs one provider call: conversion pipeline, chunk
// consumption, event emission. Tool calls are collected but not executed;
// execution is a separate phase so all calls in a batch are known before
// any side effects begin. Provider errors escape to the retry/failover
// wrapper.
func (l *Loop) streamResponse(ctx context.Context) (AgentMessage, []ToolCall, error) {
	providerMessages, err := buildProviderMessages(ctx, l.state.Messages, l.opts.TransformContext, l.opts.ConvertToLLM)
	if err != nil {
		return AgentMessage{}, nil, err
	}

	messageID := uuid.New().String()
	l.bus.Emit(MessageStartEvent{Role: RoleAssistant, MessageID: messageID})

	l.state.IsStreaming = true
	defer func() { l.state.IsStreaming = false }()

	stream, err := l.provider.Stream(ctx, StreamRequest{
		Model:         l.state.Model,
		Messages:      providerMessages,
		Tools:         l.tools.Schemas(),
		ThinkingLevel: l.state.ThinkingLevel,
		MaxTokens:     l.opts.MaxTokens,
	})
	if err != nil {
		return AgentMessage{}, nil, err
	}

	var content strings.Builder
	var thinking strings.Builder
	var toolCalls []ToolCall

consume:
	for stream.Next() {
		chunk := stream.Current()
		switch chunk.Type {
		case ChunkThinkingStart:
			l.bus.Emit(ThinkingStartEvent{})

		case ChunkThinkingDelta:
			thinking.WriteString(chunk.Text)
			l.bus.Emit(ThinkingDeltaEvent{Delta: chunk.Text})

		case ChunkThinkingEnd:
			l.bus.Emit(ThinkingEndEvent{Thinking: thinking.String()})

		case ChunkTextDelta:
			content.WriteString(chunk.Text)
			l.bus.Emit(TextDeltaEvent{Delta: chunk.Text})
			l.bus.Emit(MessageUpdateEvent{Role: RoleAssistant, Content: content.String()})

		case ChunkToolCall:
			for _, tc := range chunk.ToolCalls {
				if tc.ID == "" {
					tc.ID = NewCallID()
				}
				l.bus.Emit(ToolCallStartEvent{ToolCallID: tc.ID, ToolName: tc.Name})
				l.bus.Emit(ToolCallEndEvent{ToolCallID: tc.ID, ToolName: tc.Name, Params: tc.Params})
				toolCalls = append(toolCalls, tc)
			}

		case ChunkError:
			chunkErr := chunk.Err
			if chunkErr == nil {
				chunkErr = errors.New("provider reported an error chunk")
			}
			return AgentMessage{}, nil, chunkErr

		case ChunkDone:
			break consume
		}
	}
	if err := stream.Err(); err != nil {
		return AgentMessage{}, nil, err
	}

	assistant := AgentMessage{
		Role:    RoleAssistant,
		Content: content.String(),
	}
	if thinking.Len() > 0 {
		assistant.Thinking = thinking.String()
	}
	if len(toolCalls) > 0 {
		assistant.ToolCalls = toolCalls
	}

	l.bus.Emit(MessageEndEvent{Role: RoleAssistant, Content: assistant.Content, MessageID: messageID})

	return assistant, toolCalls, nil
}
