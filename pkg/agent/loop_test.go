package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider replays canned responses and records every request it
// receives.
type scriptedProvider struct {
	mu        sync.Mutex
	requests  []StreamRequest
	responses []scriptedResponse
}

type scriptedResponse struct {
	chunks []StreamChunk
	err    error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Stream(ctx context.Context, req StreamRequest) (ChunkStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return newSliceStream([]StreamChunk{{Type: ChunkDone}}), nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	if resp.err != nil {
		return nil, resp.err
	}
	return newSliceStream(resp.chunks), nil
}

func (p *scriptedProvider) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func (p *scriptedProvider) request(i int) StreamRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[i]
}

func textResponse(parts ...string) scriptedResponse {
	chunks := make([]StreamChunk, 0, len(parts)+1)
	for _, part := range parts {
		chunks = append(chunks, StreamChunk{Type: ChunkTextDelta, Text: part})
	}
	chunks = append(chunks, StreamChunk{Type: ChunkDone})
	return scriptedResponse{chunks: chunks}
}

func toolResponse(calls ...ToolCall) scriptedResponse {
	return scriptedResponse{chunks: []StreamChunk{
		{Type: ChunkToolCall, ToolCalls: calls},
		{Type: ChunkDone},
	}}
}

func errorResponse(err error) scriptedResponse {
	return scriptedResponse{err: err}
}

// eventCollector records emitted events for order assertions.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) observer() Observer {
	return func(e Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, e)
	}
}

func (c *eventCollector) types() []EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	types := make([]EventType, 0, len(c.events))
	for _, e := range c.events {
		types = append(types, e.Type())
	}
	return types
}

func (c *eventCollector) ofType(t EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, e := range c.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

func (c *eventCollector) count(t EventType) int {
	return len(c.ofType(t))
}

func newTestLoop(t *testing.T, provider Provider, opts Options) (*Loop, *eventCollector) {
	t.Helper()

	registry := NewRegistry()
	require.NoError(t, registry.Register(echoTool()))

	collector := &eventCollector{}
	bus := NewBus(zerolog.Nop())
	bus.Subscribe(collector.observer())

	loop := NewLoop(provider, registry, bus, zerolog.Nop(), "test-model", opts)
	return loop, collector
}

func TestLoop_Run_TextOnly(t *testing.T) {
	t.Run("should stream one response and stop", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("Hello", ", world"),
		}}
		loop, events := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"hi"}, "be nice")

		require.NoError(t, loop.Run(context.Background()))

		messages := loop.Messages()
		require.Len(t, messages, 3)
		assert.Equal(t, RoleSystem, messages[0].Role)
		assert.Equal(t, RoleUser, messages[1].Role)
		assert.Equal(t, RoleAssistant, messages[2].Role)
		assert.Equal(t, "Hello, world", messages[2].Content)

		assert.Equal(t, 1, provider.requestCount())
		assert.Equal(t, 1, events.count(EventMessageStart))
		assert.Equal(t, 2, events.count(EventTextDelta))
		assert.Equal(t, 1, events.count(EventMessageEnd))
		// The first iteration is turn zero and emits no turn_start
		assert.Equal(t, 0, events.count(EventTurnStart))
		assert.Equal(t, 1, events.count(EventTurnEnd))
	})

	t.Run("should capture thinking separately from content", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			{chunks: []StreamChunk{
				{Type: ChunkThinkingStart},
				{Type: ChunkThinkingDelta, Text: "pondering"},
				{Type: ChunkThinkingEnd},
				{Type: ChunkTextDelta, Text: "answer"},
				{Type: ChunkDone},
			}},
		}}
		loop, events := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"think hard"}, "")

		require.NoError(t, loop.Run(context.Background()))

		messages := loop.Messages()
		last := messages[len(messages)-1]
		assert.Equal(t, "answer", last.Content)
		assert.Equal(t, "pondering", last.Thinking)
		assert.Equal(t, 1, events.count(EventThinkingStart))
		assert.Equal(t, 1, events.count(EventThinkingEnd))
	})

	t.Run("should order message events around the deltas", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("hi"),
		}}
		loop, events := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"hello"}, "")

		require.NoError(t, loop.Run(context.Background()))

		assert.Equal(t, []EventType{
			EventMessageStart,
			EventTextDelta,
			EventMessageUpdate,
			EventMessageEnd,
			EventTurnEnd,
		}, events.types())
	})
}

func TestLoop_Run_ToolCalls(t *testing.T) {
	t.Run("should execute tool calls and feed results back", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "echo", Params: map[string]interface{}{"text": "ping"}}),
			textResponse("the tool said ping"),
		}}
		loop, events := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"use the tool"}, "")

		require.NoError(t, loop.Run(context.Background()))

		messages := loop.Messages()
		require.Len(t, messages, 4)
		assert.Equal(t, RoleAssistant, messages[1].Role)
		require.Len(t, messages[1].ToolCalls, 1)
		assert.Equal(t, RoleTool, messages[2].Role)
		assert.Equal(t, "ping", messages[2].Content)
		assert.Equal(t, "c1", messages[2].ToolCallID)
		assert.Equal(t, "the tool said ping", messages[3].Content)

		require.NoError(t, ValidateSequence(messages))

		// Second inner iteration is turn one
		starts := events.ofType(EventTurnStart)
		require.Len(t, starts, 1)
		assert.Equal(t, 1, starts[0].(TurnStartEvent).TurnNumber)
		assert.Equal(t, 1, events.count(EventToolExecutionStart))
		assert.Equal(t, 1, events.count(EventToolExecutionEnd))
	})

	t.Run("should run a batch sequentially in request order", func(t *testing.T) {
		var mu sync.Mutex
		var order []string

		registry := NewRegistry()
		require.NoError(t, registry.Register(&FuncTool{
			ToolName: "track",
			Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
				mu.Lock()
				order = append(order, call.ID)
				mu.Unlock()
				return ToolResult{Success: true, Content: "ok"}, nil
			},
		}))

		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(
				ToolCall{ID: "c1", Name: "track"},
				ToolCall{ID: "c2", Name: "track"},
				ToolCall{ID: "c3", Name: "track"},
			),
			textResponse("done"),
		}}

		bus := NewBus(zerolog.Nop())
		loop := NewLoop(provider, registry, bus, zerolog.Nop(), "test-model", Options{})
		loop.Seed([]string{"go"}, "")

		require.NoError(t, loop.Run(context.Background()))
		assert.Equal(t, []string{"c1", "c2", "c3"}, order)
		require.NoError(t, ValidateSequence(loop.Messages()))
	})

	t.Run("should produce a failed result for unknown tools", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "ghost"}),
			textResponse("recovered"),
		}}
		loop, events := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"go"}, "")

		require.NoError(t, loop.Run(context.Background()))

		messages := loop.Messages()
		assert.Contains(t, messages[2].Content, "tool not found: ghost")

		ends := events.ofType(EventToolExecutionEnd)
		require.Len(t, ends, 1)
		assert.False(t, ends[0].(ToolExecutionEndEvent).Success)
	})

	t.Run("should produce a failed result for invalid params", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "echo", Params: map[string]interface{}{"text": 42}}),
			textResponse("recovered"),
		}}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"go"}, "")

		require.NoError(t, loop.Run(context.Background()))
		assert.Contains(t, loop.Messages()[2].Content, "Error:")
	})

	t.Run("should recover a panicking tool into a failed result", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&FuncTool{
			ToolName: "bomb",
			Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
				panic("kaboom")
			},
		}))

		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "bomb"}),
			textResponse("still alive"),
		}}
		bus := NewBus(zerolog.Nop())
		loop := NewLoop(provider, registry, bus, zerolog.Nop(), "test-model", Options{})
		loop.Seed([]string{"go"}, "")

		require.NoError(t, loop.Run(context.Background()))

		messages := loop.Messages()
		assert.Contains(t, messages[2].Content, "panicked")
		assert.Equal(t, "still alive", messages[3].Content)
	})

	t.Run("should forward tool progress updates as events", func(t *testing.T) {
		registry := NewRegistry()
		require.NoError(t, registry.Register(&FuncTool{
			ToolName: "slow",
			Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
				onUpdate(ToolUpdate{Progress: 0.5, Message: "halfway"})
				return ToolResult{Success: true, Content: "done"}, nil
			},
		}))

		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "slow"}),
			textResponse("ok"),
		}}
		collector := &eventCollector{}
		bus := NewBus(zerolog.Nop())
		bus.Subscribe(collector.observer())
		loop := NewLoop(provider, registry, bus, zerolog.Nop(), "test-model", Options{})
		loop.Seed([]string{"go"}, "")

		require.NoError(t, loop.Run(context.Background()))

		updates := collector.ofType(EventToolExecutionUpdate)
		require.Len(t, updates, 1)
		assert.Equal(t, "halfway", updates[0].(ToolExecutionUpdateEvent).Message)
	})
}

func TestLoop_Steering(t *testing.T) {
	t.Run("should inject idle steering before the first call", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("noted"),
		}}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"original task"}, "")
		loop.Steer("also check the logs")

		require.NoError(t, loop.Run(context.Background()))

		first := provider.request(0)
		require.Len(t, first.Messages, 2)
		assert.Equal(t, "original task", first.Messages[0].Content)
		assert.Equal(t, "also check the logs", first.Messages[1].Content)
	})

	t.Run("should halt a tool batch when steering arrives", func(t *testing.T) {
		var loop *Loop
		var executed []string

		registry := NewRegistry()
		require.NoError(t, registry.Register(&FuncTool{
			ToolName: "work",
			Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
				executed = append(executed, call.ID)
				if call.ID == "c1" {
					loop.Steer("change of plans")
				}
				return ToolResult{Success: true, Content: "ok"}, nil
			},
		}))

		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(
				ToolCall{ID: "c1", Name: "work"},
				ToolCall{ID: "c2", Name: "work"},
				ToolCall{ID: "c3", Name: "work"},
			),
			textResponse("rerouted"),
		}}
		bus := NewBus(zerolog.Nop())
		loop = NewLoop(provider, registry, bus, zerolog.Nop(), "test-model", Options{})
		loop.Seed([]string{"big batch"}, "")

		require.NoError(t, loop.Run(context.Background()))

		// Only the first call ran; c2 and c3 were skipped
		assert.Equal(t, []string{"c1"}, executed)

		// The steering message lands immediately after the single result
		second := provider.request(1)
		contents := make([]string, 0, len(second.Messages))
		for _, m := range second.Messages {
			contents = append(contents, m.Content)
		}
		assert.Contains(t, contents, "change of plans")

		toolResults := 0
		steeringCopies := 0
		for _, m := range loop.Messages() {
			if m.Role == RoleTool {
				toolResults++
			}
			if m.Content == "change of plans" {
				steeringCopies++
			}
		}
		assert.Equal(t, 1, toolResults)
		// Drained once per iteration, injected exactly once
		assert.Equal(t, 1, steeringCopies)
	})

	t.Run("should drain steering at the turn boundary", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("first answer"),
			textResponse("second answer"),
		}}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"start"}, "")

		// Queue steering while the first response streams
		done := false
		loop.bus.Subscribe(func(e Event) {
			if e.Type() == EventMessageEnd && !done {
				done = true
				loop.Steer("follow the boundary")
			}
		})

		require.NoError(t, loop.Run(context.Background()))

		require.Equal(t, 2, provider.requestCount())
		second := provider.request(1)
		last := second.Messages[len(second.Messages)-1]
		assert.Equal(t, "follow the boundary", last.Content)
	})

	t.Run("should inject all queued steering at once in all mode", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("ack"),
		}}
		loop, _ := newTestLoop(t, provider, Options{SteeringMode: DrainAll})
		loop.Seed([]string{"task"}, "")
		loop.Steer("first note")
		loop.Steer("second note")

		require.NoError(t, loop.Run(context.Background()))

		first := provider.request(0)
		require.Len(t, first.Messages, 3)
		assert.Equal(t, "first note", first.Messages[1].Content)
		assert.Equal(t, "second note", first.Messages[2].Content)
	})

	t.Run("should inject queued steering one call at a time by default", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("ack one"),
			textResponse("ack two"),
		}}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"task"}, "")
		loop.Steer("first note")
		loop.Steer("second note")

		require.NoError(t, loop.Run(context.Background()))

		require.Equal(t, 2, provider.requestCount())
		first := provider.request(0)
		require.Len(t, first.Messages, 2)
		assert.Equal(t, "first note", first.Messages[1].Content)

		second := provider.request(1)
		assert.Equal(t, "second note", second.Messages[len(second.Messages)-1].Content)
	})
}

func TestLoop_FollowUps(t *testing.T) {
	t.Run("should extend the run when the agent would stop", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("first answer"),
			textResponse("second answer"),
		}}
		loop, events := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"start"}, "")
		loop.FollowUp("and then?")

		require.NoError(t, loop.Run(context.Background()))

		messages := loop.Messages()
		require.Len(t, messages, 4)
		assert.Equal(t, "first answer", messages[1].Content)
		assert.Equal(t, "and then?", messages[2].Content)
		assert.Equal(t, "second answer", messages[3].Content)

		starts := events.ofType(EventTurnStart)
		require.Len(t, starts, 1)
		assert.Equal(t, 1, starts[0].(TurnStartEvent).TurnNumber)
	})

	t.Run("should leave follow-ups queued while tool calls remain", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "echo", Params: map[string]interface{}{"text": "busy"}}),
			textResponse("finished the tools"),
			textResponse("now the follow-up"),
		}}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"start"}, "")
		loop.FollowUp("next topic")

		require.NoError(t, loop.Run(context.Background()))

		// The follow-up is injected only after the inner loop exhausted
		second := provider.request(1)
		for _, m := range second.Messages {
			assert.NotEqual(t, "next topic", m.Content, "follow-up must not preempt tool resolution")
		}
		third := provider.request(2)
		assert.Equal(t, "next topic", third.Messages[len(third.Messages)-1].Content)
	})
}

func TestLoop_Abort(t *testing.T) {
	t.Run("should return immediately when aborted before the run", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("never sent"),
		}}
		loop, events := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"start"}, "")
		loop.Abort()

		require.NoError(t, loop.Run(context.Background()))
		assert.Zero(t, provider.requestCount())
		assert.Zero(t, events.count(EventMessageStart))
	})

	t.Run("should finish the current turn before honoring abort", func(t *testing.T) {
		var loop *Loop

		registry := NewRegistry()
		require.NoError(t, registry.Register(&FuncTool{
			ToolName: "aborting",
			Fn: func(ctx context.Context, call ToolCall, onUpdate func(ToolUpdate)) (ToolResult, error) {
				loop.Abort()
				return ToolResult{Success: true, Content: "done before abort"}, nil
			},
		}))

		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "aborting"}),
			textResponse("wrap up"),
		}}
		bus := NewBus(zerolog.Nop())
		loop = NewLoop(provider, registry, bus, zerolog.Nop(), "test-model", Options{})
		loop.Seed([]string{"start"}, "")

		require.NoError(t, loop.Run(context.Background()))

		// The inner loop completes its pending tool resolution
		assert.Equal(t, 2, provider.requestCount())
		assert.True(t, loop.Aborted())
	})

	t.Run("should surface context cancellation", func(t *testing.T) {
		provider := &scriptedProvider{}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Seed([]string{"start"}, "")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := loop.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLoop_SeedAndResume(t *testing.T) {
	t.Run("should keep queues and abort token across seeds", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("ok"),
		}}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Steer("remember me")
		loop.Seed([]string{"fresh task"}, "")

		require.NoError(t, loop.Run(context.Background()))

		first := provider.request(0)
		require.Len(t, first.Messages, 2)
		assert.Equal(t, "remember me", first.Messages[1].Content)
	})

	t.Run("should continue from resumed history", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("picking up where we left off"),
		}}
		loop, _ := newTestLoop(t, provider, Options{})
		loop.Resume([]AgentMessage{
			NewSystemMessage("be thorough"),
			NewUserMessage("old question"),
			{Role: RoleAssistant, Content: "old answer"},
		})
		loop.FollowUp("new question")

		require.NoError(t, loop.Run(context.Background()))

		first := provider.request(0)
		require.Len(t, first.Messages, 4)
		assert.Equal(t, "old answer", first.Messages[2].Content)
		assert.Equal(t, "new question", first.Messages[3].Content)
	})
}

func TestLoop_OnMessage(t *testing.T) {
	t.Run("should observe every appended message in order", func(t *testing.T) {
		var appended []Role
		provider := &scriptedProvider{responses: []scriptedResponse{
			toolResponse(ToolCall{ID: "c1", Name: "echo", Params: map[string]interface{}{"text": "x"}}),
			textResponse("done"),
		}}
		loop, _ := newTestLoop(t, provider, Options{
			OnMessage: func(msg AgentMessage) {
				appended = append(appended, msg.Role)
			},
		})
		loop.Seed([]string{"go"}, "sys")

		require.NoError(t, loop.Run(context.Background()))

		assert.Equal(t, []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleAssistant}, appended)
	})
}

func TestLoop_TransformContext(t *testing.T) {
	t.Run("should apply the transform to every provider call", func(t *testing.T) {
		provider := &scriptedProvider{responses: []scriptedResponse{
			textResponse("ok"),
		}}
		loop, _ := newTestLoop(t, provider, Options{
			TransformContext: func(ctx context.Context, msgs []AgentMessage) ([]AgentMessage, error) {
				return append([]AgentMessage{NewSystemMessage("injected preamble")}, msgs...), nil
			},
		})
		loop.Seed([]string{"question"}, "")

		require.NoError(t, loop.Run(context.Background()))

		first := provider.request(0)
		require.Len(t, first.Messages, 2)
		assert.Equal(t, "injected preamble", first.Messages[0].Content)
	})
}
