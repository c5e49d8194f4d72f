package agent

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/harun/reina/internal/observability"
)

// Options configures a Loop.
type Options struct {
	SteeringMode  DrainMode
	FollowUpMode  DrainMode
	ThinkingLevel string
	MaxTokens     int

	// TransformContext runs before provider conversion. Default identity.
	TransformContext TransformContextFunc
	// ConvertToLLM overrides the default conversion. Must stay pure.
	ConvertToLLM ConvertFunc

	// OnMessage is invoked for every message the loop appends, in append
	// order. Session collaborators use it to persist history; the engine
	// only appends, never deletes or reorders.
	OnMessage func(AgentMessage)
}

// Loop is the double-loop state machine driving one session. A single
// goroutine runs it to completion; Steer, FollowUp, and Abort are the only
// entry points safe from other goroutines.
type Loop struct {
	provider Provider
	tools    *Registry
	bus      *Bus
	opts     Options
	state    *State
	logger   zerolog.Logger
}

// NewLoop creates a loop bound to a provider, tool registry, and event
// bus.
func NewLoop(provider Provider, tools *Registry, bus *Bus, logger zerolog.Logger, model string, opts Options) *Loop {
	if tools == nil {
		tools = NewRegistry()
	}
	if bus == nil {
		bus = NewBus(logger)
	}
	state := NewState(model, opts.SteeringMode, opts.FollowUpMode)
	state.ThinkingLevel = opts.ThinkingLevel
	return &Loop{
		provider: provider,
		tools:    tools,
		bus:      bus,
		opts:     opts,
		state:    state,
		logger:   logger,
	}
}

// Steer queues a high-priority message that interrupts the current turn
// sequence. Safe from any goroutine.
func (l *Loop) Steer(text string) {
	l.state.Steering.Push(text)
	observability.SetQueueDepth("steering", l.state.Steering.Len())
}

// FollowUp queues a message that extends the conversation once the loop
// would otherwise stop. Safe from any goroutine.
func (l *Loop) FollowUp(text string) {
	l.state.FollowUps.Push(text)
	observability.SetQueueDepth("followup", l.state.FollowUps.Len())
}

// Abort trips the cancellation token. Cooperative: an in-flight stream or
// tool finishes before the loop observes it. Terminal and idempotent.
func (l *Loop) Abort() {
	l.state.Abort.Abort()
}

// Aborted reports whether the abort token has been tripped.
func (l *Loop) Aborted() bool {
	return l.state.Abort.Aborted()
}

// Messages returns the conversation so far.
func (l *Loop) Messages() []AgentMessage {
	return l.state.Messages
}

// State exposes the execution state for observability and tests. Callers
// must not mutate anything but the queues and abort token.
func (l *Loop) State() *State {
	return l.state
}

// SetModel switches the model used for subsequent provider calls. Owned by
// the retry/failover wrapper between attempts.
func (l *Loop) SetModel(model string) {
	l.state.Model = model
}

// Seed resets the conversation for a new prompt sequence. Queues and the
// abort token survive so messages steered while idle are picked up at loop
// start.
func (l *Loop) Seed(prompts []string, systemPrompt string) {
	l.state.Messages = nil
	l.state.TurnNumber = 0
	l.state.IsStreaming = false
	l.state.PendingToolCalls = nil

	if systemPrompt != "" {
		l.appendMessage(NewSystemMessage(systemPrompt))
	}
	for _, prompt := range prompts {
		l.appendMessage(NewUserMessage(prompt))
	}
}

// Resume replaces the conversation with existing history, e.g. from a
// session store.
func (l *Loop) Resume(history []AgentMessage) {
	l.state.Messages = append([]AgentMessage(nil), history...)
	l.state.TurnNumber = 0
	l.state.IsStreaming = false
	l.state.PendingToolCalls = nil
}

// Run drives the double loop to exhaustion over the already-seeded state.
// Provider errors escape to the caller (the retry/failover wrapper); abort
// returns nil after the current suspension point completes.
func (l *Loop) Run(ctx context.Context) error {
	firstTurn := true
	// The user may have steered while nothing was running; those messages
	// seed the first provider call.
	pending := l.drainSteering()

	// Outer loop: continues when queued follow-ups arrive after the agent
	// would otherwise stop.
	for {
		if l.state.Abort.Aborted() {
			l.logger.Info().Msg("Agent loop aborted")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		hasToolCalls := true

		// Inner loop: unresolved tool calls or pending injected messages.
		for hasToolCalls || len(pending) > 0 {
			if !firstTurn {
				l.state.TurnNumber++
				observability.RecordTurn()
				l.bus.Emit(TurnStartEvent{TurnNumber: l.state.TurnNumber})
			} else {
				firstTurn = false
			}

			// Steering and follow-ups land here, immediately before the
			// next assistant call, never mid-stream.
			if len(pending) > 0 {
				for _, msg := range pending {
					l.appendMessage(msg)
				}
				l.logger.Debug().Int("count", len(pending)).Msg("Injected pending messages")
				pending = nil
			}

			assistant, toolCalls, err := l.streamResponse(ctx)
			if err != nil {
				return err
			}
			l.appendMessage(assistant)

			hasToolCalls = len(toolCalls) > 0
			var steeringAfterTools []AgentMessage

			if hasToolCalls {
				l.state.PendingToolCalls = toolCalls
				results, steering := l.executeToolCalls(ctx, toolCalls)
				for _, result := range results {
					l.appendMessage(result)
				}
				l.state.PendingToolCalls = nil
				steeringAfterTools = steering
			}

			l.bus.Emit(TurnEndEvent{TurnNumber: l.state.TurnNumber, HasToolCalls: hasToolCalls})

			// Steering captured mid-batch takes priority over a fresh
			// turn-boundary drain; the queue is drained at most once per
			// iteration.
			if len(steeringAfterTools) > 0 {
				pending = steeringAfterTools
			} else {
				pending = l.drainSteering()
			}
		}

		// The agent would stop here; follow-ups extend the conversation.
		followUps := l.drainFollowUps()
		if len(followUps) > 0 {
			pending = followUps
			continue
		}
		return nil
	}
}

func (l *Loop) appendMessage(msg AgentMessage) {
	l.state.Messages = append(l.state.Messages, msg)
	if l.opts.OnMessage != nil {
		l.opts.OnMessage(msg)
	}
}

func (l *Loop) drainSteering() []AgentMessage {
	messages := l.state.Steering.Drain()
	observability.SetQueueDepth("steering", l.state.Steering.Len())
	return messages
}

func (l *Loop) drainFollowUps() []AgentMessage {
	messages := l.state.FollowUps.Drain()
	observability.SetQueueDepth("followup", l.state.FollowUps.Len())
	return messages
}
