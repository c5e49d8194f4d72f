package agent

import "sync"

// AbortToken is a terminal, idempotent cancellation flag shared by
// reference between the loop and external callers. Once tripped it never
// resets; tripping it twice or after completion is a no-op.
type AbortToken struct {
	once sync.Once
	done chan struct{}
}

// NewAbortToken creates an untripped token.
func NewAbortToken() *AbortToken {
	return &AbortToken{done: make(chan struct{})}
}

// Abort trips the token. Safe to call from any goroutine, any number of
// times.
func (t *AbortToken) Abort() {
	t.once.Do(func() { close(t.done) })
}

// Aborted reports whether the token has been tripped.
func (t *AbortToken) Aborted() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done exposes the trip signal for select-based waits.
func (t *AbortToken) Done() <-chan struct{} {
	return t.done
}

// State is the single mutable execution context of one loop run. It is
// owned exclusively by the loop goroutine; only the two queues and the
// abort token may be touched from outside.
type State struct {
	Messages      []AgentMessage
	Model         string
	ThinkingLevel string

	Steering  *MessageQueue
	FollowUps *MessageQueue

	TurnNumber       int
	IsStreaming      bool
	PendingToolCalls []ToolCall

	Abort *AbortToken
}

// NewState creates a fresh state with the given drain modes.
func NewState(model string, steeringMode, followUpMode DrainMode) *State {
	return &State{
		Model:     model,
		Steering:  NewMessageQueue(steeringMode),
		FollowUps: NewMessageQueue(followUpMode),
		Abort:     NewAbortToken(),
	}
}
