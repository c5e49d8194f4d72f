package agent

// EventType tags every engine event.
type EventType string

const (
	EventAgentStart          EventType = "agent_start"
	EventAgentEnd            EventType = "agent_end"
	EventTurnStart           EventType = "turn_start"
	EventTurnEnd             EventType = "turn_end"
	EventMessageStart        EventType = "message_start"
	EventMessageUpdate       EventType = "message_update"
	EventMessageEnd          EventType = "message_end"
	EventTextDelta           EventType = "text_delta"
	EventThinkingStart       EventType = "thinking_start"
	EventThinkingDelta       EventType = "thinking_delta"
	EventThinkingEnd         EventType = "thinking_end"
	EventToolCallStart       EventType = "tool_call_start"
	EventToolCallEnd         EventType = "tool_call_end"
	EventToolExecutionStart  EventType = "tool_execution_start"
	EventToolExecutionUpdate EventType = "tool_execution_update"
	EventToolExecutionEnd    EventType = "tool_execution_end"
	EventRetry               EventType = "retry"
	EventFailover            EventType = "failover"
	EventError               EventType = "error"
)

// EndReason reports why a run reached its terminal state.
type EndReason string

const (
	EndReasonCompleted EndReason = "completed"
	EndReasonAborted   EndReason = "aborted"
	EndReasonError     EndReason = "error"
)

// Event is the closed set of execution notifications. Each carries enough
// data to reconstruct the state transition without access to State.
type Event interface {
	Type() EventType
}

type AgentStartEvent struct {
	Model string
}

type AgentEndEvent struct {
	Reason EndReason
}

type TurnStartEvent struct {
	TurnNumber int
}

type TurnEndEvent struct {
	TurnNumber   int
	HasToolCalls bool
}

type MessageStartEvent struct {
	Role      Role
	MessageID string
}

// MessageUpdateEvent carries the full accumulated content so far.
type MessageUpdateEvent struct {
	Role    Role
	Content string
}

type MessageEndEvent struct {
	Role      Role
	Content   string
	MessageID string
}

type TextDeltaEvent struct {
	Delta string
}

type ThinkingStartEvent struct{}

type ThinkingDeltaEvent struct {
	Delta string
}

type ThinkingEndEvent struct {
	Thinking string
}

type ToolCallStartEvent struct {
	ToolCallID string
	ToolName   string
}

type ToolCallEndEvent struct {
	ToolCallID string
	ToolName   string
	Params     map[string]interface{}
}

type ToolExecutionStartEvent struct {
	ToolCallID string
	ToolName   string
	Params     map[string]interface{}
}

type ToolExecutionUpdateEvent struct {
	ToolCallID string
	ToolName   string
	Progress   float64
	Message    string
}

type ToolExecutionEndEvent struct {
	ToolCallID string
	ToolName   string
	Success    bool
	Result     string
	Error      string
}

type RetryEvent struct {
	Attempt    int
	MaxRetries int
	Delay      float64
	Error      string
}

type FailoverEvent struct {
	From   string
	To     string
	Reason string
	Error  string
}

// ErrorEvent is the single terminal error notification: a human-readable
// message plus the classified category.
type ErrorEvent struct {
	Message  string
	Category ErrorCategory
}

func (AgentStartEvent) Type() EventType          { return EventAgentStart }
func (AgentEndEvent) Type() EventType            { return EventAgentEnd }
func (TurnStartEvent) Type() EventType           { return EventTurnStart }
func (TurnEndEvent) Type() EventType             { return EventTurnEnd }
func (MessageStartEvent) Type() EventType        { return EventMessageStart }
func (MessageUpdateEvent) Type() EventType       { return EventMessageUpdate }
func (MessageEndEvent) Type() EventType          { return EventMessageEnd }
func (TextDeltaEvent) Type() EventType           { return EventTextDelta }
func (ThinkingStartEvent) Type() EventType       { return EventThinkingStart }
func (ThinkingDeltaEvent) Type() EventType       { return EventThinkingDelta }
func (ThinkingEndEvent) Type() EventType         { return EventThinkingEnd }
func (ToolCallStartEvent) Type() EventType       { return EventToolCallStart }
func (ToolCallEndEvent) Type() EventType         { return EventToolCallEnd }
func (ToolExecutionStartEvent) Type() EventType  { return EventToolExecutionStart }
func (ToolExecutionUpdateEvent) Type() EventType { return EventToolExecutionUpdate }
func (ToolExecutionEndEvent) Type() EventType    { return EventToolExecutionEnd }
func (RetryEvent) Type() EventType               { return EventRetry }
func (FailoverEvent) Type() EventType            { return EventFailover }
func (ErrorEvent) Type() EventType               { return EventError }
