package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/reina/internal/observability"
	"github.com/harun/reina/internal/tracing"
)

// executeToolCalls runs a batch sequentially, in order; ordering matters
// for steering checks and for providers that require strict call→response
// pairing. After each call the steering queue is drained; a hit stops the
// batch and the remaining calls are never executed. The drained messages
// are returned so the inner loop injects them instead of draining again.
func (l *Loop) executeToolCalls(ctx context.Context, calls []ToolCall) ([]AgentMessage, []AgentMessage) {
	results := make([]AgentMessage, 0, len(calls))

	for i, call := range calls {
		result := l.executeOne(ctx, call)
		results = append(results, NewToolMessage(call, result))

		steering := l.drainSteering()
		if len(steering) > 0 {
			l.logger.Info().
				Str("tool", call.Name).
				Int("skipped", len(calls)-i-1).
				Msg("Steering detected, skipping remaining tool calls")
			return results, steering
		}
	}

	return results, nil
}

// executeOne runs a single call and always produces exactly one result; a
// failed tool never halts the turn.
func (l *Loop) executeOne(ctx context.Context, call ToolCall) ToolResult {
	ctx, span := tracing.StartSpan(ctx, "reina.agent", "agent.tool_execution")
	defer span.End()

	l.bus.Emit(ToolExecutionStartEvent{ToolCallID: call.ID, ToolName: call.Name, Params: call.Params})

	start := time.Now()
	var result ToolResult

	tool, ok := l.tools.Get(call.Name)
	switch {
	case !ok:
		result = ToolResult{Success: false, Error: fmt.Sprintf("tool not found: %s", call.Name)}
	default:
		if err := l.tools.ValidateParams(call.Name, call.Params); err != nil {
			result = ToolResult{Success: false, Error: err.Error()}
		} else {
			result = l.invokeTool(ctx, tool, call)
		}
	}

	observability.RecordToolExecution(call.Name, time.Since(start), result.Success)

	end := ToolExecutionEndEvent{ToolCallID: call.ID, ToolName: call.Name, Success: result.Success}
	if result.Success {
		end.Result = result.Content
	} else {
		end.Error = result.Error
	}
	l.bus.Emit(end)

	return result
}

// invokeTool calls Tool.Execute, translating progress callbacks into
// events and recovering errors and panics into failed results.
func (l *Loop) invokeTool(ctx context.Context, tool Tool, call ToolCall) (result ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Str("tool", call.Name).
				Interface("panic", r).
				Msg("Tool panicked")
			result = ToolResult{Success: false, Error: fmt.Sprintf("tool %s panicked: %v", call.Name, r)}
		}
	}()

	onUpdate := func(update ToolUpdate) {
		l.bus.Emit(ToolExecutionUpdateEvent{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Progress:   update.Progress,
			Message:    update.Message,
		})
	}

	res, err := tool.Execute(ctx, call, onUpdate)
	if err != nil {
		toolErr := &ToolExecutionError{ToolName: call.Name, Err: err}
		l.logger.Warn().Err(toolErr).Str("tool", call.Name).Msg("Tool execution failed")
		return ToolResult{Success: false, Error: err.Error()}
	}
	return res
}
