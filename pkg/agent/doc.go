// Package agent implements the conversational execution engine: a
// double-loop state machine that interleaves streamed model output, tool
// execution, and externally injected steering/follow-up messages, wrapped
// by a retry/failover layer.
//
// One Loop instance owns its State exclusively while running. Steer,
// FollowUp, and Abort are the only operations safe to call from other
// goroutines. All progress is reported through a Bus of typed events in
// strict emission order.
package agent
