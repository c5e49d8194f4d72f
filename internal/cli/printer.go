package cli

import (
	"fmt"
	"io"

	"github.com/harun/reina/pkg/agent"
)

// newConsoleObserver renders engine events as a terminal transcript.
// Text deltas stream as they arrive; tool and lifecycle events print as
// single status lines.
func newConsoleObserver(out io.Writer) agent.Observer {
	streaming := false
	endLine := func() {
		if streaming {
			fmt.Fprintln(out)
			streaming = false
		}
	}

	return func(event agent.Event) {
		switch e := event.(type) {
		case agent.TextDeltaEvent:
			fmt.Fprint(out, e.Delta)
			streaming = true
		case agent.ThinkingStartEvent:
			endLine()
			fmt.Fprintln(out, "[thinking...]")
		case agent.MessageEndEvent:
			endLine()
		case agent.ToolExecutionStartEvent:
			endLine()
			fmt.Fprintf(out, "[tool] %s\n", e.ToolName)
		case agent.ToolExecutionUpdateEvent:
			if e.Message != "" {
				fmt.Fprintf(out, "[tool] %s: %s\n", e.ToolName, e.Message)
			}
		case agent.ToolExecutionEndEvent:
			if !e.Success {
				fmt.Fprintf(out, "[tool] %s failed: %s\n", e.ToolName, e.Error)
			}
		case agent.RetryEvent:
			endLine()
			fmt.Fprintf(out, "[retry %d/%d] waiting %.0fs: %s\n", e.Attempt, e.MaxRetries, e.Delay, e.Error)
		case agent.FailoverEvent:
			endLine()
			fmt.Fprintf(out, "[failover] %s -> %s (%s)\n", e.From, e.To, e.Reason)
		case agent.ErrorEvent:
			endLine()
			fmt.Fprintf(out, "[error] %s\n", e.Message)
		case agent.AgentEndEvent:
			endLine()
		}
	}
}
