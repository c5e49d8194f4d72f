package agent

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/reina/internal/observability"
	"github.com/harun/reina/internal/tracing"
)

const (
	defaultMaxRetries = 3
	defaultBackoffCap = 30 * time.Second
)

// FallbackChain is an ordered list of models tried when the current
// model's errors qualify for failover. Advancing never sleeps and never
// consumes a retry slot.
type FallbackChain struct {
	models []string
	idx    int
}

// NewFallbackChain builds a chain from the primary model and its
// fallbacks, in priority order.
func NewFallbackChain(primary string, fallbacks ...string) *FallbackChain {
	models := append([]string{primary}, fallbacks...)
	return &FallbackChain{models: models}
}

// Current returns the model at the cursor.
func (c *FallbackChain) Current() string {
	return c.models[c.idx]
}

// Advance moves to the next model. Returns false when the chain is
// exhausted.
func (c *FallbackChain) Advance() (string, bool) {
	if c.idx+1 >= len(c.models) {
		return "", false
	}
	c.idx++
	return c.models[c.idx], true
}

// RuntimeConfig holds the retry/failover constants.
type RuntimeConfig struct {
	MaxRetries     int
	BackoffCap     time.Duration
	FallbackModels []string
}

// Runtime wraps one run of the loop with exponential backoff and a
// prioritized fallback chain. Nothing escapes it: all terminal states are
// communicated via events, and the conversation up to the failure point is
// preserved.
type Runtime struct {
	loop   *Loop
	bus    *Bus
	logger zerolog.Logger
	cfg    RuntimeConfig
}

// NewRuntime wraps a loop.
func NewRuntime(loop *Loop, cfg RuntimeConfig, logger zerolog.Logger) *Runtime {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	return &Runtime{loop: loop, bus: loop.bus, logger: logger, cfg: cfg}
}

// Loop exposes the wrapped loop for steering, follow-ups, and abort.
func (r *Runtime) Loop() *Loop {
	return r.loop
}

// Steer forwards to the wrapped loop.
func (r *Runtime) Steer(text string) { r.loop.Steer(text) }

// FollowUp forwards to the wrapped loop.
func (r *Runtime) FollowUp(text string) { r.loop.FollowUp(text) }

// Abort forwards to the wrapped loop.
func (r *Runtime) Abort() { r.loop.Abort() }

// Run seeds the loop with the given prompts and drives it to a terminal
// state. The returned messages are the conversation as appended so far,
// never rolled back; the reason mirrors the terminal AgentEnd event.
func (r *Runtime) Run(ctx context.Context, prompts []string, systemPrompt string) ([]AgentMessage, EndReason) {
	r.loop.Seed(prompts, systemPrompt)
	return r.drive(ctx)
}

// Continue drives the loop over its existing state, e.g. after Resume.
func (r *Runtime) Continue(ctx context.Context) ([]AgentMessage, EndReason) {
	return r.drive(ctx)
}

func (r *Runtime) drive(ctx context.Context) ([]AgentMessage, EndReason) {
	chain := NewFallbackChain(r.loop.state.Model, r.cfg.FallbackModels...)

	ctx = tracing.NewRequestContext(ctx)
	ctx, span := tracing.StartSpan(
		ctx,
		"reina.agent",
		"agent.run",
		attribute.String("model", chain.Current()),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	r.bus.Emit(AgentStartEvent{Model: chain.Current()})

	retryCount := 0
	start := time.Now()

	for {
		model := chain.Current()
		r.loop.SetModel(model)

		err := r.loop.Run(ctx)
		if err == nil {
			reason := EndReasonCompleted
			if r.loop.Aborted() {
				reason = EndReasonAborted
			}
			observability.RecordAgentRun(model, time.Since(start), true)
			r.bus.Emit(AgentEndEvent{Reason: reason})
			return r.loop.Messages(), reason
		}

		category := Classify(err)
		logger.Warn().Err(err).Str("model", model).Str("category", string(category)).Msg("Agent attempt failed")

		if category == CategoryAborted {
			observability.RecordAgentRun(model, time.Since(start), false)
			r.bus.Emit(AgentEndEvent{Reason: EndReasonAborted})
			return r.loop.Messages(), EndReasonAborted
		}

		// Failover advances the chain immediately, without sleeping or
		// consuming a retry slot.
		if ShouldFailover(err) {
			if next, ok := chain.Advance(); ok {
				logger.Info().Str("from", model).Str("to", next).Msg("Failing over to fallback model")
				observability.RecordFailover(next)
				r.bus.Emit(FailoverEvent{From: model, To: next, Reason: string(category), Error: FormatError(err)})
				continue
			}
		}

		if !IsRetryable(err) || retryCount >= r.cfg.MaxRetries {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.RecordAgentRun(model, time.Since(start), false)
			message := FormatError(err)
			if retryCount >= r.cfg.MaxRetries && IsRetryable(err) {
				message = "max retries exceeded: " + message
			}
			logger.Error().Err(err).Msg("Agent run reached terminal error")
			r.bus.Emit(ErrorEvent{Message: message, Category: category})
			r.bus.Emit(AgentEndEvent{Reason: EndReasonError})
			return r.loop.Messages(), EndReasonError
		}

		retryCount++
		delay := backoffDelay(retryCount, r.cfg.BackoffCap)
		observability.RecordRetry(string(category))
		logger.Warn().
			Int("attempt", retryCount).
			Int("max_retries", r.cfg.MaxRetries).
			Dur("delay", delay).
			Msg("Retrying after provider error")
		r.bus.Emit(RetryEvent{
			Attempt:    retryCount,
			MaxRetries: r.cfg.MaxRetries,
			Delay:      delay.Seconds(),
			Error:      FormatError(err),
		})

		select {
		case <-ctx.Done():
			r.bus.Emit(AgentEndEvent{Reason: EndReasonAborted})
			return r.loop.Messages(), EndReasonAborted
		case <-r.loop.state.Abort.Done():
			r.bus.Emit(AgentEndEvent{Reason: EndReasonAborted})
			return r.loop.Messages(), EndReasonAborted
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes min(2^(attempt-1), cap) seconds.
func backoffDelay(attempt int, cap time.Duration) time.Duration {
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	delay := time.Duration(1<<uint(shift)) * time.Second
	if delay > cap {
		delay = cap
	}
	return delay
}
