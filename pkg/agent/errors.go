package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory classifies a failure for retry/failover decisions and for
// the terminal error event.
type ErrorCategory string

const (
	CategoryRateLimit   ErrorCategory = "rate_limit"
	CategoryNetwork     ErrorCategory = "network"
	CategoryTimeout     ErrorCategory = "timeout"
	CategoryOverloaded  ErrorCategory = "overloaded"
	CategoryAuth        ErrorCategory = "auth"
	CategoryValidation  ErrorCategory = "validation"
	CategoryAborted     ErrorCategory = "aborted"
	CategoryUnknown     ErrorCategory = "unknown"
)

// ErrAborted marks cooperative cancellation. It is not a failure.
var ErrAborted = errors.New("agent run aborted")

// ProviderError wraps a failure raised by a model provider with its
// classification. Retryable covers network, rate-limit, and timeout
// failures; everything else (auth, malformed request) is fatal.
type ProviderError struct {
	Category  ErrorCategory
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Category, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewRetryableProviderError wraps a transient provider failure.
func NewRetryableProviderError(category ErrorCategory, err error) *ProviderError {
	return &ProviderError{Category: category, Retryable: true, Err: err}
}

// NewFatalProviderError wraps a permanent provider failure.
func NewFatalProviderError(category ErrorCategory, err error) *ProviderError {
	return &ProviderError{Category: category, Retryable: false, Err: err}
}

// ToolExecutionError is raised by tools; the execution protocol always
// recovers it locally into a failed ToolResult, so it never escapes the
// engine.
type ToolExecutionError struct {
	ToolName string
	Err      error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.ToolName, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

// Classify maps an arbitrary error to its category. Wrapped ProviderErrors
// keep their classification; everything else is sniffed from the message
// the way providers surface HTTP failures.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	if errors.Is(err, ErrAborted) || errors.Is(err, context.Canceled) {
		return CategoryAborted
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit"):
		return CategoryRateLimit
	case strings.Contains(msg, "529") || strings.Contains(msg, "503") || strings.Contains(msg, "overloaded"):
		return CategoryOverloaded
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "econnreset") || strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "504"):
		return CategoryNetwork
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "api key") || strings.Contains(msg, "authentication"):
		return CategoryAuth
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid") || strings.Contains(msg, "malformed"):
		return CategoryValidation
	default:
		return CategoryUnknown
	}
}

// IsRetryable reports whether the error qualifies for a backoff retry on
// the same model.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	switch Classify(err) {
	case CategoryRateLimit, CategoryNetwork, CategoryTimeout, CategoryOverloaded:
		return true
	default:
		return false
	}
}

// ShouldFailover reports whether the error qualifies for advancing the
// fallback model chain: rate limits and provider unavailability do,
// ordinary network blips do not.
func ShouldFailover(err error) bool {
	switch Classify(err) {
	case CategoryRateLimit, CategoryOverloaded:
		return true
	default:
		return false
	}
}

// FormatError renders a human-readable message for the terminal error
// event.
func FormatError(err error) string {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Err.Error()
	}
	return err.Error()
}
