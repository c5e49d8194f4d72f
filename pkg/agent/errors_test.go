package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"abort sentinel", ErrAborted, CategoryAborted},
		{"wrapped abort", fmt.Errorf("run failed: %w", ErrAborted), CategoryAborted},
		{"context canceled", context.Canceled, CategoryAborted},
		{"provider error keeps its category", NewRetryableProviderError(CategoryRateLimit, errors.New("429")), CategoryRateLimit},
		{"wrapped provider error", fmt.Errorf("attempt: %w", NewFatalProviderError(CategoryAuth, errors.New("bad key"))), CategoryAuth},
		{"http 429 sniffed", errors.New("request failed with status 429"), CategoryRateLimit},
		{"rate limit text", errors.New("rate limit exceeded"), CategoryRateLimit},
		{"http 529 sniffed", errors.New("status 529 returned"), CategoryOverloaded},
		{"overloaded text", errors.New("upstream overloaded"), CategoryOverloaded},
		{"timeout text", errors.New("request timed out"), CategoryTimeout},
		{"deadline exceeded", errors.New("context deadline exceeded"), CategoryTimeout},
		{"connection reset", errors.New("connection reset by peer"), CategoryNetwork},
		{"http 500", errors.New("server returned 500"), CategoryNetwork},
		{"unauthorized", errors.New("401 unauthorized"), CategoryAuth},
		{"bad request", errors.New("400 malformed body"), CategoryValidation},
		{"anything else", errors.New("mystery failure"), CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	t.Run("should trust an explicit provider flag", func(t *testing.T) {
		assert.True(t, IsRetryable(NewRetryableProviderError(CategoryNetwork, errors.New("blip"))))
		assert.False(t, IsRetryable(NewFatalProviderError(CategoryNetwork, errors.New("hard down"))))
	})

	t.Run("should retry transient categories", func(t *testing.T) {
		assert.True(t, IsRetryable(errors.New("rate limit exceeded")))
		assert.True(t, IsRetryable(errors.New("request timed out")))
		assert.True(t, IsRetryable(errors.New("connection refused")))
		assert.True(t, IsRetryable(errors.New("overloaded")))
	})

	t.Run("should not retry fatal categories", func(t *testing.T) {
		assert.False(t, IsRetryable(errors.New("401 unauthorized")))
		assert.False(t, IsRetryable(errors.New("400 invalid request")))
		assert.False(t, IsRetryable(ErrAborted))
		assert.False(t, IsRetryable(errors.New("mystery failure")))
	})
}

func TestShouldFailover(t *testing.T) {
	assert.True(t, ShouldFailover(errors.New("rate limit exceeded")))
	assert.True(t, ShouldFailover(errors.New("status 529 overloaded")))
	assert.False(t, ShouldFailover(errors.New("connection reset")))
	assert.False(t, ShouldFailover(errors.New("request timed out")))
	assert.False(t, ShouldFailover(errors.New("401 unauthorized")))
}

func TestFormatError(t *testing.T) {
	t.Run("should unwrap provider errors", func(t *testing.T) {
		err := NewRetryableProviderError(CategoryRateLimit, errors.New("too many requests"))
		assert.Equal(t, "too many requests", FormatError(err))
	})

	t.Run("should pass through plain errors", func(t *testing.T) {
		assert.Equal(t, "boom", FormatError(errors.New("boom")))
	})
}

func TestToolExecutionError(t *testing.T) {
	inner := errors.New("disk full")
	err := &ToolExecutionError{ToolName: "write_file", Err: inner}

	assert.Contains(t, err.Error(), "write_file")
	assert.True(t, errors.Is(err, inner))
}
