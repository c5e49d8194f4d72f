package agent

import "context"

// ChunkType tags a streamed provider chunk.
type ChunkType string

const (
	ChunkThinkingStart ChunkType = "thinking_start"
	ChunkThinkingDelta ChunkType = "thinking_delta"
	ChunkThinkingEnd   ChunkType = "thinking_end"
	ChunkTextDelta     ChunkType = "text_delta"
	ChunkToolCall      ChunkType = "tool_call"
	ChunkDone          ChunkType = "done"
	ChunkError         ChunkType = "error"
)

// StreamChunk is one element of a provider response stream.
type StreamChunk struct {
	Type      ChunkType
	Text      string
	ToolCalls []ToolCall
	Err       error
}

// ToolSchema describes one tool to the provider. Parameters is a JSON
// Schema object.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// StreamRequest carries one provider call.
type StreamRequest struct {
	Model         string
	Messages      []ProviderMessage
	Tools         []ToolSchema
	ThinkingLevel string
	MaxTokens     int
}

// ChunkStream is a lazy, finite, non-restartable sequence of chunks,
// pulled the way the provider SDKs expose their own streams. It must
// eventually yield a done or error chunk; cancellation happens through the
// context given to Provider.Stream.
type ChunkStream interface {
	// Next advances to the next chunk. It returns false when the stream is
	// exhausted or failed.
	Next() bool
	// Current returns the chunk at the cursor. Only valid after a true
	// Next.
	Current() StreamChunk
	// Err returns the terminal stream error, if any, once Next returned
	// false.
	Err() error
}

// Provider converts a message list plus tool schemas into a chunk stream.
// Timeout detection is the provider's responsibility and surfaces as a
// retryable error.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req StreamRequest) (ChunkStream, error)
}

// sliceStream adapts a fixed chunk slice to ChunkStream. Used by tests and
// by adapters that buffer before yielding.
type sliceStream struct {
	chunks []StreamChunk
	idx    int
	err    error
}

func newSliceStream(chunks []StreamChunk) *sliceStream {
	return &sliceStream{chunks: chunks, idx: -1}
}

func (s *sliceStream) Next() bool {
	if s.err != nil {
		return false
	}
	if s.idx+1 >= len(s.chunks) {
		return false
	}
	s.idx++
	return true
}

func (s *sliceStream) Current() StreamChunk {
	return s.chunks[s.idx]
}

func (s *sliceStream) Err() error {
	return s.err
}
