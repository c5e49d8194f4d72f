package agent

import "sync"

// DrainMode controls how much of a MessageQueue a single drain removes.
type DrainMode string

const (
	// DrainAll empties the whole queue in one drain, FIFO order.
	DrainAll DrainMode = "all"
	// DrainOneAtATime removes only the head element per drain. Default.
	DrainOneAtATime DrainMode = "one-at-a-time"
)

// MessageQueue is a mutex-guarded FIFO of pending text injections. Push may
// be called from any goroutine; the owning loop is the only drainer.
type MessageQueue struct {
	mu    sync.Mutex
	items []string
	mode  DrainMode
}

// NewMessageQueue creates a queue with the given drain mode. An empty mode
// falls back to one-at-a-time.
func NewMessageQueue(mode DrainMode) *MessageQueue {
	if mode == "" {
		mode = DrainOneAtATime
	}
	return &MessageQueue{mode: mode}
}

// Push appends text to the queue.
func (q *MessageQueue) Push(text string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, text)
}

// Drain removes entries per the configured mode and returns them as user
// messages in FIFO order. Returns nil when the queue is empty.
func (q *MessageQueue) Drain() []AgentMessage {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	var taken []string
	if q.mode == DrainAll {
		taken = q.items
		q.items = nil
	} else {
		taken = q.items[:1]
		q.items = q.items[1:]
	}

	messages := make([]AgentMessage, 0, len(taken))
	for _, text := range taken {
		messages = append(messages, NewUserMessage(text))
	}
	return messages
}

// Len reports the number of queued entries.
func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear discards all queued entries.
func (q *MessageQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}
