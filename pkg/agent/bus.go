package agent

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/reina/internal/observability"
)

// Observer receives engine events. Observers run synchronously on the loop
// goroutine, so emission order matches state-transition order exactly.
type Observer func(Event)

// Bus broadcasts events to zero or more observers. Every observer sees
// every event exactly once, in emission order. A panicking observer is
// recovered and logged; it never interrupts delivery to other observers or
// the loop itself.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
	logger    zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{logger: logger}
}

// Subscribe registers an observer. Registration order is delivery order.
func (b *Bus) Subscribe(fn Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Emit delivers an event to all observers.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	observers := b.observers
	b.mu.RUnlock()

	observability.RecordEvent(string(event.Type()))

	for _, fn := range observers {
		b.deliver(fn, event)
	}
}

func (b *Bus) deliver(fn Observer, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("event", string(event.Type())).
				Interface("panic", r).
				Msg("Event observer panicked")
		}
	}()
	fn(event)
}
