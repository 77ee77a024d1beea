// Package bus provides the internal pub/sub bus the overlay shell uses to
// observe the orchestration engine.
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types emitted by the engine
const (
	// Trigger pipeline events
	EventTypeTriggerAdmitted   EventType = "trigger.admitted"
	EventTypeTriggerSuppressed EventType = "trigger.suppressed"

	// Speech session events
	EventTypeSpeechStarted   EventType = "speech.started"
	EventTypeSpeechCompleted EventType = "speech.completed"
	EventTypeSpeechCancelled EventType = "speech.cancelled"
	EventTypeSpeechFailed    EventType = "speech.failed"

	// Display session events
	EventTypeDisplayShown     EventType = "display.shown"
	EventTypeDisplayDismissed EventType = "display.dismissed"
	EventTypeDisplayHealed    EventType = "display.healed"

	// Event channel events
	EventTypeChannelState  EventType = "channel.state"
	EventTypeChannelStatus EventType = "channel.status_update"
	EventTypeChannelFailed EventType = "channel.failed"

	// Watcher events
	EventTypeIdleEntered EventType = "watcher.idle_entered"
	EventTypeIdleExited  EventType = "watcher.idle_exited"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish sends an event to all subscribed handlers
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	for _, handler := range handlers {
		// Call handlers in goroutines to avoid blocking the trigger loop
		go handler(event)
	}
}

// PublishSync sends an event and waits for all handlers to complete
func (b *EventBus) PublishSync(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type]))
	copy(handlers, b.handlers[event.Type])
	b.mu.RUnlock()

	var wg sync.WaitGroup
	for _, handler := range handlers {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			h(event)
		}(handler)
	}
	wg.Wait()
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
