package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives one published Event.
type Handler func(*Event)

// Subscription identifies a registered handler so a consumer can
// unsubscribe when it disconnects.
type Subscription struct {
	eventType EventType
	id        uint64
}

// Bus is the event-sink interface accepted by the orchestrator (spec §9:
// "model as a small event-sink interface"). The default implementation
// logs every event through zerolog; tests inject a recording sink to
// assert event sequences.
type Bus struct {
	subscribers map[EventType]map[uint64]Handler
	nextID      uint64
	mu          sync.RWMutex
	log         zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[EventType]map[uint64]Handler),
		log:         log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[uint64]Handler)
	}
	b.subscribers[eventType][id] = handler

	return Subscription{eventType: eventType, id: id}
}

// Unsubscribe removes a previously registered handler. Safe to call
// multiple times.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if handlers, ok := b.subscribers[sub.eventType]; ok {
		delete(handlers, sub.id)
		if len(handlers) == 0 {
			delete(b.subscribers, sub.eventType)
		}
	}
}

// Emit publishes data to all subscribers of its EventType and logs it at
// debug level. Handlers run synchronously in submission order so recording
// sinks in tests observe events in the order they were emitted; the
// orchestrator's own call sites are not on a hot concurrent path that
// would need async fan-out.
func (b *Bus) Emit(data EventData) {
	event := &Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}

	b.mu.RLock()
	var handlers []Handler
	if registered := b.subscribers[event.Type]; len(registered) > 0 {
		handlers = make([]Handler, 0, len(registered))
		for _, handler := range registered {
			handlers = append(handlers, handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Msg("event emitted")
}
