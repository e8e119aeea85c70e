package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Handler receives published events. Handlers run synchronously on the
// publisher's goroutine and must not block.
type Handler func(event *Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus fans events out to subscribers by type
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscription
	now    func() time.Time
	log    zerolog.Logger
}

// NewBus creates an empty bus
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[EventType][]subscription),
		now:  time.Now,
		log:  log.With().Str("service", "event_bus").Logger(),
	}
}

// Subscribe registers handler for the given types (all types when none are
// given) and returns a function that removes the subscription
func (b *Bus) Subscribe(handler Handler, types ...EventType) func() {
	if len(types) == 0 {
		types = AllEventTypes
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, t := range types {
		b.subs[t] = append(b.subs[t], subscription{id: id, handler: handler})
	}
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id, types) })
	}
}

func (b *Bus) unsubscribe(id uint64, types []EventType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range types {
		subs := b.subs[t]
		kept := subs[:0]
		for _, s := range subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		b.subs[t] = kept
	}
}

// Emit publishes typed data for a backtest
func (b *Bus) Emit(backtestID string, data EventData) {
	event := &Event{
		Type:       data.EventType(),
		BacktestID: backtestID,
		Timestamp:  b.now(),
		Data:       data,
	}

	b.mu.RLock()
	subs := append([]subscription(nil), b.subs[event.Type]...)
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(event.Type)).
		Str("backtest_id", backtestID).
		Int("subscribers", len(subs)).
		Msg("Event emitted")

	for _, s := range subs {
		s.handler(event)
	}
}

// SubscriberCount returns the number of subscriptions for an event type
func (b *Bus) SubscriberCount(t EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[t])
}
