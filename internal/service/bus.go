package service

import (
	"sync"

	"go.uber.org/zap"
)

// EventBus fans resource change events out to subscribers. Delivery never
// blocks the publisher: a subscriber whose buffer is full misses the event.
type EventBus struct {
	mu   sync.RWMutex
	subs map[chan Event]map[string]bool
	log  *zap.Logger
}

// NewEventBus creates an event bus.
func NewEventBus(log *zap.Logger) *EventBus {
	if log == nil {
		log = zap.NewNop()
	}
	return &EventBus{subs: make(map[chan Event]map[string]bool), log: log}
}

// Publish delivers e to every subscriber interested in e.Resource.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, resources := range b.subs {
		if len(resources) > 0 && !resources[e.Resource] {
			continue
		}
		select {
		case ch <- e:
		default:
			b.log.Warn("dropped event for slow subscriber",
				zap.String("resource", e.Resource), zap.String("id", e.ID))
		}
	}
}

// Subscribe returns a buffered channel receiving events for the given
// resources, or for all resources when none are named.
func (b *EventBus) Subscribe(resources ...string) chan Event {
	ch := make(chan Event, 16)
	filter := make(map[string]bool, len(resources))
	for _, r := range resources {
		filter[r] = true
	}
	b.mu.Lock()
	b.subs[ch] = filter
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
