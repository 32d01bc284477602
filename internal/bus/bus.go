package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus. Subscriptions are
// filtered by kind prefix, and publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	prefix string
	ch     chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish delivers evt to every subscriber whose prefix matches evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.prefix) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber is saturated; drop rather than block the publisher.
			}
		}
	}
}

// Subscribe registers interest in events whose kind starts with prefix.
// bufSize sets the channel buffer. The returned function unsubscribes.
func (b *Bus) Subscribe(prefix string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{prefix: prefix, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
