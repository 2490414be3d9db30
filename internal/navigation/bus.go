package navigation

import (
	"log/slog"
	"sync"

	"github.com/couchcryptid/safe-route-service/internal/domain"
)

// Bus fans navigation events out to any number of subscribers. Publish never
// blocks: a subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]chan domain.NavigationEvent
	nextID uint64
	logger *slog.Logger
}

// NewBus creates an empty Bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]chan domain.NavigationEvent),
		logger: logger,
	}
}

// Subscribe registers a listener with the given buffer size. The returned
// function unsubscribes and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan domain.NavigationEvent, func()) {
	ch := make(chan domain.NavigationEvent, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (b *Bus) Publish(ev domain.NavigationEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("navigation event dropped, subscriber buffer full",
				"subscriber", id,
				"kind", ev.Kind,
			)
		}
	}
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
