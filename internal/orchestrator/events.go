package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/paperforge/orchestrator/pkg/types"
)

// eventBufferSize is the per-subscriber channel buffer. Publishing never
// blocks; a full subscriber drops events.
const eventBufferSize = 100

// EventBus fans typed orchestration events out to subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan types.Event
}

// NewEventBus creates an event bus with no subscribers.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make([]chan types.Event, 0)}
}

// Subscribe registers an observer. The channel is closed and removed when
// ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context) <-chan types.Event {
	ch := make(chan types.Event, eventBufferSize)

	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.removeSubscriber(ch)
		close(ch)
	}()

	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *EventBus) Publish(event types.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is full, skip.
		}
	}
}

func (b *EventBus) removeSubscriber(ch chan types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub == ch {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			break
		}
	}
}
