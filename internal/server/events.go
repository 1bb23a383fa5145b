package server

import (
	"context"
	"sync"
	"time"
)

const (
	// EventCardChange announces that card state changed (save, review, deck
	// cascade) so a rendering client can refresh its queue.
	EventCardChange = "card-change"
	// EventSyncComplete announces that a sync activation finished.
	EventSyncComplete = "sync-complete"
)

// Event is a lightweight refresh hint pushed to connected clients. It carries
// ids only, never record state.
type Event struct {
	Type      string    `json:"type"`
	IDs       []string  `json:"ids,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventDispatcher fans events out to the connected event streams. It is the
// only shared-mutable structure in the server and is guarded by its mutex.
type EventDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]chan Event
	nextID      int64
	bufferSize  int
}

// NewEventDispatcher constructs an empty dispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		subscribers: make(map[int64]chan Event),
		bufferSize:  16,
	}
}

// Subscribe registers a stream that is torn down when ctx ends. The returned
// cleanup is idempotent.
func (d *EventDispatcher) Subscribe(ctx context.Context) (<-chan Event, func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	stream := make(chan Event, d.bufferSize)
	d.subscribers[id] = stream
	d.mu.Unlock()

	cleanup := func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

// Publish delivers the event to every subscriber. Slow subscribers drop
// events rather than blocking the publisher.
func (d *EventDispatcher) Publish(event Event) {
	if event.Type == "" {
		return
	}
	d.mu.RLock()
	streams := make([]chan Event, 0, len(d.subscribers))
	for _, stream := range d.subscribers {
		streams = append(streams, stream)
	}
	d.mu.RUnlock()

	for _, stream := range streams {
		select {
		case stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of connected streams.
func (d *EventDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}
