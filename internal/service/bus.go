package service

import "sync"

// Event reports the outcome of one overlay load.
type Event struct {
	Resource string // OverlayEarthquakes or OverlayPlates
	Action   string // "loaded" or "failed"
	ID       string // load ID shared by both overlays of one Load call
}

// EventBus fans overlay events out to subscribers. It remembers the
// latest event per resource and replays those to new subscribers, so a
// browser connecting after the loads finished still learns their outcome.
type EventBus struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	latest map[string]Event
	order  []string
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:   make(map[chan Event]struct{}),
		latest: make(map[string]Event),
	}
}

// Publish records e and sends it to every subscriber without blocking.
func (b *EventBus) Publish(e Event) {
	b.mu.Lock()
	if _, seen := b.latest[e.Resource]; !seen {
		b.order = append(b.order, e.Resource)
	}
	b.latest[e.Resource] = e

	// Recording and fan-out share one critical section so a concurrent
	// Subscribe sees e either in its replay or on its channel, never both.
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
	b.mu.Unlock()
}

// Subscribe returns a buffered channel primed with the latest event of
// every resource seen so far.
func (b *EventBus) Subscribe() chan Event {
	ch := make(chan Event, 16)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, res := range b.order {
		ch <- b.latest[res]
	}
	b.subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *EventBus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subs, ch)
	b.mu.Unlock()
	close(ch)
}
