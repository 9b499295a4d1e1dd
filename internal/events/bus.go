// Package events carries the in-process pub/sub bus used to fan status
// changes out to the control plane's websocket hub without coupling
// publishers to it.
package events

import "sync"

// Event is a single notification carried on the bus. Payload is
// pre-serialized to JSON by the publisher so subscribers (in particular
// the websocket hub) never need to know the concrete producer type.
type Event struct {
	Topic   string
	Payload []byte
}

// Subscription is a bounded, per-subscriber channel of events matching
// the topics it registered for.
type Subscription struct {
	C      <-chan Event
	bus    *Bus
	id      uint64
	topics []string
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus is a small fan-out publisher: each publish is delivered, in the
// order it was published, to every subscriber registered for that
// topic. Delivery to one subscriber never blocks on another — a slow
// or stalled subscriber only drops its own events once its buffer
// fills.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	ch     chan Event
	topics map[string]bool
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[uint64]*subscriber)}
}

// Subscribe registers interest in the given topics (empty means "all
// topics") and returns a subscription with a channel buffered to
// capacity. When the buffer fills, further events for that subscriber
// are dropped rather than blocking the publisher.
func (b *Bus) Subscribe(capacity int, topics ...string) *Subscription {
	if capacity <= 0 {
		capacity = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	topicSet := make(map[string]bool, len(topics))
	for _, t := range topics {
		topicSet[t] = true
	}
	sub := &subscriber{ch: make(chan Event, capacity), topics: topicSet}
	b.subs[id] = sub

	return &Subscription{C: sub.ch, bus: b, id: id, topics: topics}
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[s.id]; ok {
		close(sub.ch)
		delete(b.subs, s.id)
	}
}

// Publish delivers ev to every subscriber whose topic set is empty (all
// topics) or contains ev.Topic.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if len(sub.topics) > 0 && !sub.topics[ev.Topic] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
