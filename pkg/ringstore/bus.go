package ringstore

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codeready-toolchain/runtimescope/pkg/eventmodel"
)

// subscriberQueueSize bounds each subscriber's channel. A subscriber that
// cannot keep up has its event dropped rather than stalling the publisher
// (spec §5, §9: "Publish/subscribe without callbacks into user code from
// locked regions").
const subscriberQueueSize = 256

// Subscriber is a handle returned by Bus.Subscribe. Callers range over C to
// receive events and must eventually call Unsubscribe.
type Subscriber struct {
	id      uint64
	C       <-chan eventmodel.Event
	ch      chan eventmodel.Event
	dropped atomic.Int64
}

// Dropped returns the number of events skipped for this subscriber because
// its queue was full at publish time.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Bus is an event publish/subscribe fan-out with a non-blocking,
// drop-on-slow delivery policy. Grounded on the teacher's ConnectionManager
// (pkg/events/manager.go): subscriber pointers are snapshotted under a lock
// and released before any send runs.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscriber
}

func newBus() *Bus {
	return &Bus{subs: make(map[uint64]*Subscriber)}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan eventmodel.Event, subscriberQueueSize)
	sub := &Subscriber{id: b.nextID, C: ch, ch: ch}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// publish delivers e to every current subscriber without blocking. A
// subscriber whose queue is full at send time is skipped for this event and
// its drop counter increments.
func (b *Bus) publish(e eventmodel.Event) {
	b.mu.RLock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- e:
		default:
			sub.dropped.Add(1)
			slog.Debug("dropping event for slow subscriber", "subscriber_id", sub.id)
		}
	}
}

// SubscriberCount returns the number of active subscribers. Used by tests
// and health reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
