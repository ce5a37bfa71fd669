// Package fanout distributes "a record was persisted" events to
// independent, slower consumers without ever blocking the producer.
//
// Each subscriber gets its own bounded queue. When a queue is full the
// oldest unread event is dropped to make room for the newest: consumers
// care about current state, not history backlog. This is deliberately not
// a backpressure policy.
package fanout

import (
	"sync"
	"sync/atomic"

	"github.com/trevorflahardy/baro/internal/storage/types"
)

// Event describes one persisted (or attempted) write.
type Event struct {
	// Tier names what was written.
	Tier types.Tier

	// Timestamp is the sample timestamp for the raw tier, the window
	// start for rollup tiers, and the update time for the lifetime tier.
	Timestamp uint32

	// Count is the number of constituent records folded into a rollup;
	// 1 for raw samples and lifetime updates.
	Count int

	// Persisted is false when the storage medium rejected the write and
	// the engine carried on in memory (degraded mode).
	Persisted bool
}

// Fanout multiplexes events to any number of subscribers.
type Fanout struct {
	mu        sync.Mutex
	subs      []*Subscriber
	queueSize int

	published atomic.Int64
}

// Subscriber is one bounded event queue.
type Subscriber struct {
	name    string
	ch      chan Event
	dropped atomic.Int64
	closed  bool // Guarded by parent.mu.

	parent *Fanout
}

// New creates a fan-out whose subscribers each buffer queueSize events.
func New(queueSize int) *Fanout {
	if queueSize <= 0 {
		queueSize = 8
	}
	return &Fanout{queueSize: queueSize}
}

// Subscribe registers a new consumer.
func (f *Fanout) Subscribe(name string) *Subscriber {
	s := &Subscriber{
		name:   name,
		ch:     make(chan Event, f.queueSize),
		parent: f,
	}

	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()

	return s
}

// Publish delivers an event to every subscriber. A full subscriber queue
// sheds its oldest event; Publish itself never blocks on a consumer.
// Delivery happens under the fan-out lock so Close cannot pull a channel
// out from under an in-flight enqueue.
func (f *Fanout) Publish(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.subs {
		s.enqueue(ev)
	}
	f.published.Add(1)
}

// Published returns the total number of events published.
func (f *Fanout) Published() int64 {
	return f.published.Load()
}

// SubscriberCount returns the number of active subscribers.
func (f *Fanout) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// enqueue performs the overwrite-oldest insert. Caller holds the fan-out
// lock; the consumer only ever receives, so the loop terminates.
func (s *Subscriber) enqueue(ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}

		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// Events returns the subscriber's receive channel.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Name returns the subscriber's name.
func (s *Subscriber) Name() string {
	return s.name
}

// Dropped returns how many unread events were shed for this subscriber.
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}

// Close removes the subscriber from the fan-out and closes its channel.
// Safe to call more than once.
func (s *Subscriber) Close() {
	f := s.parent

	f.mu.Lock()
	defer f.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for i, sub := range f.subs {
		if sub == s {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			break
		}
	}
	close(s.ch)
}
