package broker

import (
	"sync"
	"sync/atomic"

	"github.com/xraph/pulse/event"
)

// Subscription is one live connection's outbound path: a bounded
// envelope queue owned by the broker, drained by a transport adapter.
// Envelopes arrive in enqueue order (per-connection FIFO).
type Subscription struct {
	// id uniquely identifies the connection.
	id string

	// tenant is the organization scope. Immutable for the lifetime
	// of the subscription.
	tenant string

	// ch is the bounded sink the transport drains.
	ch chan *event.Envelope

	// mu excludes close from in-flight sends so an unsubscribe racing
	// a publish can never panic on a closed channel.
	mu     sync.RWMutex
	closed bool

	// dropped counts application events discarded because the queue
	// was full. Surfaced to the client as an events_dropped marker
	// on the next successful enqueue.
	dropped atomic.Int64
}

func newSubscription(id, tenant string, buffer int) *Subscription {
	return &Subscription{
		id:     id,
		tenant: tenant,
		ch:     make(chan *event.Envelope, buffer),
	}
}

// ID returns the connection identifier.
func (s *Subscription) ID() string { return s.id }

// Tenant returns the organization this subscription is scoped to.
func (s *Subscription) Tenant() string { return s.tenant }

// C returns the read-only envelope sink.
func (s *Subscription) C() <-chan *event.Envelope { return s.ch }

// Dropped returns the number of application events discarded so far.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// send enqueues an envelope without ever blocking the publisher.
//
// When the queue is full the oldest queued envelope is evicted to make
// room: evicting a heartbeat is free, evicting an application event is
// counted and later surfaced via an events_dropped marker. Delivery is
// best-effort, so losing the oldest entries is preferable to losing
// the newest state change.
//
// Returns false if the envelope was not enqueued (closed subscription
// or persistent overflow).
func (s *Subscription) send(evt *event.Envelope) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	// Surface prior drops before the new event so the client sees the
	// marker in order.
	if n := s.dropped.Swap(0); n > 0 {
		if !s.tryEnqueue(event.Dropped(s.tenant, n)) {
			s.dropped.Add(n)
		}
	}

	if !s.tryEnqueue(evt) {
		if evt.Type != event.TypeHeartbeat {
			s.dropped.Add(1)
		}
		return false
	}
	return true
}

// tryEnqueue attempts one non-blocking send, evicting the oldest
// queued envelope once if the buffer is full. Callers hold mu.RLock.
func (s *Subscription) tryEnqueue(evt *event.Envelope) bool {
	select {
	case s.ch <- evt:
		return true
	default:
	}

	// Full: evict the head and retry once. A concurrent drain can race
	// the eviction; that only means the retry finds room anyway.
	select {
	case old := <-s.ch:
		if old.Type != event.TypeHeartbeat && old.Type != event.TypeEventsDropped {
			s.dropped.Add(1)
		}
	default:
	}

	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

// close closes the sink. Safe to call multiple times; sends after
// close are rejected rather than panicking.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
