// Package eventbus provides per-run publish/subscribe fan-out for live
// test-run progress.
//
// The bus keys an independent subscriber set by run id, so concurrent
// orchestrators and observer connect/disconnect never contend across
// runs. Delivery is at-most-once and best-effort: a failing sink is
// dropped from the set and never surfaces an error to the publisher.
// Because each run has a single publishing orchestrator, every
// subscriber observes that run's events in publish order.
package eventbus

import (
	"errors"
	"sync"
)

// Event types carried in the envelope.
const (
	TypeStatusUpdate   = "status_update"
	TypeLog            = "log"
	TypeTestCaseUpdate = "test_case_update"
)

// Event is the envelope delivered to subscribers. It serializes as
// {"type": ..., "data": {...}}.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Sink receives events for one run. Send must not block indefinitely;
// a returned error tells the bus to drop the sink.
type Sink interface {
	Send(e Event) error
}

// Bus is an in-memory per-run event registry. The zero value is not
// usable; construct with New. A Bus is safe for concurrent use.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Sink
}

func New() *Bus {
	return &Bus{subs: make(map[string][]Sink)}
}

// Subscribe adds sink to the subscriber set for runID.
func (b *Bus) Subscribe(runID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[runID] = append(b.subs[runID], sink)
}

// Unsubscribe removes sink from the subscriber set for runID. Removing
// an absent sink is a no-op.
func (b *Bus) Unsubscribe(runID string, sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(runID, sink)
}

// Publish delivers e to every current subscriber of runID. Sinks whose
// Send fails are removed from the set; remaining sinks still receive
// the event. Publishing to a run with no subscribers is a no-op.
func (b *Bus) Publish(runID string, e Event) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.subs[runID]))
	copy(sinks, b.subs[runID])
	b.mu.RUnlock()

	var failed []Sink
	for _, s := range sinks {
		if err := s.Send(e); err != nil {
			failed = append(failed, s)
		}
	}

	if len(failed) > 0 {
		b.mu.Lock()
		for _, s := range failed {
			b.removeLocked(runID, s)
		}
		b.mu.Unlock()
	}
}

// SubscriberCount returns the current number of subscribers for runID.
func (b *Bus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[runID])
}

func (b *Bus) removeLocked(runID string, sink Sink) {
	sinks := b.subs[runID]
	for i, s := range sinks {
		if s == sink {
			b.subs[runID] = append(sinks[:i], sinks[i+1:]...)
			break
		}
	}
	if len(b.subs[runID]) == 0 {
		delete(b.subs, runID)
	}
}

// ErrSinkClosed is returned by Send after a BufferedSink is closed.
var ErrSinkClosed = errors.New("eventbus: sink closed")

// BufferedSink is a Sink backed by a bounded queue. When the queue is
// full the oldest pending event is dropped to make room, so a slow
// consumer loses history instead of blocking the publisher.
type BufferedSink struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// NewBufferedSink creates a sink with the given queue capacity.
// Capacity must be at least 1.
func NewBufferedSink(capacity int) *BufferedSink {
	if capacity < 1 {
		capacity = 1
	}
	return &BufferedSink{ch: make(chan Event, capacity)}
}

// Send enqueues e, dropping the oldest pending event on overflow.
func (s *BufferedSink) Send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	for {
		select {
		case s.ch <- e:
			return nil
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// Events returns the receive side of the queue. The channel is closed
// by Close.
func (s *BufferedSink) Events() <-chan Event {
	return s.ch
}

// Close marks the sink closed and closes the event channel. Close is
// idempotent.
func (s *BufferedSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
