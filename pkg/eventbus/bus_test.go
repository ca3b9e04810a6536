package eventbus

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectSink records every delivered event and can be told to fail.
type collectSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (s *collectSink) Send(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("broken sink")
	}
	s.events = append(s.events, e)
	return nil
}

func (s *collectSink) delivered() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func statusEvent(msg string) Event {
	return Event{Type: TypeStatusUpdate, Data: map[string]any{"message": msg}}
}

func TestPublish_NoSubscribers(t *testing.T) {
	bus := New()

	assert.NotPanics(t, func() {
		bus.Publish("run-1", statusEvent("hello"))
	})
}

func TestPublish_DeliversToAllSubscribers(t *testing.T) {
	bus := New()
	a := &collectSink{}
	b := &collectSink{}
	bus.Subscribe("run-1", a)
	bus.Subscribe("run-1", b)

	bus.Publish("run-1", statusEvent("one"))
	bus.Publish("run-1", statusEvent("two"))

	require.Len(t, a.delivered(), 2)
	require.Len(t, b.delivered(), 2)
	assert.Equal(t, "one", a.delivered()[0].Data["message"])
	assert.Equal(t, "two", a.delivered()[1].Data["message"])
}

func TestPublish_IsolatedByRunID(t *testing.T) {
	bus := New()
	a := &collectSink{}
	b := &collectSink{}
	bus.Subscribe("run-1", a)
	bus.Subscribe("run-2", b)

	bus.Publish("run-1", statusEvent("only run-1"))

	assert.Len(t, a.delivered(), 1)
	assert.Empty(t, b.delivered())
}

func TestPublish_BrokenSinkIsDropped(t *testing.T) {
	bus := New()
	ok1 := &collectSink{}
	broken := &collectSink{fail: true}
	ok2 := &collectSink{}
	bus.Subscribe("run-1", ok1)
	bus.Subscribe("run-1", broken)
	bus.Subscribe("run-1", ok2)

	bus.Publish("run-1", statusEvent("first"))

	// N-1 successful deliveries, broken sink removed.
	assert.Len(t, ok1.delivered(), 1)
	assert.Len(t, ok2.delivered(), 1)
	assert.Equal(t, 2, bus.SubscriberCount("run-1"))

	bus.Publish("run-1", statusEvent("second"))
	assert.Len(t, ok1.delivered(), 2)
	assert.Len(t, ok2.delivered(), 2)
	assert.Empty(t, broken.delivered())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	bus := New()
	s := &collectSink{}
	bus.Subscribe("run-1", s)

	bus.Unsubscribe("run-1", s)
	assert.NotPanics(t, func() {
		bus.Unsubscribe("run-1", s)
		bus.Unsubscribe("run-9", s)
	})

	bus.Publish("run-1", statusEvent("after"))
	assert.Empty(t, s.delivered())
}

func TestPublish_PerSubscriberOrdering(t *testing.T) {
	bus := New()
	s := &collectSink{}
	bus.Subscribe("run-1", s)

	for i := 0; i < 50; i++ {
		bus.Publish("run-1", statusEvent(fmt.Sprintf("msg-%03d", i)))
	}

	got := s.delivered()
	require.Len(t, got, 50)
	for i, e := range got {
		assert.Equal(t, fmt.Sprintf("msg-%03d", i), e.Data["message"])
	}
}

func TestBus_ConcurrentAccess(t *testing.T) {
	bus := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		runID := fmt.Sprintf("run-%d", i%4)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := &collectSink{}
				bus.Subscribe(runID, s)
				bus.Publish(runID, statusEvent("x"))
				bus.Unsubscribe(runID, s)
			}
		}()
	}

	wg.Wait()
}

func TestBufferedSink_DropOldestOnOverflow(t *testing.T) {
	s := NewBufferedSink(2)

	require.NoError(t, s.Send(statusEvent("a")))
	require.NoError(t, s.Send(statusEvent("b")))
	require.NoError(t, s.Send(statusEvent("c")))

	first := <-s.Events()
	second := <-s.Events()
	assert.Equal(t, "b", first.Data["message"])
	assert.Equal(t, "c", second.Data["message"])
}

func TestBufferedSink_SendAfterClose(t *testing.T) {
	s := NewBufferedSink(4)
	s.Close()
	s.Close() // idempotent

	err := s.Send(statusEvent("late"))
	assert.ErrorIs(t, err, ErrSinkClosed)

	_, open := <-s.Events()
	assert.False(t, open)
}

func TestBufferedSink_DroppedFromBusOnceClosed(t *testing.T) {
	bus := New()
	s := NewBufferedSink(4)
	bus.Subscribe("run-1", s)
	s.Close()

	bus.Publish("run-1", statusEvent("x"))
	assert.Equal(t, 0, bus.SubscriberCount("run-1"))
}
