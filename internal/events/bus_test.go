package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEventBus_DeliversToSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	ch1, cancel1 := bus.Subscribe(8)
	defer cancel1()
	ch2, cancel2 := bus.Subscribe(8)
	defer cancel2()

	bus.Publish(Event{Type: EventProbeCompleted, Source: "scheduler", Data: map[string]interface{}{"endpoint": "udp://a:1"}})

	ev1 := receive(t, ch1)
	ev2 := receive(t, ch2)
	assert.Equal(t, EventProbeCompleted, ev1.Type)
	assert.Equal(t, "udp://a:1", ev2.Data["endpoint"])
	assert.False(t, ev1.Timestamp.IsZero())

	stats := bus.GetStats()
	assert.Equal(t, int64(1), stats.TotalEvents)
	assert.Equal(t, int64(2), stats.DeliveredEvents)
	assert.Equal(t, 2, stats.Subscribers)
}

func TestEventBus_NotRunningDropsEvents(t *testing.T) {
	bus := NewEventBus(nil)
	bus.Publish(Event{Type: EventRunStarted})
	assert.Equal(t, int64(0), bus.GetStats().TotalEvents)
}

func TestEventBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(nil)
	require.NoError(t, bus.Start())
	defer bus.Stop()

	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel() // idempotent

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.GetStats().Subscribers)
}

func TestEventBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewEventBus(nil)
	require.NoError(t, bus.Start())

	_, cancel := bus.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			bus.Publish(Event{Type: EventProbeCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}

	require.NoError(t, bus.Stop())
	stats := bus.GetStats()
	assert.Equal(t, int64(20), stats.TotalEvents)
	assert.Equal(t, int64(1), stats.DeliveredEvents)
	assert.Equal(t, int64(19), stats.DroppedEvents)
}

func TestEventBus_StopClosesSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	require.NoError(t, bus.Start())

	ch, _ := bus.Subscribe(4)
	require.NoError(t, bus.Stop())
	require.NoError(t, bus.Stop())

	_, ok := <-ch
	assert.False(t, ok)
}
