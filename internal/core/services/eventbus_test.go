package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus_PubSub(t *testing.T) {
	bus := NewEventBus(testLogger())
	key := "conv-123"

	ch, unsub := bus.Subscribe(key)
	defer unsub()

	event := Event{
		Key:       key,
		Type:      EventTypeStep,
		Data:      `{"step":"think","content":"x"}`,
		Timestamp: time.Now().Unix(),
	}
	bus.Publish(event)

	select {
	case received := <-ch:
		assert.Equal(t, event.Key, received.Key)
		assert.Equal(t, event.Data, received.Data)
	case <-time.After(1 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBus_KeysAreIsolated(t *testing.T) {
	bus := NewEventBus(testLogger())

	chA, unsubA := bus.Subscribe("conv-a")
	defer unsubA()
	chB, unsubB := bus.Subscribe("conv-b")
	defer unsubB()

	bus.Publish(Event{Key: "conv-a", Type: EventTypeOutput, Data: "a"})

	select {
	case e := <-chA:
		assert.Equal(t, "a", e.Data)
		assert.NotZero(t, e.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("conv-a subscriber got nothing")
	}

	select {
	case e := <-chB:
		t.Fatalf("conv-b received foreign event: %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus(testLogger())

	ch, unsub := bus.Subscribe("conv-456")
	unsub()
	unsub() // second call is a no-op

	bus.Publish(Event{Key: "conv-456", Type: EventTypeStep, Data: "should not receive"})

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

func TestEventBus_FullChannelDrops(t *testing.T) {
	bus := NewEventBus(testLogger())
	ch, unsub := bus.Subscribe("conv-full")
	defer unsub()

	for i := 0; i < 150; i++ {
		bus.Publish(Event{Key: "conv-full", Type: EventTypeStep})
	}
	assert.Equal(t, 100, len(ch))
}

func TestEventBus_CloseKey(t *testing.T) {
	bus := NewEventBus(testLogger())
	ch1, unsub1 := bus.Subscribe("conv-gone")
	ch2, _ := bus.Subscribe("conv-gone")

	bus.CloseKey("conv-gone")

	_, ok := <-ch1
	require.False(t, ok)
	_, ok = <-ch2
	require.False(t, ok)

	// unsubscribing after CloseKey must not double-close
	assert.NotPanics(t, unsub1)
}
