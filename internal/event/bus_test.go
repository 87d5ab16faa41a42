package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInMemoryBusFanOut(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	first, unsubFirst := bus.Subscribe()
	second, unsubSecond := bus.Subscribe()
	defer unsubSecond()

	bus.Publish(Event{Type: TypeRequestCreated, Payload: RequestPayload{RequestID: "r-1"}})

	for _, ch := range []<-chan Event{first, second} {
		select {
		case e := <-ch:
			require.Equal(t, TypeRequestCreated, e.Type)
			require.NotEmpty(t, e.ID)
			require.False(t, e.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsubFirst()
	unsubFirst()
	_, open := <-first
	require.False(t, open)

	bus.Publish(Event{Type: TypeRequestDeleted})
	select {
	case e := <-second:
		require.Equal(t, TypeRequestDeleted, e.Type)
	case <-time.After(time.Second):
		t.Fatal("remaining subscriber missed event")
	}
}

func TestInMemoryBusDropsWhenFull(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(Event{Type: TypeNoteAdded})
	}

	require.Len(t, ch, subscriberBuffer)
}
