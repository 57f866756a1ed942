package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	assert.Equal(t, 1, broker.SubscriberCount())

	broker.Publish(&Event{Type: EventEnvCreated, EnvID: 3, WorkerID: 1})

	select {
	case event := <-sub:
		assert.Equal(t, EventEnvCreated, event.Type)
		assert.Equal(t, 3, event.EnvID)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub
	require.False(t, open)

	// Double unsubscribe is a no-op.
	broker.Unsubscribe(sub)
}

func TestSlowSubscriberDoesNotBlockBroker(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	// Overfill the subscriber buffer; extra events are dropped, not
	// blocking the broker loop.
	for i := 0; i < 200; i++ {
		broker.Publish(&Event{Type: EventEnvReset, EnvID: i})
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-sub:
			received++
			if received >= 50 {
				return
			}
		case <-deadline:
			t.Fatalf("only received %d events", received)
		}
	}
}
