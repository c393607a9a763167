package events

import (
	"testing"
	"time"

	"github.com/flowmill/flowmill/pkg/document"
	"github.com/stretchr/testify/assert"
)

func TestSynchronousObserverOrder(t *testing.T) {
	broker := NewBroker()

	var order []string
	broker.Observe(func(e *Event) { order = append(order, "first:"+string(e.Phase)) })
	broker.Observe(func(e *Event) { order = append(order, "second:"+string(e.Phase)) })

	// delivery happens before Publish returns, without Start
	broker.Publish(&Event{Phase: PhaseBeforeProcess, Workitem: document.New()})

	assert.Equal(t, []string{
		"first:workitem.before_process",
		"second:workitem.before_process",
	}, order)
}

func TestSubscriberReceivesEvents(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	assert.Equal(t, 1, broker.SubscriberCount())

	broker.Publish(&Event{Phase: PhaseSchedulerFired, Message: "tick"})

	select {
	case event := <-sub:
		assert.Equal(t, PhaseSchedulerFired, event.Phase)
		assert.Equal(t, "tick", event.Message)
		assert.False(t, event.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestFullSubscriberDoesNotBlockPublish(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	// overflow the per-subscriber buffer; Publish must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			broker.Publish(&Event{Phase: PhaseAfterProcess})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
