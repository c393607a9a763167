package events

import (
	"sync"
	"time"

	"github.com/flowmill/flowmill/pkg/document"
)

// Phase identifies a lifecycle event of the engine.
type Phase string

const (
	PhaseBeforeProcess    Phase = "workitem.before_process"
	PhaseAfterProcess     Phase = "workitem.after_process"
	PhaseProcessFailed    Phase = "workitem.process_failed"
	PhaseSplitCreated     Phase = "workitem.split_created"
	PhaseSchedulerStarted Phase = "scheduler.started"
	PhaseSchedulerStopped Phase = "scheduler.stopped"
	PhaseSchedulerFired   Phase = "scheduler.fired"
)

// Event is one lifecycle notification. Workitem is the live document;
// synchronous observers must not mutate processing order.
type Event struct {
	Phase     Phase
	Timestamp time.Time
	Workitem  *document.ItemCollection
	EventID   int
	Message   string
	Metadata  map[string]string
}

// Observer receives lifecycle events synchronously in the publishing
// goroutine, before the triggering call returns.
type Observer func(*Event)

// Subscriber is a channel that receives events asynchronously.
type Subscriber chan *Event

// Broker distributes lifecycle events to synchronous observers and
// channel subscribers.
type Broker struct {
	mu          sync.RWMutex
	observers   []Observer
	subscribers map[Subscriber]bool
	eventCh     chan *Event
	stopCh      chan struct{}
	started     bool
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's asynchronous distribution loop.
func (b *Broker) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return
	}
	b.started = true
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Observe registers a synchronous observer. Observers run in registration
// order.
func (b *Broker) Observe(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, obs)
}

// Subscribe creates a new asynchronous subscription.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish delivers an event to all synchronous observers before it is
// queued for the asynchronous subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	observers := b.observers
	started := b.started
	b.mu.RUnlock()

	for _, obs := range observers {
		obs(event)
	}

	if !started {
		return
	}
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
