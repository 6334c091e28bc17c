package events

import (
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventResourceDeployed         EventType = "resource.deployed"
	EventResourceDeploymentFailed EventType = "resource.deployment_failed"
	EventResourceHealthChanged    EventType = "resource.health_changed"
	EventResourceRehosted         EventType = "resource.rehosted"
	EventResourceRenamed          EventType = "resource.renamed"
	EventRoleAssigned             EventType = "role.assigned"
)

// Event represents a control-plane event
type Event struct {
	ID         string
	Type       EventType
	Timestamp  time.Time
	ResourceID uint64
	Message    string
	Metadata   map[string]string
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

type subscription struct {
	types map[EventType]bool // nil means every type
}

// Broker fans events out to in-process subscribers. Publishing never
// blocks: events are dropped when the broker or a subscriber falls behind.
// A nil *Broker discards everything.
type Broker struct {
	subscribers map[Subscriber]subscription
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]subscription),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a subscription for the given event types, or for every
// type when none are given
func (b *Broker) Subscribe(eventTypes ...EventType) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sub subscription
	if len(eventTypes) > 0 {
		sub.types = make(map[EventType]bool, len(eventTypes))
		for _, t := range eventTypes {
			sub.types[t] = true
		}
	}

	ch := make(Subscriber, 50)
	b.subscribers[ch] = sub
	return ch
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(ch Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Publish queues an event for delivery
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	default:
		logger := log.WithComponent("events")
		logger.Warn().Str("type", string(event.Type)).Msg("Event queue full, dropping event")
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

	for ch, sub := range b.subscribers {
		if sub.types != nil && !sub.types[event.Type] {
			continue
		}
		select {
		case ch <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
