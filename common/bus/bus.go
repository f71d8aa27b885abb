package bus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/docuforge/docuforge/common/logger"
)

// ErrClosed is returned by Publish after the bus has been shut down.
var ErrClosed = errors.New("bus: closed")

// Handler processes a delivered event.
type Handler func(ctx context.Context, evt Event)

// Event is one message on the bus.
type Event struct {
	Topic     string
	Payload   any
	Timestamp time.Time
}

// Bus is the in-process event bus connecting the UI facade, the
// orchestrator and the services. Delivery order is preserved per
// subscription; each subscription drains its own buffered channel on a
// dedicated goroutine.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool
	log    *logger.Logger
}

type subscription struct {
	topic   string
	ch      chan Event
	handler Handler
	done    chan struct{}
}

const subscriptionBuffer = 256

// New creates an event bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		subs: make(map[string][]*subscription),
		log:  log,
	}
}

// Subscribe registers a handler for a topic and returns an unsubscribe
// function. The handler runs on the subscription's own goroutine.
func (b *Bus) Subscribe(topic string, handler Handler) func() {
	sub := &subscription{
		topic:   topic,
		ch:      make(chan Event, subscriptionBuffer),
		handler: handler,
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go sub.run()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(sub) })
	}
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case evt := <-s.ch:
			s.handler(context.Background(), evt)
		}
	}
}

// Publish delivers an event to every subscriber of the topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	evt := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}

	for _, sub := range subs {
		select {
		case sub.ch <- evt:
		default:
			b.log.Warn("bus subscriber backlog full, dropping event", "topic", topic)
		}
	}

	return nil
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[sub.topic]
	for i, s := range list {
		if s == sub {
			b.subs[sub.topic] = append(list[:i], list[i+1:]...)
			break
		}
	}
	close(sub.done)
}

// Close tears down every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for topic, list := range b.subs {
		for _, sub := range list {
			close(sub.done)
		}
		delete(b.subs, topic)
	}

	return nil
}
