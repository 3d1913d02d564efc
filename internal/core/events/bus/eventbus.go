// Package bus is a synchronous in-process pub/sub for world events.
package bus

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	sub     *Subscription
	handler Handler
}

// Bus delivers events to handlers subscribed by event type, in subscription
// order, on the publisher's goroutine. It is safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]entry
	observers []Observer
	metrics   Metrics
}

func New(observers ...Observer) *Bus {
	return &Bus{
		handlers:  make(map[string][]entry),
		observers: observers,
	}
}

func (b *Bus) Subscribe(eventType string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Subscription{id: uuid.NewString(), eventType: eventType, bus: b}
	b.handlers[eventType] = append(b.handlers[eventType], entry{sub: s, handler: handler})
	return s
}

func (b *Bus) unsubscribe(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[s.eventType] = slices.DeleteFunc(b.handlers[s.eventType], func(e entry) bool { return e.sub == s })
}

func (b *Bus) AddObserver(obs Observer) {
	b.mu.Lock()
	b.observers = append(b.observers, obs)
	b.mu.Unlock()
}

// Publish delivers event to every subscriber of its type. A nil Bus drops
// events. Handler errors are joined; every handler runs regardless.
func (b *Bus) Publish(event Event) error {
	if b == nil {
		return nil
	}
	start := time.Now()
	etype := event.Type()

	b.mu.RLock()
	subs := slices.Clone(b.handlers[etype])
	observers := slices.Clone(b.observers)
	b.mu.RUnlock()

	var all error
	for _, s := range subs {
		if err := s.handler(event); err != nil {
			all = errors.Join(all, err)
		}
	}

	took := time.Since(start)
	for _, obs := range observers {
		obs.OnDelivered(etype, len(subs), all, took)
	}

	b.mu.Lock()
	b.metrics.Published++
	b.metrics.DeliveredHandlers += uint64(len(subs))
	if all != nil {
		b.metrics.Errors++
	}
	b.mu.Unlock()
	return all
}

func (b *Bus) Metrics() Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metrics
}

// Subscribers returns the number of handlers for eventType.
func (b *Bus) Subscribers(eventType string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
