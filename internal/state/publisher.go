// Package state provides latest-value observable slots. A Slot holds one
// value; publishing replaces it and notifies subscribers synchronously in
// subscription order. New subscribers receive the current value only.
package state

import (
	"sync"
)

// Subscriber receives slot updates
type Subscriber[T any] interface {
	OnUpdate(value T)
}

// SubscriberFunc adapts a function to the Subscriber interface
type SubscriberFunc[T any] func(value T)

// OnUpdate calls f(value)
func (f SubscriberFunc[T]) OnUpdate(value T) {
	f(value)
}

type subscription[T any] struct {
	id  uint64
	sub Subscriber[T]
}

// Slot is a single-value broadcast. Subscribers must not publish to or
// subscribe to the same slot from within OnUpdate.
type Slot[T any] struct {
	mu     sync.RWMutex
	value  T
	subs   []subscription[T]
	nextID uint64

	// serializes delivery so subscribers observe publishes in order
	deliver sync.Mutex
}

// NewSlot creates a slot holding initial
func NewSlot[T any](initial T) *Slot[T] {
	return &Slot[T]{value: initial}
}

// Get returns the current value
func (s *Slot[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Publish replaces the current value and notifies every active subscriber
func (s *Slot[T]) Publish(value T) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.value = value
	subs := make([]subscription[T], len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, entry := range subs {
		entry.sub.OnUpdate(value)
	}
}

// Subscribe registers sub, delivers the current value to it, and returns a
// function that removes the subscription.
func (s *Slot[T]) Subscribe(sub Subscriber[T]) (unsubscribe func()) {
	s.deliver.Lock()
	defer s.deliver.Unlock()

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription[T]{id: id, sub: sub})
	current := s.value
	s.mu.Unlock()

	sub.OnUpdate(current)

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

// SubscriberCount returns the number of active subscribers
func (s *Slot[T]) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Slot[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, entry := range s.subs {
		if entry.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

// Channel subscribes to the slot and forwards values on a channel holding at
// most one pending value. A slow reader sees the latest value, intermediate
// ones are dropped. Call the returned function to unsubscribe; the channel is
// not closed.
func (s *Slot[T]) Channel() (<-chan T, func()) {
	ch := make(chan T, 1)
	unsubscribe := s.Subscribe(SubscriberFunc[T](func(value T) {
		for {
			select {
			case ch <- value:
				return
			default:
			}
			// drop the stale pending value
			select {
			case <-ch:
			default:
			}
		}
	}))
	return ch, unsubscribe
}
