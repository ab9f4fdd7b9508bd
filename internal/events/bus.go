// Package events carries in-process notifications (state changes, progress,
// chat messages) and publishes selected ones to NATS.
package events

import "sync"

// Subscription detaches a handler registered on a Bus.
type Subscription interface {
	Unsubscribe()
}

// Bus delivers values to handlers synchronously, in registration order.
type Bus[T any] struct {
	mu       sync.RWMutex
	nextID   int
	handlers []handlerEntry[T]
}

type handlerEntry[T any] struct {
	id int
	fn func(T)
}

func (b *Bus[T]) Subscribe(fn func(T)) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handlerEntry[T]{id: id, fn: fn})
	return &busSubscription[T]{bus: b, id: id}
}

func (b *Bus[T]) Emit(v T) {
	b.mu.RLock()
	handlers := make([]func(T), len(b.handlers))
	for i, h := range b.handlers {
		handlers[i] = h.fn
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(v)
	}
}

func (b *Bus[T]) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.id == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

type busSubscription[T any] struct {
	bus  *Bus[T]
	id   int
	once sync.Once
}

func (s *busSubscription[T]) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.id) })
}
