package g32

import (
	"sync"
)

// AllKeys subscribes a handler to every key published on a Bus.
const AllKeys = "*"

// Bus fans values out to subscribers keyed by grill serial.
//
// Handlers run synchronously on the publishing goroutine, in subscription
// order, so values published from one goroutine reach each handler in the
// order they were published. A handler that panics is recovered and
// reported through the panic hook; other handlers still run.
//
// Thread Safety: All methods are safe for concurrent use. Handlers may
// unsubscribe themselves.
type Bus[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers map[string][]busHandler[T]
	onPanic  func(key string, recovered any)
}

type busHandler[T any] struct {
	id uint64
	fn func(T)
}

// NewBus creates an empty bus. onPanic may be nil.
func NewBus[T any](onPanic func(key string, recovered any)) *Bus[T] {
	return &Bus[T]{
		handlers: make(map[string][]busHandler[T]),
		onPanic:  onPanic,
	}
}

// Subscribe registers fn for key (AllKeys for every key) and returns a
// function that removes it. The returned function is idempotent.
func (b *Bus[T]) Subscribe(key string, fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.handlers[key] = append(b.handlers[key], busHandler[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(key, id) })
	}
}

// Publish delivers v to subscribers of key and to AllKeys subscribers.
func (b *Bus[T]) Publish(key string, v T) {
	b.mu.RLock()
	targets := make([]busHandler[T], 0, len(b.handlers[key])+len(b.handlers[AllKeys]))
	targets = append(targets, b.handlers[key]...)
	if key != AllKeys {
		targets = append(targets, b.handlers[AllKeys]...)
	}
	b.mu.RUnlock()

	for _, h := range targets {
		b.deliver(key, h.fn, v)
	}
}

// Len returns the number of handlers subscribed to key.
func (b *Bus[T]) Len(key string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[key])
}

func (b *Bus[T]) deliver(key string, fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(key, r)
		}
	}()
	fn(v)
}

func (b *Bus[T]) remove(key string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	hs := b.handlers[key]
	for i, h := range hs {
		if h.id == id {
			b.handlers[key] = append(hs[:i:i], hs[i+1:]...)
			break
		}
	}
	if len(b.handlers[key]) == 0 {
		delete(b.handlers, key)
	}
}
