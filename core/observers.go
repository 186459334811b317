package core

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Observers is a list of callbacks notified synchronously, in registration order.
// It is safe for concurrent use. A panicking callback is logged and recovered so it cannot
// stop delivery to the remaining callbacks.
type Observers[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []observer[T]
	Logger *slog.Logger
}

type observer[T any] struct {
	id uint64
	fn func(T)
}

// NewObservers creates an empty observer list.
func NewObservers[T any]() *Observers[T] {
	return &Observers[T]{}
}

// Subscribe registers fn and returns a function that removes it. The returned function
// can be called any number of times.
func (o *Observers[T]) Subscribe(fn func(T)) func() {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.subs = append(o.subs, observer[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *Observers[T]) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, sub := range o.subs {
		if sub.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

// Notify calls every registered callback with value. The list is copied first, so callbacks
// may subscribe or unsubscribe while being notified.
func (o *Observers[T]) Notify(value T) {
	o.mu.RLock()
	subs := make([]observer[T], len(o.subs))
	copy(subs, o.subs)
	o.mu.RUnlock()

	for _, sub := range subs {
		o.safeCall(sub.fn, value)
	}
}

// Len returns the number of registered callbacks.
func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

func (o *Observers[T]) safeCall(fn func(T), value T) {
	defer func() {
		if r := recover(); r != nil {
			logger := o.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.Error("observer panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn(value)
}
