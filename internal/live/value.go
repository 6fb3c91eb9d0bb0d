// Package live provides observable values that notify subscribers only when
// the value actually changes.
package live

import (
	"context"
	"sync"
)

// Value holds the latest value of T and fans it out to subscribers.
// Consecutive equal values are suppressed. Slow subscribers never block Set:
// each subscription keeps at most one pending value and newer values replace it.
type Value[T any] struct {
	mu      sync.Mutex
	current T
	equal   func(a, b T) bool
	subs    map[int]chan T
	nextID  int
}

// NewValue creates a Value for a comparable type using ==.
func NewValue[T comparable](initial T) *Value[T] {
	return NewValueFunc(initial, func(a, b T) bool { return a == b })
}

// NewValueFunc creates a Value using a custom equality function.
func NewValueFunc[T any](initial T, equal func(a, b T) bool) *Value[T] {
	return &Value[T]{
		current: initial,
		equal:   equal,
		subs:    make(map[int]chan T),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set stores next and notifies subscribers. It reports whether the value changed.
func (v *Value[T]) Set(next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.equal(v.current, next) {
		return false
	}
	v.current = next
	for _, ch := range v.subs {
		offer(ch, next)
	}
	return true
}

// Subscribe returns a channel that first receives the current value and then
// every distinct update until ctx is done. The channel is closed afterwards.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = ch
	ch <- v.current
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.subs, id)
		close(ch)
		v.mu.Unlock()
	}()

	return ch
}

// Subscribers returns the number of active subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// offer replaces any pending value in a buffered(1) channel with val.
// Callers must hold the Value lock, which makes the drain-then-send race free.
func offer[T any](ch chan T, val T) {
	select {
	case <-ch:
	default:
	}
	ch <- val
}
