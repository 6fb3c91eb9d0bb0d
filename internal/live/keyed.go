package live

import "sync"

// Keyed lazily creates one Value per key.
type Keyed[K comparable, T comparable] struct {
	mu     sync.Mutex
	values map[K]*Value[T]
	zero   T
}

// NewKeyed creates an empty keyed set whose values start at zero.
func NewKeyed[K comparable, T comparable](zero T) *Keyed[K, T] {
	return &Keyed[K, T]{values: make(map[K]*Value[T]), zero: zero}
}

// At returns the Value for key, creating it if needed.
func (k *Keyed[K, T]) At(key K) *Value[T] {
	k.mu.Lock()
	defer k.mu.Unlock()

	v, ok := k.values[key]
	if !ok {
		v = NewValue(k.zero)
		k.values[key] = v
	}
	return v
}

// Set updates the value at key only if someone has asked for it before.
func (k *Keyed[K, T]) Set(key K, val T) bool {
	k.mu.Lock()
	v, ok := k.values[key]
	k.mu.Unlock()
	if !ok {
		return false
	}
	return v.Set(val)
}

// Forget drops keys that match pred and have no subscribers.
func (k *Keyed[K, T]) Forget(pred func(K) bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, v := range k.values {
		if pred(key) && v.Subscribers() == 0 {
			delete(k.values, key)
		}
	}
}

// SetWhere updates every tracked key matching pred.
func (k *Keyed[K, T]) SetWhere(pred func(K) bool, val T) {
	k.mu.Lock()
	var matched []*Value[T]
	for key, v := range k.values {
		if pred(key) {
			matched = append(matched, v)
		}
	}
	k.mu.Unlock()

	for _, v := range matched {
		v.Set(val)
	}
}
