// Package registry tracks who is connected to the chat: the name to sink
// mapping, each member's block list and administrator membership.
package registry

import (
	"sync"
	"sync/atomic"
)

// Store is a concurrent key-value container with atomic insert-if-absent,
// conditional removal and iteration. Implementations must be safe for use
// by many goroutines without a lock spanning the whole container.
type Store[K comparable, V comparable] interface {
	LoadOrStore(key K, value V) (actual V, loaded bool)
	Load(key K) (V, bool)
	CompareAndDelete(key K, old V) bool
	Range(fn func(key K, value V) bool)
	Len() int
}

// syncStore backs Store with a sync.Map, which keeps disjoint keys from
// contending with each other.
type syncStore[K comparable, V comparable] struct {
	m sync.Map
	n atomic.Int64
}

// NewStore returns an empty Store.
func NewStore[K comparable, V comparable]() Store[K, V] {
	return &syncStore[K, V]{}
}

func (s *syncStore[K, V]) LoadOrStore(key K, value V) (V, bool) {
	actual, loaded := s.m.LoadOrStore(key, value)
	if !loaded {
		s.n.Add(1)
	}
	return actual.(V), loaded
}

func (s *syncStore[K, V]) Load(key K) (V, bool) {
	v, ok := s.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (s *syncStore[K, V]) CompareAndDelete(key K, old V) bool {
	if s.m.CompareAndDelete(key, old) {
		s.n.Add(-1)
		return true
	}
	return false
}

// Range visits every key present for the whole duration of the call exactly
// once. Keys inserted or removed concurrently may or may not be visited.
func (s *syncStore[K, V]) Range(fn func(key K, value V) bool) {
	s.m.Range(func(k, v any) bool {
		return fn(k.(K), v.(V))
	})
}

func (s *syncStore[K, V]) Len() int {
	return int(s.n.Load())
}
