// Package ds provides generic data structures shared by the messaging and
// saga packages.
package ds

import "fmt"

type StringSet = Set[string]

// Set is an ordered set: O(1) membership testing with insertion order
// preserved on iteration. Deterministic iteration matters wherever sets feed
// back into dispatch order, e.g. the saga association index.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

// NewSet creates a set containing the given values, de-duplicated, keeping
// first-seen order.
func NewSet[T comparable](values ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

func (s *Set[T]) String() string { return fmt.Sprintf("%v", s.order) }

// Add inserts v. No-op if already present. (mutates)
func (s *Set[T]) Add(v T) {
	if s.Contains(v) {
		return
	}
	s.items[v] = struct{}{}
	s.order = append(s.order, v)
}

// Remove deletes the given values. O(n) in the set size. (mutates)
func (s *Set[T]) Remove(values ...T) {
	removed := false
	for _, v := range values {
		if _, ok := s.items[v]; ok {
			delete(s.items, v)
			removed = true
		}
	}
	if !removed {
		return
	}
	order := make([]T, 0, len(s.items))
	for _, v := range s.order {
		if _, ok := s.items[v]; ok {
			order = append(order, v)
		}
	}
	s.order = order
}

func (s *Set[T]) Contains(v T) bool {
	_, ok := s.items[v]
	return ok
}

func (s *Set[T]) Len() int { return len(s.items) }

// Values returns the elements in insertion order as a fresh slice.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.order))
	copy(out, s.order)
	return out
}

// ForEach iterates in insertion order without allocating a copy.
func (s *Set[T]) ForEach(fn func(T)) {
	for _, v := range s.order {
		fn(v)
	}
}

// Copy returns a new set with the same elements and order.
func (s *Set[T]) Copy() *Set[T] {
	return NewSet[T](s.order...)
}
