package domain

import "encoding/json"

// Set is an insertion-ordered set. The zero value is empty and ready to use.
type Set[T comparable] struct {
	order []T
	index map[T]struct{}
}

// NewSet builds a set from items, dropping duplicates.
func NewSet[T comparable](items ...T) Set[T] {
	var s Set[T]
	for _, it := range items {
		s.Add(it)
	}
	return s
}

// Add inserts v and reports whether it was absent.
func (s *Set[T]) Add(v T) bool {
	if s.index == nil {
		s.index = make(map[T]struct{})
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
	return true
}

// Contains reports membership.
func (s Set[T]) Contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

// Len returns the number of members.
func (s Set[T]) Len() int {
	return len(s.order)
}

// Items returns members in insertion order. The slice must not be modified.
func (s Set[T]) Items() []T {
	return s.order
}

// Count returns how many members satisfy keep.
func (s Set[T]) Count(keep func(T) bool) int {
	n := 0
	for _, v := range s.order {
		if keep(v) {
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (s Set[T]) Clone() Set[T] {
	return NewSet(s.order...)
}

func (s Set[T]) MarshalJSON() ([]byte, error) {
	if s.order == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.order)
}

func (s *Set[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewSet(items...)
	return nil
}
