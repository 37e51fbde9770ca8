package ecs

import "sort"

// Removable is implemented by all component stores so the World can
// bulk-remove an entity's data from every store on destroy.
type Removable interface {
	Remove(id EntityID)
}

// Store is a generic typed map store for components.
// A release callback, when set, runs for every component removed from the
// store; components owning GPU or physics handles free them there.
type Store[T any] struct {
	data    map[EntityID]*T
	release func(EntityID, *T)
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[EntityID]*T, 64),
	}
}

// AddStore creates a typed store owned by w. Its components are removed,
// and released, when an entity is flushed from the destroy queue.
func AddStore[T any](w *World) *Store[T] {
	s := NewStore[T]()
	w.attach(s)
	return s
}

// OnRelease installs the callback run when a component leaves the store.
func (s *Store[T]) OnRelease(fn func(EntityID, *T)) {
	s.release = fn
}

func (s *Store[T]) Set(id EntityID, c *T) {
	if old, ok := s.data[id]; ok && old != c && s.release != nil {
		s.release(id, old)
	}
	s.data[id] = c
}

func (s *Store[T]) Get(id EntityID) (*T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Store[T]) Remove(id EntityID) {
	c, ok := s.data[id]
	if !ok {
		return
	}
	delete(s.data, id)
	if s.release != nil {
		s.release(id, c)
	}
}

func (s *Store[T]) Has(id EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Store[T]) Len() int {
	return len(s.data)
}

// Each visits components in unspecified order.
func (s *Store[T]) Each(fn func(EntityID, *T)) {
	for id, c := range s.data {
		fn(id, c)
	}
}

// IDs returns the stored entity ids in ascending order. Use it where
// iteration order has to be reproducible, e.g. physics body registration.
func (s *Store[T]) IDs() []EntityID {
	ids := make([]EntityID, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
