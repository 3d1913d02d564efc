package world

import (
	"iter"
	"maps"

	"github.com/volundmush/moonsilver/internal/core/models"
)

// store is the type-erased view of a Storage the World uses for lifecycle
// operations that do not know the concrete component type.
type store interface {
	kind() models.Kind
	accepts(c models.Component) bool
	has(id models.EntityID) bool
	lookup(id models.EntityID) (models.Component, bool)
	put(id models.EntityID, c models.Component)
	remove(id models.EntityID)
	size() int
	ids() iter.Seq[models.EntityID]
}

// Storage holds every component of one kind, keyed by entity.
type Storage[T models.Component] struct {
	k    models.Kind
	data map[models.EntityID]T
}

func newStorage[T models.Component](k models.Kind) *Storage[T] {
	return &Storage[T]{k: k, data: make(map[models.EntityID]T, 64)}
}

func (s *Storage[T]) Get(id models.EntityID) (T, bool) {
	c, ok := s.data[id]
	return c, ok
}

func (s *Storage[T]) Len() int { return len(s.data) }

// All iterates over (entity, component) pairs in unspecified order.
func (s *Storage[T]) All() iter.Seq2[models.EntityID, T] {
	return maps.All(s.data)
}

func (s *Storage[T]) kind() models.Kind { return s.k }

func (s *Storage[T]) accepts(c models.Component) bool {
	_, ok := c.(T)
	return ok
}

func (s *Storage[T]) has(id models.EntityID) bool {
	_, ok := s.data[id]
	return ok
}

func (s *Storage[T]) lookup(id models.EntityID) (models.Component, bool) {
	c, ok := s.data[id]
	if !ok {
		return nil, false
	}
	return c, true
}

func (s *Storage[T]) put(id models.EntityID, c models.Component) {
	s.data[id] = c.(T)
}

func (s *Storage[T]) remove(id models.EntityID) { delete(s.data, id) }

func (s *Storage[T]) size() int { return len(s.data) }

func (s *Storage[T]) ids() iter.Seq[models.EntityID] {
	return maps.Keys(s.data)
}
