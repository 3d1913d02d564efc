package components

import (
	"slices"

	"github.com/volundmush/moonsilver/internal/core/models"
)

// StringSet is an unordered set of strings.
type StringSet map[string]struct{}

func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s StringSet) Add(v string)    { s[v] = struct{}{} }
func (s StringSet) Remove(v string) { delete(s, v) }

func (s StringSet) Contains(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// EntitySet is an unordered set of entity references.
type EntitySet map[models.EntityID]struct{}

func NewEntitySet(items ...models.EntityID) EntitySet {
	s := make(EntitySet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s EntitySet) Add(id models.EntityID)    { s[id] = struct{}{} }
func (s EntitySet) Remove(id models.EntityID) { delete(s, id) }

func (s EntitySet) Contains(id models.EntityID) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members as ascending uint64 values, ready for export.
func (s EntitySet) Sorted() []uint64 {
	out := make([]uint64, 0, len(s))
	for id := range s {
		out = append(out, uint64(id))
	}
	slices.Sort(out)
	return out
}

func exportIndex(m map[string]models.EntityID) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = uint64(v)
	}
	return out
}
