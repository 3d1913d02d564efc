package models

import (
	"errors"
	"strconv"
)

// ErrMalformedExport is returned when a stored export cannot be applied.
var ErrMalformedExport = errors.New("malformed export")

// EntityID identifies one world object. Zero is reserved and means "none".
type EntityID uint64

// None is the zero entity reference used by components for "no link".
const None EntityID = 0

func (id EntityID) IsNone() bool { return id == None }

func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Kind names a component kind. Kinds are compared by value and used as storage keys.
type Kind string

// Export is the persistable view of a component: field name to primitive value.
type Export map[string]any

// Component is a data-only record attached to an entity.
type Component interface {
	Kind() Kind
	// Export returns the persistable fields. The dirty marker is never included.
	Export() Export

	Dirty() bool
	MarkDirty()
	ClearDirty()
}

// Importer is implemented by components whose runtime state can be restored
// from a stored export. Structural references are never imported; they come
// from the static world.
type Importer interface {
	Import(e Export) error
}

// Base carries the dirty marker shared by every component kind. Embed it by value.
type Base struct {
	dirty bool
}

func (b *Base) Dirty() bool    { return b.dirty }
func (b *Base) MarkDirty()     { b.dirty = true }
func (b *Base) ClearDirty()    { b.dirty = false }
func (b *Base) Export() Export { return Export{} }

// Backend selects the persistence collaborator responsible for an entity's records.
type Backend uint8

const (
	BackendNone Backend = iota
	BackendMemory
	BackendSQLite
	BackendBadger
	BackendRedis
)

var backendNames = [...]string{
	BackendNone:   "none",
	BackendMemory: "memory",
	BackendSQLite: "sqlite",
	BackendBadger: "badger",
	BackendRedis:  "redis",
}

func (b Backend) String() string {
	if int(b) < len(backendNames) {
		return backendNames[b]
	}
	return "backend(" + strconv.Itoa(int(b)) + ")"
}

// Valid reports whether b is one of the known backends.
func (b Backend) Valid() bool { return int(b) < len(backendNames) }

// ParseBackend maps a configuration name to a Backend. The empty string is BackendNone.
func ParseBackend(s string) (Backend, bool) {
	if s == "" {
		return BackendNone, true
	}
	for i, name := range backendNames {
		if name == s {
			return Backend(i), true
		}
	}
	return BackendNone, false
}
