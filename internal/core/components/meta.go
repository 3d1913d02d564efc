package components

import "github.com/volundmush/moonsilver/internal/core/models"

// Meta classifies an entity by the bundle and kind it was defined from, and
// names the persisted record that backs it.
type Meta struct {
	models.Base

	Bundle     string
	EntityKind string

	DatabaseMode models.Backend
	DatabaseKey  string
}

func NewMeta(bundle, kind string) *Meta {
	return &Meta{Bundle: bundle, EntityKind: kind}
}

func (*Meta) Kind() models.Kind { return KindMeta }

// Persisted reports whether a persistence backend owns this entity.
func (m *Meta) Persisted() bool {
	return m.DatabaseMode != models.BackendNone && m.DatabaseKey != ""
}

func (m *Meta) Export() models.Export {
	return models.Export{
		"bundle":        m.Bundle,
		"kind":          m.EntityKind,
		"database_mode": m.DatabaseMode.String(),
		"database_key":  m.DatabaseKey,
	}
}
