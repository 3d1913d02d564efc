// Package storage hands dirty component exports to persistence backends.
//
// Collection happens inside the tick; writes happen on a background goroutine
// so a slow backend never stalls the loop.
package storage

import (
	"context"
	"slices"

	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Record is one persisted component export.
type Record struct {
	Entity  models.EntityID `json:"entity"`
	Kind    models.Kind     `json:"kind"`
	Backend models.Backend  `json:"-"`
	Key     string          `json:"key"`
	Export  models.Export   `json:"export"`
}

type pending struct {
	Record
	c models.Component
}

// Collect returns a record for every dirty component of a persisted entity,
// ordered by entity then kind registration order. Dirty markers are left as is.
func Collect(w *world.World) []Record {
	ps := collect(w)
	out := make([]Record, len(ps))
	for i, p := range ps {
		out[i] = p.Record
	}
	return out
}

func collect(w *world.World) []pending {
	ids := slices.Sorted(w.Query(components.KindMeta).Seq())

	var out []pending
	for _, id := range ids {
		meta, _ := world.Get[*components.Meta](w, id)
		if !meta.Persisted() {
			continue
		}
		for _, k := range w.Kinds(id) {
			c, _ := w.Component(id, k)
			if !c.Dirty() {
				continue
			}
			out = append(out, pending{
				Record: Record{Entity: id, Kind: k, Backend: meta.DatabaseMode, Key: meta.DatabaseKey, Export: c.Export()},
				c:      c,
			})
		}
	}
	return out
}

func clearDirty(ps []pending) {
	for _, p := range ps {
		p.c.ClearDirty()
	}
}

// Sync writes every dirty record to sink synchronously and clears the
// markers of what was written. It is used on shutdown, inside the world's
// exclusive context.
func Sync(ctx context.Context, w *world.World, sink Sink) (int, error) {
	ps := collect(w)
	if len(ps) == 0 {
		return 0, nil
	}
	recs := make([]Record, len(ps))
	for i, p := range ps {
		recs[i] = p.Record
	}
	if err := sink.Write(ctx, recs); err != nil {
		return 0, err
	}
	clearDirty(ps)
	return len(recs), nil
}
