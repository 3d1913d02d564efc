package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/observability/log"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Restore applies the stored export of every importable component of a
// persisted entity, matched by the entity's database key. Components without a
// stored record keep the values they were loaded with. It must run inside the
// world's exclusive context and returns how many components were restored.
func Restore(ctx context.Context, w *world.World, sink Sink) (int, error) {
	ids := slices.Sorted(w.Query(components.KindMeta).Seq())

	n := 0
	for _, id := range ids {
		meta, _ := world.Get[*components.Meta](w, id)
		if !meta.Persisted() {
			continue
		}
		for _, k := range w.Kinds(id) {
			c, _ := w.Component(id, k)
			im, ok := c.(models.Importer)
			if !ok {
				continue
			}
			exp, err := sink.Read(ctx, meta.DatabaseKey, k)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return n, fmt.Errorf("read %s/%s: %w", meta.DatabaseKey, k, err)
			}
			if err := im.Import(exp); err != nil {
				return n, fmt.Errorf("restore %s/%s: %w", meta.DatabaseKey, k, err)
			}
			n++
		}
	}
	return n, nil
}

// DatabaseWorld returns a setup hook that restores persisted state from sink
// over the freshly loaded static world.
func DatabaseWorld(ctx context.Context, sink Sink, logger log.Log) func(w *world.World) error {
	return func(w *world.World) error {
		n, err := Restore(ctx, w, sink)
		if err != nil {
			return err
		}
		logger.Info("world state restored", log.Int("components", n))
		return nil
	}
}

// Ready returns a setup hook that fails when sink cannot serve reads.
func Ready(sink Sink) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := sink.Read(ctx, "", components.KindMeta)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("storage not ready: %w", err)
		}
		return nil
	}
}
