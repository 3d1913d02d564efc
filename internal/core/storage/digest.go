package storage

import (
	"encoding/binary"
	"encoding/json"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/volundmush/moonsilver/internal/core/world"
)

// Digest hashes every component export in the world, in entity then kind
// order. Two worlds with equal persistable state have equal digests.
func Digest(w *world.World) (uint64, error) {
	ids := w.Query().Collect()
	slices.Sort(ids)

	h := xxhash.New()
	var buf [8]byte
	for _, id := range ids {
		binary.LittleEndian.PutUint64(buf[:], uint64(id))
		_, _ = h.Write(buf[:])
		for _, k := range w.Kinds(id) {
			c, _ := w.Component(id, k)
			data, err := json.Marshal(c.Export())
			if err != nil {
				return 0, err
			}
			_, _ = h.WriteString(string(k))
			_, _ = h.Write(data)
		}
	}
	return h.Sum64(), nil
}
