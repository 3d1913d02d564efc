package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

const keep = `
bundle: keep
structures:
  - key: keep
    gateways:
      - key: gate
        state: closed
    rooms:
      - key: hall
        name: The Great Hall
        desc: Banners hang from the rafters.
        exits:
          - direction: north
            to: yard
            gateway: gate
          - direction: down
            to: cellar/store
      - key: yard
        name: The Yard
        terrain: grass
        exits:
          - direction: south
            to: hall
            gateway: gate
  - key: cellar
    inside: keep
    rooms:
      - key: store
        name: Storeroom
        tile: "#"
regions:
  - key: milky-way
    children:
      - key: sol
      - key: alpha-centauri
`

func build(t *testing.T, src string) (*world.World, *Index, error) {
	t.Helper()
	d, err := LoadYAML(strings.NewReader(src))
	require.NoError(t, err)
	w := components.NewWorld()
	var idx *Index
	err = w.Exclusive(func(w *world.World) (err error) {
		idx, err = d.Build(w)
		return err
	})
	return w, idx, err
}

func TestBuildKeep(t *testing.T) {
	w, idx, err := build(t, keep)
	require.NoError(t, err)

	hall := idx.Rooms["keep/hall"]
	yard := idx.Rooms["keep/yard"]
	store := idx.Rooms["cellar/store"]
	require.False(t, hall.IsNone())

	s, ok := world.Get[*components.Structure](w, idx.Structures["keep"])
	require.True(t, ok)
	assert.Equal(t, hall, s.Rooms["hall"])
	assert.True(t, s.Structures.Contains(idx.Structures["cellar"]))
	assert.True(t, s.Gateways.Contains(idx.Gateways["keep/gate"]))

	r, _ := world.Get[*components.Room](w, hall)
	assert.Equal(t, "O", r.Tile)
	assert.Len(t, components.RoomExits(w, hall), 2)

	down, _ := world.Get[*components.Exit](w, r.Exits["down"])
	assert.Equal(t, store, down.Destination)
	assert.True(t, components.Traversable(w, r.Exits["down"]))
	assert.False(t, components.Traversable(w, r.Exits["north"]), "gate is closed")

	g, _ := world.Get[*components.Gateway](w, idx.Gateways["keep/gate"])
	assert.Equal(t, 2, len(g.Exits))

	yr, _ := world.Get[*components.Room](w, yard)
	assert.Equal(t, "grass", yr.Terrain)
	sr, _ := world.Get[*components.Room](w, store)
	assert.Equal(t, "#", sr.Tile)

	obj, _ := world.Get[*components.Object](w, hall)
	assert.Equal(t, "The Great Hall", obj.Name)
	assert.Equal(t, "Banners hang from the rafters.", obj.InternalDesc)
	meta, _ := world.Get[*components.Meta](w, hall)
	assert.Equal(t, "keep", meta.Bundle)
	assert.Equal(t, "room", meta.EntityKind)
	assert.False(t, meta.Persisted())

	sol, ok := components.ResolveRegion(w, idx.RootRegion, "/milky-way/sol")
	require.True(t, ok)
	assert.Equal(t, "/milky-way/sol", components.RegionPath(w, sol))
	reg, _ := world.Get[*components.Region](w, sol)
	assert.Equal(t, 2, reg.Depth)
}

func TestBuildStampsDatabaseKeys(t *testing.T) {
	d, err := LoadYAML(strings.NewReader(keep))
	require.NoError(t, err)
	d.Backend = models.BackendSQLite
	w := components.NewWorld()
	var idx *Index
	require.NoError(t, w.Exclusive(func(w *world.World) (err error) {
		idx, err = d.Build(w)
		return err
	}))

	key := func(id models.EntityID) string {
		t.Helper()
		meta, ok := world.Get[*components.Meta](w, id)
		require.True(t, ok)
		assert.Equal(t, models.BackendSQLite, meta.DatabaseMode)
		return meta.DatabaseKey
	}
	hall := idx.Rooms["keep/hall"]
	r, _ := world.Get[*components.Room](w, hall)
	sol, _ := components.ResolveRegion(w, idx.RootRegion, "/milky-way/sol")

	assert.Equal(t, "keep/structure/keep", key(idx.Structures["keep"]))
	assert.Equal(t, "keep/gateway/keep/gate", key(idx.Gateways["keep/gate"]))
	assert.Equal(t, "keep/room/keep/hall", key(hall))
	assert.Equal(t, "keep/exit/keep/hall/north", key(r.Exits["north"]))
	assert.Equal(t, "keep/region", key(idx.RootRegion))
	assert.Equal(t, "keep/region/milky-way/sol", key(sol))
}

func TestBuildRejectsBadDefinitions(t *testing.T) {
	cases := map[string]string{
		"duplicate room key": `
structures:
  - key: s
    rooms:
      - {key: hall, name: a}
      - {key: hall, name: b}
`,
		"unknown destination": `
structures:
  - key: s
    rooms:
      - key: hall
        exits: [{direction: north, to: nowhere}]
`,
		"duplicate direction": `
structures:
  - key: s
    rooms:
      - key: hall
        exits: [{direction: north}, {direction: north}]
`,
		"unknown parent": `
structures:
  - {key: s, inside: t}
`,
		"bad gateway state": `
structures:
  - key: s
    gateways: [{key: g, state: ajar}]
`,
		"slash in region key": `
regions:
  - key: a/b
`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := build(t, src)
			assert.Error(t, err)
		})
	}
}

func TestLoadYAMLRejectsUnknownFields(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("structures:\n  - key: s\n    floors: 3\n"))
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	d, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "static", d.Bundle)
}

func TestStaticWorldHook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.yaml")
	require.NoError(t, os.WriteFile(path, []byte(keep), 0o600))

	w := components.NewWorld()
	require.NoError(t, w.Exclusive(func(w *world.World) error { return StaticWorld(path, models.BackendMemory)(w) }))
	assert.Equal(t, 3, w.Count(components.KindRoom))
	assert.Equal(t, 3, w.Count(components.KindExit))
	for id := range w.Query(components.KindMeta).Seq() {
		meta, _ := world.Get[*components.Meta](w, id)
		assert.True(t, meta.Persisted(), "%s %d", meta.EntityKind, id)
	}

	require.NoError(t, w.Exclusive(func(w *world.World) error { return StaticWorld("", models.BackendMemory)(w) }))
	assert.Error(t, w.Exclusive(func(w *world.World) error { return StaticWorld(path+".missing", models.BackendMemory)(w) }))
}
