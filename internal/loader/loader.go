// Package loader builds the static world from a YAML definition during setup.
package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/volundmush/moonsilver/internal/core/components"
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

var ErrInvalidDefinition = errors.New("invalid world definition")

// Definition describes structures with their rooms, exits and gateways, and
// the region tree below the implicit root.
type Definition struct {
	Bundle     string         `yaml:"bundle"`
	Structures []StructureDef `yaml:"structures"`
	Regions    []RegionDef    `yaml:"regions"`

	// Backend, when set, marks every built entity as persisted there under
	// the key "bundle/kind/path".
	Backend models.Backend `yaml:"-"`
}

type StructureDef struct {
	Key string `yaml:"key"`
	// Inside is the key of the enclosing structure; it must be defined earlier.
	Inside   string       `yaml:"inside,omitempty"`
	Gateways []GatewayDef `yaml:"gateways,omitempty"`
	Rooms    []RoomDef    `yaml:"rooms"`
}

type GatewayDef struct {
	Key   string `yaml:"key"`
	State string `yaml:"state,omitempty"`
}

type RoomDef struct {
	Key     string    `yaml:"key"`
	Name    string    `yaml:"name"`
	Desc    string    `yaml:"desc,omitempty"`
	Tile    string    `yaml:"tile,omitempty"`
	Terrain string    `yaml:"terrain,omitempty"`
	Exits   []ExitDef `yaml:"exits,omitempty"`
}

type ExitDef struct {
	Direction string `yaml:"direction"`
	// To names the destination as "room" in the same structure or "structure/room".
	To      string `yaml:"to,omitempty"`
	Gateway string `yaml:"gateway,omitempty"`
}

type RegionDef struct {
	Key      string      `yaml:"key"`
	Children []RegionDef `yaml:"children,omitempty"`
}

// LoadYAML decodes a definition from r.
func LoadYAML(r io.Reader) (*Definition, error) {
	var d Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	if d.Bundle == "" {
		d.Bundle = "static"
	}
	return &d, nil
}

// LoadFile decodes the definition at path.
func LoadFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadYAML(f)
}

// Index maps the symbolic keys of a definition to the entities built for them.
type Index struct {
	Structures map[string]models.EntityID
	// Rooms and Gateways are keyed "structure/key".
	Rooms    map[string]models.EntityID
	Gateways map[string]models.EntityID
	// RootRegion is None when the definition has no regions.
	RootRegion models.EntityID
}

// Build creates every entity of d in w. It must run inside w's exclusive context.
func (d *Definition) Build(w *world.World) (*Index, error) {
	idx := &Index{
		Structures: make(map[string]models.EntityID),
		Rooms:      make(map[string]models.EntityID),
		Gateways:   make(map[string]models.EntityID),
	}

	for _, sd := range d.Structures {
		if err := d.buildStructure(w, idx, sd); err != nil {
			return nil, err
		}
	}
	// Exits go last so destinations may point at any structure.
	for _, sd := range d.Structures {
		for _, rd := range sd.Rooms {
			for _, ed := range rd.Exits {
				if err := d.buildExit(w, idx, sd.Key, rd.Key, ed); err != nil {
					return nil, err
				}
			}
		}
	}

	if len(d.Regions) > 0 {
		root, err := d.entity(w, "region", "", components.NewRegion(models.None, ""))
		if err != nil {
			return nil, err
		}
		idx.RootRegion = root
		if err := d.buildRegions(w, root, "", d.Regions); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (d *Definition) entity(w *world.World, kind, key string, cs ...models.Component) (models.EntityID, error) {
	id, err := w.Create()
	if err != nil {
		return models.None, err
	}
	meta := components.NewMeta(d.Bundle, kind)
	if d.Backend != models.BackendNone {
		meta.DatabaseMode = d.Backend
		meta.DatabaseKey = d.Bundle + "/" + kind
		if key != "" {
			meta.DatabaseKey += "/" + key
		}
	}
	if err := w.Attach(id, meta); err != nil {
		return models.None, err
	}
	for _, c := range cs {
		if err := w.Attach(id, c); err != nil {
			return models.None, err
		}
	}
	return id, nil
}

func (d *Definition) buildStructure(w *world.World, idx *Index, sd StructureDef) error {
	if sd.Key == "" {
		return fmt.Errorf("%w: structure without key", ErrInvalidDefinition)
	}
	if _, dup := idx.Structures[sd.Key]; dup {
		return fmt.Errorf("%w: structure %q defined twice", ErrInvalidDefinition, sd.Key)
	}
	inside := models.None
	if sd.Inside != "" {
		var ok bool
		if inside, ok = idx.Structures[sd.Inside]; !ok {
			return fmt.Errorf("%w: structure %q is inside unknown %q", ErrInvalidDefinition, sd.Key, sd.Inside)
		}
	}
	sid, err := d.entity(w, "structure", sd.Key, components.NewStructure(inside))
	if err != nil {
		return fmt.Errorf("structure %q: %w", sd.Key, err)
	}
	idx.Structures[sd.Key] = sid

	for _, gd := range sd.Gateways {
		g := components.NewGateway(sid)
		if gd.State != "" {
			g.State = components.GatewayState(gd.State)
		}
		gid, err := d.entity(w, "gateway", sd.Key+"/"+gd.Key, g)
		if err != nil {
			return fmt.Errorf("gateway %s/%s: %w", sd.Key, gd.Key, err)
		}
		idx.Gateways[sd.Key+"/"+gd.Key] = gid
	}

	for _, rd := range sd.Rooms {
		room := components.NewRoom(sid, rd.Key)
		if rd.Tile != "" {
			room.Tile = rd.Tile
		}
		if rd.Terrain != "" {
			room.Terrain = rd.Terrain
		}
		obj := components.NewObject(rd.Name)
		obj.InternalDesc = rd.Desc
		rid, err := d.entity(w, "room", sd.Key+"/"+rd.Key, room, obj)
		if err != nil {
			return fmt.Errorf("room %s/%s: %w", sd.Key, rd.Key, err)
		}
		idx.Rooms[sd.Key+"/"+rd.Key] = rid
	}
	return nil
}

func (d *Definition) buildExit(w *world.World, idx *Index, structure, room string, ed ExitDef) error {
	name := fmt.Sprintf("exit %s/%s %s", structure, room, ed.Direction)
	if ed.Direction == "" {
		return fmt.Errorf("%w: %s has no direction", ErrInvalidDefinition, name)
	}
	exit := components.NewExit(idx.Rooms[structure+"/"+room], ed.Direction, models.None)
	if ed.To != "" {
		to := ed.To
		if !strings.Contains(to, "/") {
			to = structure + "/" + to
		}
		dest, ok := idx.Rooms[to]
		if !ok {
			return fmt.Errorf("%w: %s leads to unknown room %q", ErrInvalidDefinition, name, ed.To)
		}
		exit.Destination = dest
	}
	if ed.Gateway != "" {
		g, ok := idx.Gateways[structure+"/"+ed.Gateway]
		if !ok {
			return fmt.Errorf("%w: %s uses unknown gateway %q", ErrInvalidDefinition, name, ed.Gateway)
		}
		exit.Gateway = g
	}

	if _, err := d.entity(w, "exit", structure+"/"+room+"/"+ed.Direction, exit); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (d *Definition) buildRegions(w *world.World, parent models.EntityID, prefix string, defs []RegionDef) error {
	for _, rd := range defs {
		path := prefix + rd.Key
		id, err := d.entity(w, "region", path, components.NewRegion(parent, rd.Key))
		if err != nil {
			return fmt.Errorf("region %q: %w", path, err)
		}
		if err := d.buildRegions(w, id, path+"/", rd.Children); err != nil {
			return err
		}
	}
	return nil
}

// StaticWorld returns a setup hook that loads the definition at path and marks
// what it builds as persisted in backend. An empty path loads nothing.
func StaticWorld(path string, backend models.Backend) func(w *world.World) error {
	return func(w *world.World) error {
		if path == "" {
			return nil
		}
		d, err := LoadFile(path)
		if err != nil {
			return err
		}
		d.Backend = backend
		_, err = d.Build(w)
		return err
	}
}
