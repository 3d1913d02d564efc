package components

import (
	"slices"

	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Room is a locale inside a Structure. Its key is unique within that structure.
type Room struct {
	models.Base

	Key       string
	Tile      string
	Terrain   string
	Structure models.EntityID

	// Exits maps direction to exit entity and is maintained from Exit.Room.
	Exits map[string]models.EntityID
	// Objects located in the room. Derived, not exported.
	Objects EntitySet
}

func NewRoom(structure models.EntityID, key string) *Room {
	return &Room{
		Key:       key,
		Tile:      "O",
		Terrain:   "normal",
		Structure: structure,
		Exits:     make(map[string]models.EntityID),
		Objects:   NewEntitySet(),
	}
}

func (*Room) Kind() models.Kind { return KindRoom }

func (r *Room) Export() models.Export {
	return models.Export{
		"key":       r.Key,
		"structure": uint64(r.Structure),
		"tile":      r.Tile,
		"exits":     exportIndex(r.Exits),
		"terrain":   r.Terrain,
	}
}

// Import restores the cosmetic fields. Key, structure and exits come from the
// static world.
func (r *Room) Import(e models.Export) error {
	if err := importString(e, "tile", &r.Tile); err != nil {
		return err
	}
	return importString(e, "terrain", &r.Terrain)
}

var roomHooks = world.Hooks{
	Validate: func(w *world.World, id models.EntityID, c models.Component) error {
		r := c.(*Room)
		if err := requireKind(w, id, r.Structure, KindStructure, "structure"); err != nil {
			return err
		}
		if s, ok := world.Get[*Structure](w, r.Structure); ok {
			if other, taken := s.Rooms[r.Key]; taken && other != id {
				return world.Violation(RuleRoomKey, id, "structure %d already has room %q (%d)", r.Structure, r.Key, other)
			}
		}
		return nil
	},
	OnAttach: func(w *world.World, id models.EntityID, c models.Component) {
		r := c.(*Room)
		rebuildRoom(w, id, r)
		s, ok := world.Get[*Structure](w, r.Structure)
		if !ok {
			return
		}
		s.Rooms[r.Key] = id
		for o := range r.Objects {
			if !w.Has(o, KindStructure) {
				s.Objects.Add(o)
			}
		}
	},
	OnDetach: func(w *world.World, id models.EntityID, c models.Component) {
		r := c.(*Room)
		s, ok := world.Get[*Structure](w, r.Structure)
		if !ok {
			return
		}
		if s.Rooms[r.Key] == id {
			delete(s.Rooms, r.Key)
		}
		for o := range r.Objects {
			s.Objects.Remove(o)
		}
	},
}

// Exit is a directed link out of a room. Directions are unique per room.
type Exit struct {
	models.Base

	Room      models.EntityID
	Direction string
	// Destination is the target room; None means the exit leads nowhere.
	Destination models.EntityID
	// Gateway mediates traversal; None means no gateway.
	Gateway models.EntityID
}

func NewExit(room models.EntityID, direction string, destination models.EntityID) *Exit {
	return &Exit{Room: room, Direction: direction, Destination: destination}
}

func (*Exit) Kind() models.Kind { return KindExit }

func (e *Exit) Export() models.Export {
	return models.Export{
		"room":        uint64(e.Room),
		"direction":   e.Direction,
		"destination": uint64(e.Destination),
		"gateway":     uint64(e.Gateway),
	}
}

var exitHooks = world.Hooks{
	Validate: func(w *world.World, id models.EntityID, c models.Component) error {
		e := c.(*Exit)
		if err := requireKind(w, id, e.Room, KindRoom, "room"); err != nil {
			return err
		}
		if err := requireKind(w, id, e.Gateway, KindGateway, "gateway"); err != nil {
			return err
		}
		if r, ok := world.Get[*Room](w, e.Room); ok {
			if other, taken := r.Exits[e.Direction]; taken && other != id {
				return world.Violation(RuleExitDirection, id, "room %d already has exit %q (%d)", e.Room, e.Direction, other)
			}
		}
		return nil
	},
	OnAttach: func(w *world.World, id models.EntityID, c models.Component) {
		e := c.(*Exit)
		if r, ok := world.Get[*Room](w, e.Room); ok {
			r.Exits[e.Direction] = id
			r.MarkDirty()
		}
		if g, ok := world.Get[*Gateway](w, e.Gateway); ok {
			g.Exits.Add(id)
			g.MarkDirty()
		}
	},
	OnDetach: func(w *world.World, id models.EntityID, c models.Component) {
		e := c.(*Exit)
		if r, ok := world.Get[*Room](w, e.Room); ok && r.Exits[e.Direction] == id {
			delete(r.Exits, e.Direction)
			r.MarkDirty()
		}
		if g, ok := world.Get[*Gateway](w, e.Gateway); ok {
			g.Exits.Remove(id)
			g.MarkDirty()
		}
	},
}

// RoomExits returns the exits of room ordered by direction.
func RoomExits(w *world.World, room models.EntityID) []models.EntityID {
	r, ok := world.Get[*Room](w, room)
	if !ok {
		return nil
	}
	dirs := make([]string, 0, len(r.Exits))
	for d := range r.Exits {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)
	out := make([]models.EntityID, len(dirs))
	for i, d := range dirs {
		out[i] = r.Exits[d]
	}
	return out
}

// Traversable reports whether exit leads somewhere and its gateway, if any, is open.
func Traversable(w *world.World, exit models.EntityID) bool {
	e, ok := world.Get[*Exit](w, exit)
	if !ok || e.Destination.IsNone() {
		return false
	}
	if e.Gateway.IsNone() {
		return true
	}
	g, ok := world.Get[*Gateway](w, e.Gateway)
	return ok && g.State.Passable()
}
