package components

import (
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// RegionLocation places an entity at a point inside a Region.
type RegionLocation struct {
	models.Base

	Region  models.EntityID
	X, Y, Z float64
}

func NewRegionLocation(region models.EntityID, x, y, z float64) *RegionLocation {
	return &RegionLocation{Region: region, X: x, Y: y, Z: z}
}

func (*RegionLocation) Kind() models.Kind { return KindRegionLocation }

func (l *RegionLocation) Export() models.Export {
	return models.Export{"region": uint64(l.Region), "x": l.X, "y": l.Y, "z": l.Z}
}

// RoomLocation places an entity inside a Room.
type RoomLocation struct {
	models.Base

	Room models.EntityID
}

func NewRoomLocation(room models.EntityID) *RoomLocation {
	return &RoomLocation{Room: room}
}

func (*RoomLocation) Kind() models.Kind { return KindRoomLocation }

func (l *RoomLocation) Export() models.Export {
	return models.Export{"room": uint64(l.Room)}
}

// An entity holds at most one location component.
func singleLocation(w *world.World, id models.EntityID, other models.Kind) error {
	if w.Has(id, other) {
		return world.Violation(RuleSingleLocation, id, "entity already holds %s", other)
	}
	return nil
}

var regionLocationHooks = world.Hooks{
	Validate: func(w *world.World, id models.EntityID, c models.Component) error {
		if err := singleLocation(w, id, KindRoomLocation); err != nil {
			return err
		}
		return requireKind(w, id, c.(*RegionLocation).Region, KindRegion, "region")
	},
	OnAttach: func(w *world.World, id models.EntityID, c models.Component) {
		if r, ok := world.Get[*Region](w, c.(*RegionLocation).Region); ok {
			r.Objects.Add(id)
		}
	},
	OnDetach: func(w *world.World, id models.EntityID, c models.Component) {
		if r, ok := world.Get[*Region](w, c.(*RegionLocation).Region); ok {
			r.Objects.Remove(id)
		}
	},
}

var roomLocationHooks = world.Hooks{
	Validate: func(w *world.World, id models.EntityID, c models.Component) error {
		if err := singleLocation(w, id, KindRegionLocation); err != nil {
			return err
		}
		return requireKind(w, id, c.(*RoomLocation).Room, KindRoom, "room")
	},
	OnAttach: func(w *world.World, id models.EntityID, c models.Component) {
		r, ok := world.Get[*Room](w, c.(*RoomLocation).Room)
		if !ok {
			return
		}
		r.Objects.Add(id)
		if s, ok := world.Get[*Structure](w, r.Structure); ok && !w.Has(id, KindStructure) {
			s.Objects.Add(id)
		}
	},
	OnDetach: func(w *world.World, id models.EntityID, c models.Component) {
		r, ok := world.Get[*Room](w, c.(*RoomLocation).Room)
		if !ok {
			return
		}
		r.Objects.Remove(id)
		if s, ok := world.Get[*Structure](w, r.Structure); ok {
			s.Objects.Remove(id)
		}
	},
}

// Location returns the kind and target of id's location component, if any.
func Location(w *world.World, id models.EntityID) (models.Kind, models.EntityID, bool) {
	if l, ok := world.Get[*RoomLocation](w, id); ok {
		return KindRoomLocation, l.Room, true
	}
	if l, ok := world.Get[*RegionLocation](w, id); ok {
		return KindRegionLocation, l.Region, true
	}
	return "", models.None, false
}

// PlaceInRoom moves id into room, replacing whatever location it held.
func PlaceInRoom(w *world.World, id, room models.EntityID) error {
	return place(w, id, NewRoomLocation(room))
}

// PlaceInRegion moves id to a point in region, replacing whatever location it held.
func PlaceInRegion(w *world.World, id, region models.EntityID, x, y, z float64) error {
	return place(w, id, NewRegionLocation(region, x, y, z))
}

func place(w *world.World, id models.EntityID, loc models.Component) error {
	if k, _, ok := Location(w, id); ok {
		return w.Replace(id, k, loc)
	}
	return w.Attach(id, loc)
}
