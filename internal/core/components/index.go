package components

import (
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// The rebuild functions below run when a parent component is attached. They
// replace its derived indexes with what the children currently stored in the
// world say, so a parent that was detached and attached again, or replaced by
// a fresh or zero-value component, sees every child that still refers to it.
// If two children claim the same key the lowest entity wins.

func keep(index map[string]models.EntityID, key string, id models.EntityID) {
	if other, taken := index[key]; !taken || id < other {
		index[key] = id
	}
}

func rebuildStructure(w *world.World, id models.EntityID, s *Structure) {
	s.Structures = NewEntitySet()
	s.Rooms = make(map[string]models.EntityID)
	s.Gateways = NewEntitySet()
	s.Objects = NewEntitySet()

	for cid, c := range world.StorageOf[*Structure](w).All() {
		if c.Inside == id {
			s.Structures.Add(cid)
		}
	}
	for rid, r := range world.StorageOf[*Room](w).All() {
		if r.Structure != id {
			continue
		}
		keep(s.Rooms, r.Key, rid)
		for o := range r.Objects {
			if !w.Has(o, KindStructure) {
				s.Objects.Add(o)
			}
		}
	}
	for gid, g := range world.StorageOf[*Gateway](w).All() {
		if g.Structure == id {
			s.Gateways.Add(gid)
		}
	}
}

func rebuildRoom(w *world.World, id models.EntityID, r *Room) {
	r.Exits = make(map[string]models.EntityID)
	r.Objects = NewEntitySet()

	for eid, e := range world.StorageOf[*Exit](w).All() {
		if e.Room == id {
			keep(r.Exits, e.Direction, eid)
		}
	}
	for oid, l := range world.StorageOf[*RoomLocation](w).All() {
		if l.Room == id {
			r.Objects.Add(oid)
		}
	}
}

func rebuildRegion(w *world.World, id models.EntityID, r *Region) {
	r.Children = make(map[string]models.EntityID)
	r.Objects = NewEntitySet()

	for cid, c := range world.StorageOf[*Region](w).All() {
		if c.Parent == id && cid != id {
			keep(r.Children, c.Key, cid)
		}
	}
	for oid, l := range world.StorageOf[*RegionLocation](w).All() {
		if l.Region == id {
			r.Objects.Add(oid)
		}
	}
}

// propagateDepth fixes the depth of every descendant of r.
func propagateDepth(w *world.World, r *Region) {
	for _, cid := range r.Children {
		child, ok := world.Get[*Region](w, cid)
		if !ok {
			continue
		}
		if child.Depth != r.Depth+1 {
			child.Depth = r.Depth + 1
			child.MarkDirty()
		}
		propagateDepth(w, child)
	}
}

func rebuildGateway(w *world.World, id models.EntityID, g *Gateway) {
	g.Exits = NewEntitySet()
	for eid, e := range world.StorageOf[*Exit](w).All() {
		if e.Gateway == id {
			g.Exits.Add(eid)
		}
	}
}
