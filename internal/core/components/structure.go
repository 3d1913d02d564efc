package components

import (
	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Structure bundles rooms, exits and gateways into one space. Structures nest;
// the nesting never forms a cycle.
type Structure struct {
	models.Base

	// Inside is the enclosing structure, or None.
	Inside models.EntityID

	// Indexes below are derived and never exported.
	Structures EntitySet
	Rooms      map[string]models.EntityID
	Gateways   EntitySet
	// Objects located directly in this structure's rooms, excluding nested structures.
	Objects EntitySet
}

func NewStructure(inside models.EntityID) *Structure {
	return &Structure{
		Inside:     inside,
		Structures: NewEntitySet(),
		Rooms:      make(map[string]models.EntityID),
		Gateways:   NewEntitySet(),
		Objects:    NewEntitySet(),
	}
}

func (*Structure) Kind() models.Kind { return KindStructure }

func (s *Structure) Export() models.Export {
	return models.Export{"inside": uint64(s.Inside)}
}

var structureHooks = world.Hooks{
	Validate: func(w *world.World, id models.EntityID, c models.Component) error {
		s := c.(*Structure)
		if err := requireKind(w, id, s.Inside, KindStructure, "inside"); err != nil {
			return err
		}
		for cur := s.Inside; !cur.IsNone(); {
			if cur == id {
				return world.Violation(RuleContainment, id, "structure would contain itself")
			}
			parent, ok := world.Get[*Structure](w, cur)
			if !ok {
				break
			}
			cur = parent.Inside
		}
		return nil
	},
	OnAttach: func(w *world.World, id models.EntityID, c models.Component) {
		s := c.(*Structure)
		rebuildStructure(w, id, s)
		if parent, ok := world.Get[*Structure](w, s.Inside); ok {
			parent.Structures.Add(id)
		}
	},
	OnDetach: func(w *world.World, id models.EntityID, c models.Component) {
		if parent, ok := world.Get[*Structure](w, c.(*Structure).Inside); ok {
			parent.Structures.Remove(id)
		}
	},
}
