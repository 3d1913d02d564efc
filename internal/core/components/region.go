package components

import (
	"strings"

	"github.com/volundmush/moonsilver/internal/core/models"
	"github.com/volundmush/moonsilver/internal/core/world"
)

// Region is a node in the hierarchical spatial namespace: the root, galaxies,
// sectors, wilderness. The root has depth 0 and no key; every other region has
// a key unique among its siblings.
type Region struct {
	models.Base

	Key    string
	Parent models.EntityID
	// Depth is derived from the parent when attached.
	Depth int

	Children map[string]models.EntityID
	// Objects located in the region. Child regions are not objects.
	Objects EntitySet
}

func NewRegion(parent models.EntityID, key string) *Region {
	return &Region{
		Key:      key,
		Parent:   parent,
		Children: make(map[string]models.EntityID),
		Objects:  NewEntitySet(),
	}
}

func (*Region) Kind() models.Kind { return KindRegion }

func (r *Region) Export() models.Export {
	return models.Export{
		"key":    r.Key,
		"parent": uint64(r.Parent),
		"depth":  r.Depth,
	}
}

var regionHooks = world.Hooks{
	Validate: func(w *world.World, id models.EntityID, c models.Component) error {
		r := c.(*Region)
		if r.Parent.IsNone() {
			if r.Key != "" {
				return world.Violation(RuleRegionKey, id, "root region must not have a key")
			}
			return nil
		}
		if r.Key == "" || strings.Contains(r.Key, "/") {
			return world.Violation(RuleRegionKey, id, "invalid region key %q", r.Key)
		}
		if err := requireKind(w, id, r.Parent, KindRegion, "parent"); err != nil {
			return err
		}
		for cur := r.Parent; !cur.IsNone(); {
			if cur == id {
				return world.Violation(RuleContainment, id, "region would be its own ancestor")
			}
			p, ok := world.Get[*Region](w, cur)
			if !ok {
				break
			}
			cur = p.Parent
		}
		parent, _ := world.Get[*Region](w, r.Parent)
		if other, taken := parent.Children[r.Key]; taken && other != id {
			return world.Violation(RuleRegionKey, id, "region %d already has child %q (%d)", r.Parent, r.Key, other)
		}
		return nil
	},
	OnAttach: func(w *world.World, id models.EntityID, c models.Component) {
		r := c.(*Region)
		rebuildRegion(w, id, r)
		r.Depth = 0
		if parent, ok := world.Get[*Region](w, r.Parent); ok {
			parent.Children[r.Key] = id
			r.Depth = parent.Depth + 1
		}
		propagateDepth(w, r)
	},
	OnDetach: func(w *world.World, id models.EntityID, c models.Component) {
		r := c.(*Region)
		if parent, ok := world.Get[*Region](w, r.Parent); ok && parent.Children[r.Key] == id {
			delete(parent.Children, r.Key)
		}
	},
}

// RegionPath returns the URL-like path of region from the root, e.g. "/milky-way/sol".
// The root's path is "/".
func RegionPath(w *world.World, region models.EntityID) string {
	var keys []string
	for cur := region; !cur.IsNone(); {
		r, ok := world.Get[*Region](w, cur)
		if !ok {
			break
		}
		if r.Key != "" {
			keys = append(keys, r.Key)
		}
		cur = r.Parent
	}
	var b strings.Builder
	for i := len(keys) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(keys[i])
	}
	if b.Len() == 0 {
		return "/"
	}
	return b.String()
}

// ResolveRegion walks path down from root and returns the matching region.
func ResolveRegion(w *world.World, root models.EntityID, path string) (models.EntityID, bool) {
	cur := root
	for _, key := range strings.Split(strings.Trim(path, "/"), "/") {
		if key == "" {
			continue
		}
		r, ok := world.Get[*Region](w, cur)
		if !ok {
			return models.None, false
		}
		if cur, ok = r.Children[key]; !ok {
			return models.None, false
		}
	}
	return cur, w.Has(cur, KindRegion)
}
