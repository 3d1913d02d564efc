package components

import "github.com/volundmush/moonsilver/internal/core/models"

// RealityLayer scopes which events and objects an entity can see or touch.
type RealityLayer struct {
	models.Base

	Exists    StringSet
	Transmits StringSet
	Perceives StringSet
	Interacts StringSet
}

func NewRealityLayer() *RealityLayer {
	return &RealityLayer{
		Exists:    NewStringSet(),
		Transmits: NewStringSet(),
		Perceives: NewStringSet(),
		Interacts: NewStringSet(),
	}
}

func (*RealityLayer) Kind() models.Kind { return KindRealityLayer }

func (r *RealityLayer) Export() models.Export {
	return models.Export{
		"exists":    r.Exists.Sorted(),
		"transmits": r.Transmits.Sorted(),
		"perceives": r.Perceives.Sorted(),
		"interacts": r.Interacts.Sorted(),
	}
}

func (r *RealityLayer) Import(e models.Export) error {
	for key, dst := range map[string]*StringSet{
		"exists":    &r.Exists,
		"transmits": &r.Transmits,
		"perceives": &r.Perceives,
		"interacts": &r.Interacts,
	} {
		if err := importSet(e, key, dst); err != nil {
			return err
		}
	}
	return nil
}
