package components

import "github.com/volundmush/moonsilver/internal/core/models"

// Object is held by every entity with a physical presence: items, characters,
// rooms and exits alike. If it can be looked at, it has one of these.
type Object struct {
	models.Base

	Name       string
	ColorName  string
	KeyWords   StringSet
	Alias      string
	AliasWords StringSet
	// ShortDesc is shown when the object is listed in a room.
	ShortDesc string
	// InternalDesc is seen from inside the object; a room's description is internal.
	InternalDesc string
	// ExternalDesc is seen when looking at the object.
	ExternalDesc string
}

func NewObject(name string) *Object {
	return &Object{
		Name:       name,
		KeyWords:   NewStringSet(),
		AliasWords: NewStringSet(),
	}
}

func (*Object) Kind() models.Kind { return KindObject }

func (o *Object) Export() models.Export {
	return models.Export{
		"name":          o.Name,
		"color_name":    o.ColorName,
		"key_words":     o.KeyWords.Sorted(),
		"alias":         o.Alias,
		"alias_words":   o.AliasWords.Sorted(),
		"short_desc":    o.ShortDesc,
		"internal_desc": o.InternalDesc,
		"external_desc": o.ExternalDesc,
	}
}

func (o *Object) Import(e models.Export) error {
	for key, dst := range map[string]*string{
		"name":          &o.Name,
		"color_name":    &o.ColorName,
		"alias":         &o.Alias,
		"short_desc":    &o.ShortDesc,
		"internal_desc": &o.InternalDesc,
		"external_desc": &o.ExternalDesc,
	} {
		if err := importString(e, key, dst); err != nil {
			return err
		}
	}
	if err := importSet(e, "key_words", &o.KeyWords); err != nil {
		return err
	}
	return importSet(e, "alias_words", &o.AliasWords)
}
