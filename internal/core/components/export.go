package components

import (
	"fmt"

	"github.com/volundmush/moonsilver/internal/core/models"
)

// importString copies e[key] into dst. Missing keys leave dst untouched.
func importString(e models.Export, key string, dst *string) error {
	v, ok := e[key]
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("%w: %s is %T", models.ErrMalformedExport, key, v)
	}
	*dst = s
	return nil
}

// importSet replaces dst with the strings listed under key. Exports decoded
// from JSON carry []any rather than []string.
func importSet(e models.Export, key string, dst *StringSet) error {
	v, ok := e[key]
	if !ok {
		return nil
	}
	switch items := v.(type) {
	case []string:
		*dst = NewStringSet(items...)
	case []any:
		set := NewStringSet()
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("%w: %s holds %T", models.ErrMalformedExport, key, item)
			}
			set.Add(s)
		}
		*dst = set
	case nil:
		*dst = NewStringSet()
	default:
		return fmt.Errorf("%w: %s is %T", models.ErrMalformedExport, key, v)
	}
	return nil
}
