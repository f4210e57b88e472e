package layer

import "fmt"

// Fields is the raw, JSON-shaped form of a layer as declared in an atlas
// document, a preset entry, or an inline link stub. Values are the usual
// encoding/json types (string, float64, bool, map[string]any, []any, nil).
type Fields map[string]any

// ID returns the declared id, or "" when absent or not a string.
func (f Fields) ID() string {
	s, _ := f["id"].(string)
	return s
}

// Has reports whether the key is present, regardless of value.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Opacity returns the opacity override, if one is present with a usable
// numeric type. Mistyped values read as absent.
func (f Fields) Opacity() (float64, bool) {
	switch v := f["opacity"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// InitiallyChecked returns the checked override, if present as a bool.
func (f Fields) InitiallyChecked() (bool, bool) {
	v, ok := f["initiallyChecked"].(bool)
	return v, ok
}

// Overlay merges two field sets, strong winning over weak. Nested maps are
// merged recursively; every other value (including arrays) is replaced
// wholesale. Neither input is mutated.
func Overlay(strong, weak Fields) Fields {
	return overlayMaps(strong, weak)
}

func overlayMaps(strong, weak map[string]any) map[string]any {
	merged := make(map[string]any, len(weak)+len(strong))
	for k, v := range weak {
		merged[k] = copyValue(v)
	}
	for k, v := range strong {
		if sm, ok := v.(map[string]any); ok {
			if wm, ok := merged[k].(map[string]any); ok {
				merged[k] = overlayMaps(sm, wm)
				continue
			}
		}
		merged[k] = copyValue(v)
	}
	return merged
}

// copyValue deep-copies JSON-shaped values so merged results never alias
// their inputs.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}

// Keys handled explicitly by FromFields; everything else lands in Extra.
var knownFieldKeys = map[string]bool{
	"id": true, "type": true, "title": true, "name": true,
	"description": true, "attribution": true, "url": true,
	"opacity": true, "initiallyChecked": true, "style": true,
}

// FromFields validates raw fields into a Descriptor. The id must be a
// non-empty string, opacity numeric, initiallyChecked boolean. Opacity
// defaults to 1. Title falls back to the name field. Unrecognized keys are
// preserved in Extra. Provenance fields are left for the registry to fill.
func FromFields(f Fields) (*Descriptor, error) {
	id := f.ID()
	if id == "" {
		return nil, fmt.Errorf("layer entry has no usable id")
	}

	d := &Descriptor{ID: id, Opacity: 1}

	var err error
	if d.Type, err = optString(f, "type"); err != nil {
		return nil, fmt.Errorf("layer %q: %w", id, err)
	}
	if d.Title, err = optString(f, "title"); err != nil {
		return nil, fmt.Errorf("layer %q: %w", id, err)
	}
	if d.Title == "" {
		if d.Title, err = optString(f, "name"); err != nil {
			return nil, fmt.Errorf("layer %q: %w", id, err)
		}
	}
	if d.Description, err = optString(f, "description"); err != nil {
		return nil, fmt.Errorf("layer %q: %w", id, err)
	}
	if d.Attribution, err = optString(f, "attribution"); err != nil {
		return nil, fmt.Errorf("layer %q: %w", id, err)
	}
	if d.URL, err = optString(f, "url"); err != nil {
		return nil, fmt.Errorf("layer %q: %w", id, err)
	}

	if v, ok := f["opacity"]; ok {
		switch n := v.(type) {
		case float64:
			d.Opacity = n
		case int:
			d.Opacity = float64(n)
		default:
			return nil, fmt.Errorf("layer %q: opacity must be numeric, got %T", id, v)
		}
	}

	if v, ok := f["initiallyChecked"]; ok {
		b, isBool := v.(bool)
		if !isBool {
			return nil, fmt.Errorf("layer %q: initiallyChecked must be a boolean, got %T", id, v)
		}
		d.InitiallyChecked = &b
	}

	if v, ok := f["style"]; ok {
		m, isMap := v.(map[string]any)
		if !isMap {
			return nil, fmt.Errorf("layer %q: style must be an object, got %T", id, v)
		}
		d.Style = copyValue(m).(map[string]any)
	}

	for k, v := range f {
		if knownFieldKeys[k] {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]any)
		}
		d.Extra[k] = copyValue(v)
	}

	return d, nil
}

// optString reads a string field, tolerating absence but not a wrong type.
func optString(f Fields, key string) (string, error) {
	v, ok := f[key]
	if !ok {
		return "", nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", fmt.Errorf("%s must be a string, got %T", key, v)
	}
	return s, nil
}
