package linkstate

import (
	"encoding/json"
	"strings"
)

// Entry is one active layer in display order, ready for serialization.
// DisplayID is already normalized for the viewing atlas. Dirty marks a
// display-time override (the user changed state after the text was parsed),
// which forfeits the verbatim echo.
type Entry struct {
	DisplayID        string
	OriginalText     string
	Opacity          float64
	InitiallyChecked *bool
	Dirty            bool
}

// wireItem is the minimal object form of a serialized entry. Field order is
// fixed by the struct, so output is stable across runs.
type wireItem struct {
	ID               string   `json:"id"`
	Opacity          *float64 `json:"opacity,omitempty"`
	InitiallyChecked *bool    `json:"initiallyChecked,omitempty"`
}

// Serialize renders active layer state back into parameter text. Unchanged
// entries echo their original item text byte-for-byte. Everything else
// becomes either a bare id or a minified object holding only the id and
// non-default overrides (opacity other than 1, an explicit
// initiallyChecked). The result is joined with commas and never
// percent-encoded, keeping the link human-readable.
func Serialize(entries []Entry) string {
	items := make([]string, 0, len(entries))
	for _, e := range entries {
		items = append(items, serializeEntry(e))
	}
	return strings.Join(items, ",")
}

func serializeEntry(e Entry) string {
	if e.OriginalText != "" && !e.Dirty {
		return e.OriginalText
	}

	item := wireItem{ID: e.DisplayID, InitiallyChecked: e.InitiallyChecked}
	if e.Opacity != 1 {
		op := e.Opacity
		item.Opacity = &op
	}
	if item.Opacity == nil && item.InitiallyChecked == nil {
		return e.DisplayID
	}

	data, _ := json.Marshal(item)
	return string(data)
}
