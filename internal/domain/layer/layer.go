// Package layer defines the layer data model: stubs (partial references
// produced by parsing a link or a document) and descriptors (fully resolved
// registry entries with provenance). Raw document fields are validated here,
// at the registry-write boundary, so the rest of the system never sees
// duck-typed maps.
package layer

// StubKind discriminates the two stub forms in the link grammar.
type StubKind int

const (
	// StubBare is a plain identifier item, e.g. "goa-roads".
	StubBare StubKind = iota
	// StubInline is an object item carrying overrides,
	// e.g. {"id":"rivers","opacity":0.5}.
	StubInline
)

// Stub is a partial layer reference awaiting resolution against the
// registry. OriginalText holds the verbatim item text for inline stubs so
// an unchanged layer round-trips through the link byte-for-byte.
type Stub struct {
	Kind         StubKind
	ID           string
	Overrides    Fields // inline stubs only, includes the id key
	OriginalText string // inline stubs only
}

// Descriptor is a fully resolved registry entry: preset defaults, atlas
// declarations, and stub overrides merged into one record plus provenance.
type Descriptor struct {
	ID               string         `json:"id"`
	Type             string         `json:"type,omitempty"`
	Title            string         `json:"title,omitempty"`
	Description      string         `json:"description,omitempty"`
	Attribution      string         `json:"attribution,omitempty"`
	URL              string         `json:"url,omitempty"`
	Opacity          float64        `json:"opacity"`
	InitiallyChecked *bool          `json:"initiallyChecked,omitempty"`
	Style            map[string]any `json:"style,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`

	// Provenance. SourceAtlas is the atlas that defines the layer,
	// PrefixedID the canonical registry key, OriginalID the bare local id.
	// CrossAtlas entries were declared in one atlas but defined in another;
	// OriginalAtlas names where the definition was found.
	SourceAtlas   string `json:"sourceAtlas,omitempty"`
	PrefixedID    string `json:"prefixedId,omitempty"`
	OriginalID    string `json:"originalId,omitempty"`
	CrossAtlas    bool   `json:"crossAtlasReference,omitempty"`
	OriginalAtlas string `json:"originalAtlas,omitempty"`

	// OriginalText is the verbatim link item this descriptor's state came
	// from, if any. Never serialized to consumers.
	OriginalText string `json:"-"`
}

// Complete reports whether the entry has both a type and a title.
// Incomplete entries are provisional: they were created from a forward
// cross-atlas reference and must be overwritten by the first complete
// definition for the same canonical key.
func (d *Descriptor) Complete() bool {
	return d.Type != "" && d.Title != ""
}

// SameLayer reports whether two descriptors refer to the same underlying
// layer, compared by resolved bare id rather than canonical key. The same
// local id declared by two atlases is the same layer under two keys.
func SameLayer(a, b *Descriptor) bool {
	if a == nil || b == nil {
		return false
	}
	return a.OriginalID == b.OriginalID
}
