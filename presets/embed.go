// Package presets embeds the static catalog data compiled into the binary:
// the fallback atlas index used when the live index document is unreachable,
// the fallback shared preset library, and the atlas document envelope schema.
//
// Usage:
//
//	catalog.New(fetcher, cfg, log) // falls back to presets.IndexDocument()
package presets

import (
	_ "embed"
)

//go:embed v1/atlases.json
var indexJSON []byte

//go:embed v1/layer-presets.json
var libraryJSON []byte

//go:embed v1/atlas.schema.json
var schemaJSON []byte

// IndexDocument returns the embedded fallback index document listing known
// atlas ids.
func IndexDocument() []byte {
	return indexJSON
}

// Library returns the embedded fallback preset library.
func Library() []byte {
	return libraryJSON
}

// Schema returns the atlas document envelope schema source.
func Schema() string {
	return string(schemaJSON)
}
