// Package ident implements the canonical layer identifier scheme.
// Every layer in the registry is addressable by exactly one prefixed
// identifier "{atlasId}-{localId}". The same local id declared by two
// atlases yields two distinct canonical keys, so names never collide.
package ident

import "strings"

// Separator joins an atlas id to a local layer id.
const Separator = "-"

// Prefix computes the canonical identifier for a layer declared in atlasID.
// If localID already carries a known atlas id as its prefix token, it is a
// cross-atlas reference and is returned unchanged. Otherwise the owning
// atlas id is prepended.
//
// Prefix is idempotent: a canonical id round-trips unchanged as long as its
// atlas is in known.
func Prefix(localID, atlasID string, known map[string]bool) string {
	token, remainder := SplitPrefix(localID)
	if remainder != "" && known[token] {
		return localID
	}
	return atlasID + Separator + localID
}

// Normalize converts a canonical id to its display form within contextAtlas:
// the context prefix is stripped so links for the atlas being viewed stay
// short. Foreign prefixes are kept visible.
func Normalize(canonicalID, contextAtlas string) string {
	if contextAtlas == "" {
		return canonicalID
	}
	return strings.TrimPrefix(canonicalID, contextAtlas+Separator)
}

// SplitPrefix splits a canonical id on the first separator only.
// "goa-river-basins" yields ("goa", "river-basins"). An id with no
// separator yields (id, "").
func SplitPrefix(canonicalID string) (token, remainder string) {
	i := strings.Index(canonicalID, Separator)
	if i < 0 {
		return canonicalID, ""
	}
	return canonicalID[:i], canonicalID[i+len(Separator):]
}
