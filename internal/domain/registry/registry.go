// Package registry builds and owns the identifier→descriptor registry.
// Declared layers from every atlas are registered in document order, bare
// references are overlaid onto the shared preset library, and forward
// cross-atlas references are fixed up in a single pass once all atlases
// have loaded. The registry is the sole writer of descriptors; consumers
// get read-only lookups.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/amche/layerlink/internal/domain/ident"
	"github.com/amche/layerlink/internal/domain/layer"
	"go.uber.org/zap"
)

// Source is the slice of the catalog the registry reads: known ids for
// prefix detection, declared layer lists, and the preset library.
type Source interface {
	AtlasIDs() []string
	KnownAtlases() map[string]bool
	DeclaredLayers(atlasID string) []layer.Fields
	Preset(id string) layer.Fields
}

// entry holds a descriptor plus the atlas that registered it.
type entry struct {
	desc  *layer.Descriptor
	atlas string // registering atlas
}

// Registry resolves layer references into descriptors keyed by canonical
// prefixed id.
type Registry struct {
	src Source
	log *zap.Logger

	mu      sync.RWMutex
	known   map[string]bool
	entries map[string]*entry
	byAtlas map[string][]string // registering atlas -> canonical ids, document order
}

// New creates an empty registry over a catalog source.
func New(src Source, log *zap.Logger) *Registry {
	return &Registry{
		src:     src,
		log:     log.Named("registry"),
		known:   make(map[string]bool),
		entries: make(map[string]*entry),
		byAtlas: make(map[string][]string),
	}
}

// Build registers every declared layer of every loaded atlas in document
// order, then resolves cross-atlas references. Calling Build again discards
// the previous registry and rebuilds from the current catalog state.
func (r *Registry) Build() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known = r.src.KnownAtlases()
	r.entries = make(map[string]*entry)
	r.byAtlas = make(map[string][]string)

	for _, atlasID := range r.src.AtlasIDs() {
		for _, fields := range r.src.DeclaredLayers(atlasID) {
			r.registerLocked(fields, atlasID)
		}
	}
	r.resolveLocked()

	r.log.Info("registry built",
		zap.Int("entries", len(r.entries)),
		zap.Int("complete", r.completeCountLocked()))
}

// Register adds one declared layer for an atlas. Exposed for incremental
// use; Build is the usual path.
func (r *Registry) Register(fields layer.Fields, atlasID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.known) == 0 {
		r.known = r.src.KnownAtlases()
	}
	r.registerLocked(fields, atlasID)
}

// ResolveCrossAtlasReferences runs the fix-up pass over incomplete entries.
// Safe to call more than once; entries already complete are untouched.
func (r *Registry) ResolveCrossAtlasReferences() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked()
}

// registerLocked applies the completeness tie-break for one declared layer.
// A declared id carrying a foreign known-atlas prefix marks the entry as a
// cross-atlas reference; that provenance survives later tie-breaks in either
// registration order, so the final registry is order-independent.
// Must be called with r.mu held.
func (r *Registry) registerLocked(fields layer.Fields, atlasID string) {
	id := fields.ID()
	if id == "" {
		r.log.Warn("skipping layer without id", zap.String("atlas", atlasID))
		return
	}

	// bare references inherit preset defaults, declared fields win
	working := fields
	if !fields.Has("type") {
		if preset := r.src.Preset(id); preset != nil {
			working = layer.Overlay(fields, preset)
		}
	}

	canonical := ident.Prefix(id, atlasID, r.known)
	token, rem := ident.SplitPrefix(id)
	prefixed := rem != "" && r.known[token]
	source := atlasID
	if prefixed {
		source = token
	}
	isRef := prefixed && token != atlasID

	desc, err := layer.FromFields(working)
	if err != nil {
		r.log.Warn("skipping malformed layer", zap.String("atlas", atlasID), zap.Error(err))
		return
	}
	desc.PrefixedID = canonical
	desc.SourceAtlas = source
	desc.OriginalID = desc.ID
	if prefixed {
		desc.OriginalID = rem
	}
	if isRef {
		desc.CrossAtlas = true
		desc.OriginalAtlas = source
	}

	r.noteDeclaredLocked(atlasID, canonical)

	existing, ok := r.entries[canonical]
	switch {
	case !ok:
		r.entries[canonical] = &entry{desc: desc, atlas: atlasID}
	case existing.desc.Complete():
		// first complete definition wins; reference provenance accumulates
		r.tagReferenceLocked(existing.desc, desc)
	case desc.Complete():
		// a complete definition overwrites a provisional stub
		r.tagReferenceLocked(desc, existing.desc)
		r.entries[canonical] = &entry{desc: desc, atlas: atlasID}
	default:
		// both incomplete: the first stays
		r.tagReferenceLocked(existing.desc, desc)
	}
}

// tagReferenceLocked carries cross-atlas provenance from a displaced or
// skipped registration onto the surviving entry. Must be called with r.mu
// held.
func (r *Registry) tagReferenceLocked(survivor, other *layer.Descriptor) {
	if survivor.CrossAtlas || !other.CrossAtlas {
		return
	}
	survivor.CrossAtlas = true
	survivor.OriginalAtlas = other.OriginalAtlas
}

// noteDeclaredLocked records canonical in the atlas's document-order list.
// Must be called with r.mu held.
func (r *Registry) noteDeclaredLocked(atlasID, canonical string) {
	for _, have := range r.byAtlas[atlasID] {
		if have == canonical {
			return
		}
	}
	r.byAtlas[atlasID] = append(r.byAtlas[atlasID], canonical)
}

// resolveLocked is the cross-atlas fix-up: one sweep, in sorted key order
// for determinism, over incomplete entries whose key carries a separator.
// The prefix token names the candidate source atlas; the remainder is
// looked up in that atlas's declared list. A cycle simply leaves both ends
// incomplete. Must be called with r.mu held.
func (r *Registry) resolveLocked() {
	var worklist []string
	for key, e := range r.entries {
		if e.desc.Complete() {
			continue
		}
		if _, rem := ident.SplitPrefix(key); rem != "" {
			worklist = append(worklist, key)
		}
	}
	sort.Strings(worklist)

	for _, key := range worklist {
		token, rem := ident.SplitPrefix(key)

		var src layer.Fields
		for _, f := range r.src.DeclaredLayers(token) {
			if f.ID() == rem {
				src = f
				break
			}
		}
		if src == nil {
			r.log.Debug("cross-atlas reference unresolved",
				zap.String("id", key), zap.String("sourceAtlas", token))
			continue
		}

		// the full merged descriptor is exactly what the source atlas would
		// register: its declared fields over the preset defaults
		merged := src
		if !src.Has("type") {
			if preset := r.src.Preset(rem); preset != nil {
				merged = layer.Overlay(src, preset)
			}
		}

		desc, err := layer.FromFields(merged)
		if err != nil {
			r.log.Warn("cross-atlas source malformed",
				zap.String("id", key), zap.Error(err))
			continue
		}
		desc.PrefixedID = key
		desc.SourceAtlas = token
		desc.OriginalID = desc.ID
		desc.CrossAtlas = true
		desc.OriginalAtlas = token

		r.entries[key].desc = desc
	}
}

// completeCountLocked counts resolvable entries. Must be called with r.mu
// held.
func (r *Registry) completeCountLocked() int {
	n := 0
	for _, e := range r.entries {
		if e.desc.Complete() {
			n++
		}
	}
	return n
}

// GetLayer looks up a descriptor: "{contextAtlas}-{id}" first, then the id
// verbatim, then the preset library by bare id. Returns nil on a miss with
// a diagnostic, never an error. Incomplete entries are misses.
func (r *Registry) GetLayer(id, contextAtlas string) *layer.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if contextAtlas != "" {
		if e, ok := r.entries[contextAtlas+ident.Separator+id]; ok && e.desc.Complete() {
			return e.desc
		}
	}
	if e, ok := r.entries[id]; ok && e.desc.Complete() {
		return e.desc
	}
	if preset := r.src.Preset(id); preset != nil {
		if desc, err := layer.FromFields(preset); err == nil {
			desc.PrefixedID = id
			desc.OriginalID = desc.ID
			return desc
		}
	}

	r.log.Warn("unknown layer",
		zap.String("id", id), zap.String("contextAtlas", contextAtlas))
	return nil
}

// GetAtlasLayers returns the resolvable descriptors declared by one atlas
// in document order. Unresolved forward references are omitted.
func (r *Registry) GetAtlasLayers(atlasID string) []*layer.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := r.byAtlas[atlasID]
	out := make([]*layer.Descriptor, 0, len(keys))
	for _, key := range keys {
		if e, ok := r.entries[key]; ok && e.desc.Complete() {
			out = append(out, e.desc)
		}
	}
	return out
}

// SearchLayers finds complete entries whose id, title, or description
// contains the term, case-insensitively. excludeAtlas drops layers defined
// by that atlas, so a viewer can search for layers to borrow from others.
// Results come back sorted by canonical id for stable output.
func (r *Registry) SearchLayers(term, excludeAtlas string) []*layer.Descriptor {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var out []*layer.Descriptor
	for _, key := range keys {
		e := r.entries[key]
		if !e.desc.Complete() {
			continue
		}
		if excludeAtlas != "" && e.desc.SourceAtlas == excludeAtlas {
			continue
		}
		if strings.Contains(strings.ToLower(e.desc.ID), term) ||
			strings.Contains(strings.ToLower(e.desc.Title), term) ||
			strings.Contains(strings.ToLower(e.desc.Description), term) {
			out = append(out, e.desc)
		}
	}
	return out
}

// NormalizeLayerID strips the context atlas prefix for display.
func (r *Registry) NormalizeLayerID(id, contextAtlas string) string {
	return ident.Normalize(id, contextAtlas)
}

// PrefixedLayerID computes the canonical id a bare reference resolves to in
// a context atlas.
func (r *Registry) PrefixedLayerID(id, contextAtlas string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ident.Prefix(id, contextAtlas, r.known)
}

// IsSameLayer reports whether two descriptors name the same underlying
// layer, by resolved bare id rather than canonical key.
func (r *Registry) IsSameLayer(a, b *layer.Descriptor) bool {
	return layer.SameLayer(a, b)
}

// Count returns the number of resolvable entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.completeCountLocked()
}
