package app

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/amche/layerlink/internal/domain/catalog"
	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/amche/layerlink/internal/domain/linkstate"
	"github.com/amche/layerlink/internal/domain/registry"
	"github.com/amche/layerlink/internal/ports"
	"go.uber.org/zap"
)

// Phase names the controller's position in the boot sequence. The catalog
// always settles before any link text is applied.
type Phase string

// Boot phases, in order.
const (
	PhaseIdle           Phase = "idle"
	PhaseLoadingCatalog Phase = "loading-catalog"
	PhaseApplyingURL    Phase = "applying-url"
	PhaseReady          Phase = "ready"
)

// DefaultDebounce is the rewrite coalescing window.
const DefaultDebounce = 300 * time.Millisecond

// LayerState is one row of the controller's live layer list.
type LayerState struct {
	Descriptor *layer.Descriptor
	DisplayID  string // id as it appears (or would appear) in the link
	Checked    bool
	Opacity    float64
	InLink     bool // serialized into the layers parameter
}

// entry is the mutable form of LayerState plus round-trip bookkeeping.
type entry struct {
	desc         *layer.Descriptor
	displayID    string
	checked      bool
	opacity      *float64 // override; nil falls back to the descriptor default
	inLink       bool
	originalText string // verbatim link text, echoed until dirty
	dirty        bool
}

func (e *entry) effectiveOpacity() float64 {
	if e.opacity != nil {
		return *e.opacity
	}
	return e.desc.Opacity
}

// wireOpacity is the value the serializer sees; without an override it is 1,
// which the wire format elides.
func (e *entry) wireOpacity() float64 {
	if e.opacity != nil {
		return *e.opacity
	}
	return 1
}

// SyncConfig holds initialization parameters for a SyncController.
type SyncConfig struct {
	Catalog  *catalog.Catalog
	Registry *registry.Registry
	History  ports.History
	Atlas    string        // active atlas id
	Debounce time.Duration // rewrite coalescing window (default DefaultDebounce)
}

// SyncController keeps the live layer list and the shareable link text in
// step. It owns the only write path to the history: every rewrite is
// debounced, normalized, and byte-compared against the current text, so an
// unchanged state never adds a history entry and a prettified link is never
// reverted to its percent-encoded form.
type SyncController struct {
	catalog  *catalog.Catalog
	registry *registry.Registry
	history  ports.History
	log      *zap.Logger
	debounce time.Duration

	mu        sync.Mutex
	phase     Phase
	atlas     string
	entries   []*entry
	dropped   []string
	timer     *time.Timer
	listeners []func(text string)
}

// NewSyncController creates a controller in the idle phase.
func NewSyncController(cfg SyncConfig, log *zap.Logger) *SyncController {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &SyncController{
		catalog:  cfg.Catalog,
		registry: cfg.Registry,
		history:  cfg.History,
		log:      log.Named("sync"),
		debounce: cfg.Debounce,
		phase:    PhaseIdle,
		atlas:    cfg.Atlas,
	}
}

// Run drives the boot sequence: load the catalog, build the registry, then
// apply whatever link text the history already holds. Returns an error only
// when ctx is canceled; every document-level failure degrades inside the
// catalog instead.
func (s *SyncController) Run(ctx context.Context) error {
	s.setPhase(PhaseLoadingCatalog)
	if err := s.catalog.Initialize(ctx); err != nil {
		return err
	}
	s.registry.Build()

	s.setPhase(PhaseApplyingURL)
	s.Apply(s.history.Current())

	s.setPhase(PhaseReady)
	return nil
}

// Phase returns the controller's current phase.
func (s *SyncController) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Atlas returns the active atlas id.
func (s *SyncController) Atlas() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atlas
}

// SetAtlas changes the active atlas. Takes effect on the next Apply.
func (s *SyncController) SetAtlas(atlasID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atlas = atlasID
}

// OnRewrite registers a listener for accepted rewrites. The listener gets
// the new layers text after the history write, outside the controller lock.
func (s *SyncController) OnRewrite(fn func(text string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Apply replaces the live layer list from a layers parameter text.
//
// The active atlas's declared list is the base order. With stubs present,
// declared entries start unchecked; a stub naming a declared layer
// activates it in place, and a stub naming anything else inserts right
// after the last declared slot a stub matched (front if none yet), keeping
// the link's relative order for additions without disturbing declared
// order. Duplicates collapse to the first occurrence. A stub that resolves
// to nothing is dropped from both state and link, with a diagnostic; that
// narrowing is the only case where the rewritten link says less than the
// incoming one.
func (s *SyncController) Apply(linkText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stubs := linkstate.Tokenize(canonicalLinkText(linkText))
	declared := s.registry.GetAtlasLayers(s.atlas)

	working := make([]*entry, 0, len(declared)+len(stubs))
	for _, d := range declared {
		working = append(working, &entry{
			desc:      d,
			displayID: s.registry.NormalizeLayerID(d.PrefixedID, s.atlas),
			checked:   d.InitiallyChecked != nil && *d.InitiallyChecked,
		})
	}

	if len(stubs) > 0 {
		// the link takes over visibility
		for _, e := range working {
			e.checked = false
		}
	}

	var dropped []string
	insertAt := 0
	for _, st := range stubs {
		desc := s.registry.GetLayer(st.ID, s.atlas)
		if desc == nil {
			dropped = append(dropped, st.ID)
			s.log.Warn("dropping unresolvable layer from link",
				zap.String("id", st.ID), zap.String("atlas", s.atlas))
			continue
		}

		if i := findEntry(working, desc.PrefixedID); i >= 0 {
			e := working[i]
			if e.inLink {
				continue // duplicate, first occurrence wins
			}
			applyStub(e, st)
			insertAt = i + 1
			continue
		}

		e := &entry{desc: desc, displayID: st.ID}
		applyStub(e, st)
		working = append(working, nil)
		copy(working[insertAt+1:], working[insertAt:])
		working[insertAt] = e
		insertAt++
	}

	s.entries = working
	s.dropped = dropped
	s.scheduleRewriteLocked()
}

// SetLayerState updates one layer's toggle state. A layer not yet in the
// live list (a search result, a borrowed cross-atlas layer) is appended.
// Reports false for an id the registry cannot resolve. The rewrite fires
// on the next OnLayersChanged, mirroring how a toggle UI batches a click
// into one notification.
func (s *SyncController) SetLayerState(id string, checked bool, opacity *float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc := s.registry.GetLayer(id, s.atlas)
	if desc == nil {
		s.log.Warn("ignoring state change for unknown layer", zap.String("id", id))
		return false
	}

	i := findEntry(s.entries, desc.PrefixedID)
	if i < 0 {
		s.entries = append(s.entries, &entry{
			desc:      desc,
			displayID: s.registry.NormalizeLayerID(desc.PrefixedID, s.atlas),
		})
		i = len(s.entries) - 1
	}

	e := s.entries[i]
	e.checked = checked
	e.inLink = checked
	if opacity != nil {
		v := *opacity
		e.opacity = &v
	}
	e.dirty = true
	return true
}

// OnLayersChanged schedules a link rewrite reflecting the current state.
// Safe to call in bursts; the debounce window restarts on each call and the
// flush serializes whatever the state is at fire time.
func (s *SyncController) OnLayersChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduleRewriteLocked()
}

// Flush runs any pending rewrite immediately. Used on shutdown so a
// just-toggled layer still lands in the link.
func (s *SyncController) Flush() {
	s.mu.Lock()
	t := s.timer
	s.timer = nil
	s.mu.Unlock()

	if t != nil && t.Stop() {
		s.flushRewrite()
	}
}

// ActiveLayers returns a snapshot of the live layer list in display order.
func (s *SyncController) ActiveLayers() []LayerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LayerState, len(s.entries))
	for i, e := range s.entries {
		out[i] = LayerState{
			Descriptor: e.desc,
			DisplayID:  e.displayID,
			Checked:    e.checked,
			Opacity:    e.effectiveOpacity(),
			InLink:     e.inLink,
		}
	}
	return out
}

// DroppedLayers returns the ids the last Apply could not resolve.
func (s *SyncController) DroppedLayers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.dropped...)
}

// LinkText serializes the current state without touching the history.
func (s *SyncController) LinkText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serializeLocked()
}

func (s *SyncController) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.log.Debug("phase change", zap.String("phase", string(p)))
}

// scheduleRewriteLocked restarts the debounce timer. Restart, not queue:
// the flush serializes the state at fire time, so a burst of changes costs
// one history write. Must be called with s.mu held.
func (s *SyncController) scheduleRewriteLocked() {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.flushRewrite)
}

// flushRewrite serializes the state and writes it to the history unless the
// text is already equivalent modulo percent-encoding.
func (s *SyncController) flushRewrite() {
	s.mu.Lock()
	s.timer = nil
	text := s.serializeLocked()
	current := s.history.Current()
	if canonicalLinkText(text) == canonicalLinkText(current) {
		s.mu.Unlock()
		return
	}
	s.history.Replace(text)
	listeners := append(([]func(string))(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info("link rewritten", zap.Int("bytes", len(text)))
	for _, fn := range listeners {
		fn(text)
	}
}

// serializeLocked builds the layers text from the in-link entries.
// Must be called with s.mu held.
func (s *SyncController) serializeLocked() string {
	var wire []linkstate.Entry
	for _, e := range s.entries {
		if !e.inLink {
			continue
		}
		le := linkstate.Entry{
			DisplayID:    e.displayID,
			OriginalText: e.originalText,
			Opacity:      e.wireOpacity(),
			Dirty:        e.dirty,
		}
		if !e.checked {
			off := false
			le.InitiallyChecked = &off
		}
		wire = append(wire, le)
	}
	return linkstate.Serialize(wire)
}

// canonicalLinkText undoes percent-encoding for comparison, so a link that
// arrived encoded and a rewrite that would emit it plain count as equal.
func canonicalLinkText(text string) string {
	if unescaped, err := url.PathUnescape(text); err == nil {
		return unescaped
	}
	return text
}

// findEntry locates a canonical layer id in the working list.
func findEntry(entries []*entry, canonical string) int {
	for i, e := range entries {
		if e.desc.PrefixedID == canonical {
			return i
		}
	}
	return -1
}

// applyStub marks an entry as link-sourced and folds in its overrides.
// Presence in the link means visible unless the stub says otherwise.
func applyStub(e *entry, st layer.Stub) {
	e.inLink = true
	e.originalText = st.OriginalText
	e.displayID = st.ID
	e.checked = true
	if v, ok := st.Overrides.Opacity(); ok {
		e.opacity = &v
	}
	if v, ok := st.Overrides.InitiallyChecked(); ok {
		e.checked = v
	}
}
