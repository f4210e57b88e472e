// Package catalog loads and owns the raw atlas documents: the top-level
// index enumerating known atlases, every atlas configuration document, and
// the shared preset library. All fetches happen in one concurrent batch
// inside Initialize; afterwards the catalog serves in-memory reads only.
// The catalog owns raw documents only; resolution lives in the registry,
// which reads declared layer lists from here.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/amche/layerlink/internal/ports"
	"github.com/amche/layerlink/presets"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds the document sources. AtlasURLTemplate receives the atlas id
// via %s. Empty URLs disable their fetch: an empty IndexURL goes straight to
// the fallback list, an empty PresetsURL uses the embedded library.
type Config struct {
	IndexURL         string
	AtlasURLTemplate string
	PresetsURL       string
	FallbackAtlases  []string
}

// Metadata is the display metadata of one atlas.
type Metadata struct {
	Color          string
	Name           string
	AreaOfInterest string
	Bbox           *orb.Bound
}

// Catalog fetches and stores atlas documents and the preset library.
// Create once at startup, Initialize once, then read concurrently.
type Catalog struct {
	fetcher ports.Fetcher
	cfg     Config
	log     *zap.Logger

	initOnce sync.Once

	mu       sync.RWMutex
	ready    bool
	atlasIDs []string // index order, then arrival order for extras
	known    map[string]bool
	docs     map[string]*Document
	presets  map[string]layer.Fields
}

// New creates a Catalog. No I/O happens until Initialize.
func New(fetcher ports.Fetcher, cfg Config, log *zap.Logger) *Catalog {
	return &Catalog{
		fetcher: fetcher,
		cfg:     cfg,
		log:     log.Named("catalog"),
		known:   make(map[string]bool),
		docs:    make(map[string]*Document),
		presets: make(map[string]layer.Fields),
	}
}

// Initialize loads the index, every listed atlas document, and the preset
// library. Atlas and library fetches run concurrently; each failure is
// logged and skipped, never fatal. Repeated calls after the first are
// no-ops. The only error returned is context cancellation.
func (c *Catalog) Initialize(ctx context.Context) error {
	var err error
	c.initOnce.Do(func() {
		err = c.initialize(ctx)
	})
	return err
}

func (c *Catalog) initialize(ctx context.Context) error {
	ids := c.loadIndex(ctx)

	var (
		docsMu sync.Mutex
		docs   = make(map[string]*Document, len(ids))
		lib    map[string]layer.Fields
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			doc, err := c.fetchDocument(gctx, id)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				c.log.Warn("atlas skipped", zap.String("atlas", id), zap.Error(err))
				return nil
			}
			docsMu.Lock()
			docs[doc.ID] = doc
			docsMu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		lib = c.loadPresets(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("catalog initialize: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		if !c.known[id] {
			c.known[id] = true
			c.atlasIDs = append(c.atlasIDs, id)
		}
	}
	for id, doc := range docs {
		// documents loaded explicitly before the batch (LoadDir) keep priority
		if _, exists := c.docs[id]; !exists {
			c.docs[id] = doc
		}
	}
	c.presets = lib
	c.ready = true

	c.log.Info("catalog ready",
		zap.Int("known", len(c.atlasIDs)),
		zap.Int("loaded", len(c.docs)),
		zap.Int("presets", len(c.presets)))
	return nil
}

// loadIndex fetches the top-level index document. An unreachable or
// malformed index degrades to the configured fallback list, then to the
// embedded one.
func (c *Catalog) loadIndex(ctx context.Context) []string {
	if c.cfg.IndexURL != "" {
		data, err := c.fetcher.FetchJSON(ctx, c.cfg.IndexURL)
		if err == nil {
			if ids := parseIndex(data); len(ids) > 0 {
				return ids
			}
			c.log.Warn("index document lists no atlases", zap.String("url", c.cfg.IndexURL))
		} else {
			c.log.Warn("index document unreachable", zap.String("url", c.cfg.IndexURL), zap.Error(err))
		}
	}

	if len(c.cfg.FallbackAtlases) > 0 {
		return c.cfg.FallbackAtlases
	}
	return parseIndex(presets.IndexDocument())
}

// loadPresets fetches the shared preset library, falling back to the
// embedded copy.
func (c *Catalog) loadPresets(ctx context.Context) map[string]layer.Fields {
	if c.cfg.PresetsURL != "" {
		data, err := c.fetcher.FetchJSON(ctx, c.cfg.PresetsURL)
		if err == nil {
			return parsePresetLibrary(data, c.log)
		}
		c.log.Warn("preset library unreachable, using embedded fallback",
			zap.String("url", c.cfg.PresetsURL), zap.Error(err))
	}
	return parsePresetLibrary(presets.Library(), c.log)
}

func (c *Catalog) fetchDocument(ctx context.Context, id string) (*Document, error) {
	if c.cfg.AtlasURLTemplate == "" {
		return nil, fmt.Errorf("no atlas url template configured")
	}
	url := fmt.Sprintf(c.cfg.AtlasURLTemplate, id)
	data, err := c.fetcher.FetchJSON(ctx, url)
	if err != nil {
		return nil, err
	}
	return ParseDocument(id, data, c.log)
}

// Ready reports whether Initialize has completed.
func (c *Catalog) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// AtlasIDs returns every known atlas id in stable order, including ids
// whose document failed to load.
func (c *Catalog) AtlasIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.atlasIDs))
	copy(out, c.atlasIDs)
	return out
}

// KnownAtlases returns the known atlas id set used for prefix detection.
func (c *Catalog) KnownAtlases() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]bool, len(c.known))
	for id := range c.known {
		out[id] = true
	}
	return out
}

// LoadedAtlases returns the ids whose documents actually loaded, in known
// order.
func (c *Catalog) LoadedAtlases() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.docs))
	for _, id := range c.atlasIDs {
		if _, ok := c.docs[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// DeclaredLayers returns the raw declared layer list of one atlas in
// document order, or nil if the atlas never loaded.
func (c *Catalog) DeclaredLayers(atlasID string) []layer.Fields {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[atlasID]
	if !ok {
		return nil
	}
	return doc.Layers
}

// Metadata returns display metadata for one atlas.
func (c *Catalog) Metadata(atlasID string) (Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[atlasID]
	if !ok {
		return Metadata{}, false
	}
	return Metadata{
		Color:          doc.Color,
		Name:           doc.Name,
		AreaOfInterest: doc.AreaOfInterest,
		Bbox:           doc.Bbox,
	}, true
}

// Preset returns the preset library entry for a bare layer id, or nil.
func (c *Catalog) Preset(id string) layer.Fields {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.presets[id]
}

// ContainsPoint reports whether the lng/lat point falls inside the atlas
// bounding box. An atlas without a derivable bbox contains nothing.
func (c *Catalog) ContainsPoint(atlasID string, lng, lat float64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[atlasID]
	if !ok || doc.Bbox == nil {
		return false
	}
	return doc.Bbox.Contains(orb.Point{lng, lat})
}

// addDocument registers a parsed document, making its id known. A document
// for an already-known id replaces the earlier copy.
func (c *Catalog) addDocument(doc *Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.known[doc.ID] {
		c.known[doc.ID] = true
		c.atlasIDs = append(c.atlasIDs, doc.ID)
	}
	c.docs[doc.ID] = doc
}
