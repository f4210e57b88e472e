// Package app wires together all adapters and domain logic.
// It provides lifecycle management for the layerlink daemon: create, start,
// stop. The catalog, the registry, and the sync controller form the core;
// the HTTP API and the atlas directory watcher attach around them.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/amche/layerlink/internal/adapters/boltcache"
	fsw "github.com/amche/layerlink/internal/adapters/fsnotify"
	"github.com/amche/layerlink/internal/adapters/httpfetch"
	"github.com/amche/layerlink/internal/adapters/web"
	"github.com/amche/layerlink/internal/domain/catalog"
	"github.com/amche/layerlink/internal/domain/layer"
	"github.com/amche/layerlink/internal/domain/registry"
	"github.com/amche/layerlink/internal/ports"
	"go.uber.org/zap"
)

// Config holds initialization parameters for the App.
type Config struct {
	IndexURL         string
	AtlasURLTemplate string
	PresetsURL       string
	FallbackAtlases  []string

	Atlas         string // active atlas id
	AtlasOverride string // --atlas value: known id, document URL, or inline JSON

	ListenAddr   string        // "" disables the HTTP API
	CachePath    string        // "" disables the document cache
	AtlasDir     string        // "" disables local documents and watching
	FetchTimeout time.Duration // default httpfetch.DefaultTimeout
	Debounce     time.Duration // default DefaultDebounce

	InitialLink string        // layers text applied at boot
	History     ports.History // optional; default in-memory
}

// App is the top-level container wiring all components together.
type App struct {
	Fetcher    ports.Fetcher
	Cache      *boltcache.Cache // nil without a cache path
	Catalog    *catalog.Catalog
	Registry   *registry.Registry
	History    ports.History
	Controller *SyncController
	WebServer  *web.Server
	Watcher    *fsw.Watcher

	cfg Config
	log *zap.Logger
}

// New creates an App with all dependencies wired. Does not start services
// and performs no fetches.
func New(cfg Config, log *zap.Logger) (*App, error) {
	if cfg.Atlas == "" {
		return nil, fmt.Errorf("active atlas required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	fetch := httpfetch.New(cfg.FetchTimeout, log)
	var fetcher ports.Fetcher = fetch
	var cache *boltcache.Cache
	if cfg.CachePath != "" {
		var err error
		cache, err = boltcache.New(cfg.CachePath, fetch, log)
		if err != nil {
			return nil, fmt.Errorf("open document cache: %w", err)
		}
		fetcher = cache
	}

	cat := catalog.New(fetcher, catalog.Config{
		IndexURL:         cfg.IndexURL,
		AtlasURLTemplate: cfg.AtlasURLTemplate,
		PresetsURL:       cfg.PresetsURL,
		FallbackAtlases:  cfg.FallbackAtlases,
	}, log)
	reg := registry.New(cat, log)

	hist := cfg.History
	if hist == nil {
		hist = NewMemHistory(cfg.InitialLink)
	}

	ctrl := NewSyncController(SyncConfig{
		Catalog:  cat,
		Registry: reg,
		History:  hist,
		Atlas:    cfg.Atlas,
		Debounce: cfg.Debounce,
	}, log)

	watcher, err := fsw.NewWatcher()
	if err != nil {
		if cache != nil {
			cache.Close()
		}
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	a := &App{
		Fetcher:    fetcher,
		Cache:      cache,
		Catalog:    cat,
		Registry:   reg,
		History:    hist,
		Controller: ctrl,
		Watcher:    watcher,
		cfg:        cfg,
		log:        log.Named("app"),
	}
	a.WebServer = web.NewServer(a, log)
	return a, nil
}

// Start boots the daemon: local documents first, then the catalog and link
// application, then the HTTP API and the directory watcher. Returns an
// error when the boot sequence cannot complete; the watcher is best-effort.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.AtlasDir != "" {
		a.loadAtlasDir()
	}

	if a.cfg.AtlasOverride != "" {
		// an override naming an index-listed id needs the catalog settled
		// before it can resolve
		if err := a.Catalog.Initialize(ctx); err != nil {
			return err
		}
		id, err := a.Catalog.LoadExtra(ctx, a.cfg.AtlasOverride)
		if err != nil {
			return fmt.Errorf("atlas override: %w", err)
		}
		a.Controller.SetAtlas(id)
	}

	if err := a.Controller.Run(ctx); err != nil {
		return err
	}

	if a.cfg.ListenAddr != "" {
		if err := a.WebServer.Start(a.cfg.ListenAddr); err != nil {
			return fmt.Errorf("start web server: %w", err)
		}
	}

	if a.cfg.AtlasDir != "" {
		if err := a.Watcher.Watch(a.cfg.AtlasDir, a.onAtlasDocumentChanged); err != nil {
			a.log.Warn("atlas directory watch unavailable", zap.Error(err))
		}
	}
	return nil
}

// Stop gracefully shuts down all services. A pending link rewrite is
// flushed first so the last toggle still lands in the link.
func (a *App) Stop() error {
	a.Watcher.Stop()
	a.WebServer.Stop()
	a.Controller.Flush()
	if a.Cache != nil {
		return a.Cache.Close()
	}
	return nil
}

// Reload re-reads local atlas documents, rebuilds the registry, and
// re-applies the current link text against the fresh catalog.
func (a *App) Reload() error {
	if a.cfg.AtlasDir != "" {
		if _, err := a.Catalog.LoadDir(os.DirFS(a.cfg.AtlasDir), "."); err != nil {
			return err
		}
	}
	a.Registry.Build()
	a.Controller.Apply(a.History.Current())
	a.Controller.Flush()
	return nil
}

func (a *App) loadAtlasDir() {
	ids, err := a.Catalog.LoadDir(os.DirFS(a.cfg.AtlasDir), ".")
	if err != nil {
		a.log.Warn("atlas directory unavailable",
			zap.String("dir", a.cfg.AtlasDir), zap.Error(err))
		return
	}
	a.log.Info("local atlases loaded", zap.Strings("atlases", ids))
}

func (a *App) onAtlasDocumentChanged(path string) {
	a.log.Info("atlas document changed", zap.String("file", path))
	if err := a.Reload(); err != nil {
		a.log.Warn("reload failed", zap.Error(err))
	}
}

// HealthSnapshot implements web.API.
func (a *App) HealthSnapshot() web.HealthResult {
	status := "ok"
	if !a.Catalog.Ready() {
		status = "starting"
	}
	return web.HealthResult{
		Status:        status,
		Phase:         string(a.Controller.Phase()),
		Atlas:         a.Controller.Atlas(),
		KnownAtlases:  len(a.Catalog.AtlasIDs()),
		LoadedAtlases: len(a.Catalog.LoadedAtlases()),
		Layers:        a.Registry.Count(),
	}
}

// AtlasList implements web.API. Ids whose document never loaded still
// appear, marked unloaded.
func (a *App) AtlasList() []web.AtlasResult {
	ids := a.Catalog.AtlasIDs()
	out := make([]web.AtlasResult, 0, len(ids))
	for _, id := range ids {
		res := web.AtlasResult{ID: id}
		if md, ok := a.Catalog.Metadata(id); ok {
			res = a.atlasResult(id, md)
		}
		out = append(out, res)
	}
	return out
}

// AtlasMetadata implements web.API.
func (a *App) AtlasMetadata(atlasID string) (web.AtlasResult, bool) {
	md, ok := a.Catalog.Metadata(atlasID)
	if !ok {
		return web.AtlasResult{}, false
	}
	return a.atlasResult(atlasID, md), true
}

func (a *App) atlasResult(id string, md catalog.Metadata) web.AtlasResult {
	res := web.AtlasResult{
		ID:             id,
		Name:           md.Name,
		Color:          md.Color,
		AreaOfInterest: md.AreaOfInterest,
		Loaded:         true,
		Layers:         len(a.Registry.GetAtlasLayers(id)),
	}
	if md.Bbox != nil {
		b := *md.Bbox
		res.Bbox = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return res
}

// AtlasLayers implements web.API.
func (a *App) AtlasLayers(atlasID string) []*layer.Descriptor {
	return a.Registry.GetAtlasLayers(atlasID)
}

// ContainsPoint implements web.API.
func (a *App) ContainsPoint(atlasID string, lng, lat float64) bool {
	return a.Catalog.ContainsPoint(atlasID, lng, lat)
}

// Layer implements web.API. An empty context atlas means the active one.
func (a *App) Layer(id, contextAtlas string) *layer.Descriptor {
	if contextAtlas == "" {
		contextAtlas = a.Controller.Atlas()
	}
	return a.Registry.GetLayer(id, contextAtlas)
}

// Search implements web.API.
func (a *App) Search(term, excludeAtlas string) []*layer.Descriptor {
	return a.Registry.SearchLayers(term, excludeAtlas)
}

// LinkSnapshot implements web.API.
func (a *App) LinkSnapshot() web.LinkResult {
	return web.LinkResult{
		Layers:  a.History.Current(),
		Dropped: a.Controller.DroppedLayers(),
	}
}

// ApplyLink implements web.API. The rewrite is flushed synchronously so the
// response reflects the final link text.
func (a *App) ApplyLink(text string) web.LinkResult {
	a.Controller.Apply(text)
	a.Controller.Flush()
	return a.LinkSnapshot()
}

// SetLayerState implements web.API.
func (a *App) SetLayerState(id string, checked bool, opacity *float64) bool {
	if !a.Controller.SetLayerState(id, checked, opacity) {
		return false
	}
	a.Controller.OnLayersChanged()
	return true
}

// OnRewrite implements web.API.
func (a *App) OnRewrite(fn func(text string)) {
	a.Controller.OnRewrite(fn)
}
