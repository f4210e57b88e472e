package cmd

import (
	"context"
	"fmt"

	"github.com/amche/layerlink/internal/adapters/boltcache"
	"github.com/amche/layerlink/internal/adapters/httpfetch"
	"github.com/amche/layerlink/internal/config"
	"github.com/amche/layerlink/internal/domain/catalog"
	"github.com/amche/layerlink/internal/domain/registry"
	"github.com/amche/layerlink/internal/ports"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath string
	atlasFlag  string
	debugFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "layerlink",
	Short: "layerlink — map layer catalog and link sync",
	Long:  "Resolves layer declarations across atlas documents and a shared preset library into one registry, and keeps the shareable layers parameter in sync with layer state.",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to a layerlink.yaml config file")
	pf.StringVar(&atlasFlag, "atlas", "", "Atlas id, document URL, or inline JSON document")
	pf.BoolVar(&debugFlag, "debug", false, "Debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(atlasesCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(cacheCmd)
}

// loadConfig reads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if debugFlag {
		cfg.Debug = true
	}
	return cfg, nil
}

// newLogger builds the daemon logger: production JSON, debug level on demand.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// cliLogger keeps one-shot command output clean: silent unless debugging.
func cliLogger(debug bool) *zap.Logger {
	if debug {
		if log, err := zap.NewDevelopment(); err == nil {
			return log
		}
	}
	return zap.NewNop()
}

// buildCatalog wires a fetcher, the optional document cache, and an
// initialized catalog for one-shot commands. The returned registry is not
// built yet; callers build it after any --atlas override has loaded.
func buildCatalog(ctx context.Context, cfg config.Config, log *zap.Logger) (*catalog.Catalog, *registry.Registry, func(), error) {
	fetch := httpfetch.New(cfg.FetchTimeout(), log)
	var fetcher ports.Fetcher = fetch
	closeFn := func() {}
	if cfg.CachePath != "" {
		cache, err := boltcache.New(cfg.CachePath, fetch, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open document cache: %w", err)
		}
		fetcher = cache
		closeFn = func() { cache.Close() }
	}

	cat := catalog.New(fetcher, catalog.Config{
		IndexURL:         cfg.IndexURL,
		AtlasURLTemplate: cfg.AtlasURLTemplate,
		PresetsURL:       cfg.PresetsURL,
		FallbackAtlases:  cfg.FallbackAtlases,
	}, log)
	if err := cat.Initialize(ctx); err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return cat, registry.New(cat, log), closeFn, nil
}
