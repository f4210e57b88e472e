package cmd

import (
	"fmt"

	"github.com/amche/layerlink/internal/adapters/boltcache"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the document cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache contents",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached documents",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// openCache opens the configured cache database without a fetcher behind
// it; stats and clear never fetch.
func openCache() (*boltcache.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.CachePath == "" {
		return nil, fmt.Errorf("no cache_path configured")
	}
	return boltcache.New(cfg.CachePath, nil, zap.NewNop())
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	stats, err := cache.Stats()
	if err != nil {
		return err
	}

	fmt.Printf("%s⚡ document cache%s\n", colorBold, colorReset)
	fmt.Printf("  Entries:  %d\n", stats.Entries)
	fmt.Printf("  Size:     %d bytes\n", stats.TotalBytes)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.Clear(); err != nil {
		return err
	}

	fmt.Println("⚡ cache cleared")
	return nil
}
