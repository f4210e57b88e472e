package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/amche/layerlink/internal/app"
	"github.com/spf13/cobra"
)

var (
	serveListen   string
	serveAtlasDir string
	serveLink     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog service",
	Long:  "Loads the atlas catalog, builds the layer registry, and serves the HTTP API plus the websocket link feed. Watches the local atlas directory when one is configured.",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config)")
	f.StringVar(&serveAtlasDir, "atlas-dir", "", "Local atlas document directory (overrides config)")
	f.StringVar(&serveLink, "link", "", "Initial layers parameter text")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.ListenAddr = serveListen
	}
	if serveAtlasDir != "" {
		cfg.AtlasDir = serveAtlasDir
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := app.New(app.Config{
		IndexURL:         cfg.IndexURL,
		AtlasURLTemplate: cfg.AtlasURLTemplate,
		PresetsURL:       cfg.PresetsURL,
		FallbackAtlases:  cfg.FallbackAtlases,
		Atlas:            cfg.Atlas,
		AtlasOverride:    atlasFlag,
		ListenAddr:       cfg.ListenAddr,
		CachePath:        cfg.CachePath,
		AtlasDir:         cfg.AtlasDir,
		FetchTimeout:     cfg.FetchTimeout(),
		Debounce:         cfg.Debounce(),
		InitialLink:      serveLink,
	}, log)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	if err := a.Start(context.Background()); err != nil {
		return err
	}

	fmt.Printf("%s⚡ layerlink%s\n", colorBold, colorReset)
	fmt.Printf("  Atlas:  %s\n", a.Controller.Atlas())
	if addr := a.WebServer.Addr(); addr != "" {
		fmt.Printf("  API:    http://%s\n", addr)
	}
	if cfg.AtlasDir != "" {
		fmt.Printf("  Watch:  %s\n", cfg.AtlasDir)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\n⚡ shutting down...")
	return a.Stop()
}
