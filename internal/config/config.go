// Package config loads the layerlink service configuration. Defaults cover
// the hosted amche document sources; a YAML file overlays them field by field.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk service configuration. Durations are expressed in
// milliseconds to keep the YAML plain.
type Config struct {
	IndexURL         string   `yaml:"index_url"`
	AtlasURLTemplate string   `yaml:"atlas_url_template"`
	PresetsURL       string   `yaml:"presets_url"`
	FallbackAtlases  []string `yaml:"fallback_atlases"`

	Atlas      string `yaml:"atlas"`
	ListenAddr string `yaml:"listen_addr"`
	CachePath  string `yaml:"cache_path"`
	AtlasDir   string `yaml:"atlas_dir"`

	DebounceMS     int  `yaml:"debounce_ms"`
	FetchTimeoutMS int  `yaml:"fetch_timeout_ms"`
	Debug          bool `yaml:"debug"`
}

// Default returns the stock configuration: hosted amche sources, the goa
// atlas, API on localhost.
func Default() Config {
	return Config{
		IndexURL:         "https://amche.in/atlases/atlases.json",
		AtlasURLTemplate: "https://amche.in/atlases/%s.json",
		PresetsURL:       "https://amche.in/atlases/layer-presets.json",
		FallbackAtlases:  []string{"goa", "mumbai", "bengaluru"},
		Atlas:            "goa",
		ListenAddr:       "127.0.0.1:8741",
		DebounceMS:       300,
		FetchTimeoutMS:   15000,
	}
}

// Load reads path and overlays it onto Default. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the app cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Atlas) == "" {
		return fmt.Errorf("atlas must not be empty")
	}
	if c.DebounceMS < 0 {
		return fmt.Errorf("debounce_ms must be >= 0")
	}
	if c.FetchTimeoutMS < 0 {
		return fmt.Errorf("fetch_timeout_ms must be >= 0")
	}
	if c.AtlasURLTemplate != "" && !strings.Contains(c.AtlasURLTemplate, "%s") {
		return fmt.Errorf("atlas_url_template must contain %%s")
	}
	return nil
}

// Debounce returns the link rewrite window as a duration.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// FetchTimeout returns the document fetch deadline as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}
