package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "goa", cfg.Atlas)
	assert.Contains(t, cfg.AtlasURLTemplate, "%s")
	assert.Equal(t, []string{"goa", "mumbai", "bengaluru"}, cfg.FallbackAtlases)
	assert.Equal(t, 300*time.Millisecond, cfg.Debounce())
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layerlink.yaml")
	body := "atlas: mumbai\nlisten_addr: 127.0.0.1:9000\ndebounce_ms: 50\natlas_dir: ./atlases\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mumbai", cfg.Atlas)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce())
	assert.Equal(t, "./atlases", cfg.AtlasDir)

	// fields the file does not mention keep their defaults
	assert.Equal(t, Default().IndexURL, cfg.IndexURL)
	assert.Equal(t, Default().FetchTimeoutMS, cfg.FetchTimeoutMS)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layerlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{{"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_RejectsEmptyAtlas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layerlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`atlas: ""`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "atlas")
}

func TestValidate_TemplateNeedsPlaceholder(t *testing.T) {
	cfg := Default()
	cfg.AtlasURLTemplate = "https://amche.in/atlases/goa.json"
	require.Error(t, cfg.Validate())

	cfg.AtlasURLTemplate = ""
	require.NoError(t, cfg.Validate())
}

func TestValidate_RejectsNegativeDurations(t *testing.T) {
	cfg := Default()
	cfg.DebounceMS = -1
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.FetchTimeoutMS = -1
	require.Error(t, cfg.Validate())
}
