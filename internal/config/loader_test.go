package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		loader := NewLoader(filepath.Join(home, "nonexistent.json"))
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Transport.StaleThresholdMs)
		assert.Equal(t, filepath.Join(home, ".vs-claude"), cfg.Dir)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"dir": "/tmp/shared",
			"timeouts": {"short_ms": 1000},
			"mcp": {"tools": ["symbols", "diagnostics"]},
			"host": {"label": "scratch"}
		}`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		cfg, err := NewLoader(configPath).Load()

		require.NoError(t, err)
		assert.Equal(t, "/tmp/shared", cfg.Dir)
		assert.Equal(t, 1000, cfg.Timeouts.ShortMs)
		assert.Equal(t, 30000, cfg.Timeouts.LongMs, "unset keys keep defaults")
		assert.Equal(t, []string{"symbols", "diagnostics"}, cfg.MCP.Tools)
		assert.Equal(t, "scratch", cfg.Host.Label)
	})

	t.Run("environment overrides", func(t *testing.T) {
		tmpDir := t.TempDir()
		t.Setenv("VSBRIDGE_DIR", "/env/shared")
		t.Setenv("VSBRIDGE_TIMEOUTS_LONG_MS", "12000")

		cfg, err := NewLoader(filepath.Join(tmpDir, "missing.json")).Load()

		require.NoError(t, err)
		assert.Equal(t, "/env/shared", cfg.Dir)
		assert.Equal(t, 12000, cfg.Timeouts.LongMs)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")
		require.NoError(t, os.WriteFile(configPath, []byte("invalid json"), 0644))

		_, err := NewLoader(configPath).Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	t.Run("save config to file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		cfg := DefaultConfig()
		cfg.Dir = "/tmp/shared"
		cfg.MCP.Tools = []string{"symbols"}
		cfg.Host.Label = "demo"

		loader := NewLoader(configPath)
		require.NoError(t, loader.Save(cfg))

		loaded, err := NewLoader(configPath).Load()
		require.NoError(t, err)
		assert.Equal(t, "/tmp/shared", loaded.Dir)
		assert.Equal(t, []string{"symbols"}, loaded.MCP.Tools)
		assert.Equal(t, "demo", loaded.Host.Label)
		assert.Equal(t, cfg.Transport, loaded.Transport)
	})

	t.Run("create directory if not exists", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "subdir", "config.json")

		require.NoError(t, NewLoader(configPath).Save(DefaultConfig()))

		_, err := os.Stat(configPath)
		assert.NoError(t, err)
	})
}

func TestLoaderGetConfigPath(t *testing.T) {
	t.Run("custom path", func(t *testing.T) {
		loader := NewLoader("/custom/path/config.json")
		assert.Equal(t, "/custom/path/config.json", loader.GetConfigPath())
	})

	t.Run("default path", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		path := NewLoader("").GetConfigPath()
		assert.Equal(t, filepath.Join(home, ".vs-claude", ConfigFileName), path)
	})
}
