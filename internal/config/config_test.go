package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFile_YieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "site.yaml"))
	require.NoError(t, err)
	require.Equal(t, "pages", cfg.Dirs.Content)
	require.Equal(t, "public", cfg.Dirs.Public)
	require.Equal(t, "dist", cfg.Dirs.Output)
	require.Equal(t, 3000, cfg.Dev.Port)
	require.Equal(t, 300, cfg.Dev.DebounceMS)
	require.Equal(t, 32, cfg.Dev.BundleCacheSize)
}

func TestLoad_ParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	content := []byte("site:\n  base_url: https://example.com/\n  base_path: docs/\n  title: Example\ndev:\n  port: 4000\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://example.com", cfg.Site.BaseURL)
	require.Equal(t, "/docs", cfg.Site.BasePath)
	require.Equal(t, 4000, cfg.Dev.Port)
}

func TestLoad_MalformedYAML_Fails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SITEGEN_BASE_URL", "https://override.example")
	t.Setenv("SITEGEN_PORT", "8123")

	cfg, err := Load(filepath.Join(t.TempDir(), "site.yaml"))
	require.NoError(t, err)
	require.Equal(t, "https://override.example", cfg.Site.BaseURL)
	require.Equal(t, 8123, cfg.Dev.Port)
}

func TestPrefixedPathAndAbsoluteURL(t *testing.T) {
	cfg := Default()
	cfg.Site.BaseURL = "https://example.com"
	cfg.Site.BasePath = "/docs"

	require.Equal(t, "/docs/intro", cfg.PrefixedPath("/intro"))
	require.Equal(t, "/docs/intro", cfg.PrefixedPath("intro"))
	require.Equal(t, "https://example.com/docs/intro", cfg.AbsoluteURL("/intro"))

	cfg.Site.BasePath = ""
	require.Equal(t, "https://example.com/intro", cfg.AbsoluteURL("/intro"))
}

func TestNormalize_RejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dev:\n  debounce_ms: -5\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
