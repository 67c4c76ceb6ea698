// Package config loads and normalizes the sitegen project configuration.
//
// Configuration comes from a YAML file (site.yaml by default), optionally
// overlaid with SITEGEN_* environment variables. A missing config file is
// not an error: every field has a workable default so a bare content
// directory can be served without any configuration at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	siteerrors "git.home.luguber.info/inful/sitegen/internal/errors"
)

// Config is the root configuration for a sitegen project.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Dirs    DirsConfig    `yaml:"dirs"`
	Dev     DevConfig     `yaml:"dev"`
	Render  RenderConfig  `yaml:"render"`
	Bundler BundlerConfig `yaml:"bundler"`
}

// SiteConfig holds site-wide metadata used for artifact generation
// (sitemap, robots, web manifest) and the document shell.
type SiteConfig struct {
	// BaseURL is the absolute URL the site is published under
	// (e.g. "https://docs.example.com"). When empty, sitemap/robots/manifest
	// generation is skipped.
	BaseURL string `yaml:"base_url"`
	// BasePath is an optional path prefix all routes and asset URLs live
	// under (e.g. "/docs"). Normalized to have a leading slash and no
	// trailing slash; "/" means no prefix.
	BasePath        string `yaml:"base_path"`
	Title           string `yaml:"title"`
	ShortTitle      string `yaml:"short_title"`
	Description     string `yaml:"description"`
	Lang            string `yaml:"lang"`
	ThemeColor      string `yaml:"theme_color"`
	BackgroundColor string `yaml:"background_color"`
	Icons           []Icon `yaml:"icons"`
}

// Icon describes one web-manifest icon entry.
type Icon struct {
	Src   string `yaml:"src" json:"src"`
	Sizes string `yaml:"sizes" json:"sizes"`
	Type  string `yaml:"type" json:"type"`
}

// DirsConfig holds the project directory layout.
type DirsConfig struct {
	Content string `yaml:"content"`
	Public  string `yaml:"public"`
	Output  string `yaml:"output"`
}

// DevConfig holds development server settings.
type DevConfig struct {
	Port            int `yaml:"port"`
	DebounceMS      int `yaml:"debounce_ms"`
	BundleCacheSize int `yaml:"bundle_cache_size"`
}

// RenderConfig configures the external SSR helper used to server-render
// component pages. The command receives the module path as its final
// argument and the render props as JSON on stdin, and must write the
// rendered HTML to stdout.
type RenderConfig struct {
	SSRCommand []string `yaml:"ssr_command"`
}

// BundlerConfig configures the external bundler invocation.
type BundlerConfig struct {
	// Command is the bundler executable plus fixed leading arguments.
	// Mode-dependent flags (minify, sourcemap) are appended per build.
	Command []string `yaml:"command"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Site.Lang == "" {
		c.Site.Lang = "en"
	}
	if c.Dirs.Content == "" {
		c.Dirs.Content = "pages"
	}
	if c.Dirs.Public == "" {
		c.Dirs.Public = "public"
	}
	if c.Dirs.Output == "" {
		c.Dirs.Output = "dist"
	}
	if c.Dev.Port == 0 {
		c.Dev.Port = 3000
	}
	if c.Dev.DebounceMS == 0 {
		c.Dev.DebounceMS = 300
	}
	if c.Dev.BundleCacheSize == 0 {
		c.Dev.BundleCacheSize = 32
	}
	if len(c.Bundler.Command) == 0 {
		c.Bundler.Command = []string{"esbuild", "--bundle", "--format=esm"}
	}
}

// Load reads the configuration file at path, applies defaults, environment
// overrides and normalization. A missing file yields the default config;
// any other read or parse failure is fatal.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, siteerrors.Wrap(err, siteerrors.CategoryConfig, siteerrors.SeverityFatal, "read config file").WithContext("path", path)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, siteerrors.Wrap(err, siteerrors.CategoryConfig, siteerrors.SeverityFatal, "parse config file").WithContext("path", path)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env/.env.local if present. Existing process
// environment variables are not overwritten (godotenv.Load semantics).
func loadEnvFiles() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// applyEnvOverrides maps SITEGEN_* environment variables onto config fields.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SITEGEN_BASE_URL"); v != "" {
		c.Site.BaseURL = v
	}
	if v := os.Getenv("SITEGEN_BASE_PATH"); v != "" {
		c.Site.BasePath = v
	}
	if v := os.Getenv("SITEGEN_OUTPUT"); v != "" {
		c.Dirs.Output = v
	}
	if v := os.Getenv("SITEGEN_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Dev.Port = p
		}
	}
}

// normalize canonicalizes derived fields and validates cross-field rules.
func (c *Config) normalize() error {
	c.Site.BaseURL = strings.TrimRight(c.Site.BaseURL, "/")

	bp := c.Site.BasePath
	if bp != "" && bp != "/" {
		if !strings.HasPrefix(bp, "/") {
			bp = "/" + bp
		}
		bp = strings.TrimRight(bp, "/")
	} else {
		bp = ""
	}
	c.Site.BasePath = bp

	if c.Dev.DebounceMS < 0 {
		return siteerrors.New(siteerrors.CategoryConfig, siteerrors.SeverityFatal, fmt.Sprintf("dev.debounce_ms must be >= 0, got %d", c.Dev.DebounceMS))
	}
	if c.Dev.BundleCacheSize < 1 {
		return siteerrors.New(siteerrors.CategoryConfig, siteerrors.SeverityFatal, fmt.Sprintf("dev.bundle_cache_size must be >= 1, got %d", c.Dev.BundleCacheSize))
	}
	return nil
}

// PrefixedPath joins the configured base path with an absolute route or
// asset path ("/x" -> "/docs/x" when base_path is "/docs").
func (c *Config) PrefixedPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return c.Site.BasePath + p
}

// AbsoluteURL joins the base URL, base path and a route path into the
// absolute published URL for that route.
func (c *Config) AbsoluteURL(route string) string {
	return c.Site.BaseURL + c.PrefixedPath(route)
}
