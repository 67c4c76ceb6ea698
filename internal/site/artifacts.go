package site

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"git.home.luguber.info/inful/sitegen/internal/config"
)

// sitemapURLSet is the urlset document of sitemap.xml.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc string `xml:"loc"`
}

const sitemapNamespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// writeSitemap enumerates the absolute URL of every successfully rendered
// route, sorted for deterministic output.
func writeSitemap(outputRoot string, cfg *config.Config, routes []string) error {
	sorted := append([]string(nil), routes...)
	sort.Strings(sorted)

	set := sitemapURLSet{Xmlns: sitemapNamespace}
	for _, route := range sorted {
		set.URLs = append(set.URLs, sitemapURL{Loc: cfg.AbsoluteURL(route)})
	}
	data, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sitemap: %w", err)
	}
	body := append([]byte(xml.Header), data...)
	body = append(body, '\n')
	return os.WriteFile(filepath.Join(outputRoot, "sitemap.xml"), body, 0o644)
}

// writeRobots emits robots.txt pointing crawlers at the sitemap.
func writeRobots(outputRoot string, cfg *config.Config) error {
	body := fmt.Sprintf("User-agent: *\nAllow: /\n\nSitemap: %s\n", cfg.AbsoluteURL("/sitemap.xml"))
	return os.WriteFile(filepath.Join(outputRoot, "robots.txt"), []byte(body), 0o644)
}

// webManifest is the site.webmanifest document.
type webManifest struct {
	Name            string         `json:"name"`
	ShortName       string         `json:"short_name"`
	StartURL        string         `json:"start_url"`
	Display         string         `json:"display"`
	ThemeColor      string         `json:"theme_color"`
	BackgroundColor string         `json:"background_color"`
	Icons           []manifestIcon `json:"icons"`
}

type manifestIcon struct {
	Src   string `json:"src"`
	Sizes string `json:"sizes"`
	Type  string `json:"type"`
}

// writeManifest emits site.webmanifest with documented defaults for every
// omitted branding field.
func writeManifest(outputRoot string, cfg *config.Config) error {
	name := cfg.Site.Title
	if name == "" {
		name = "sitegen site"
	}
	short := cfg.Site.ShortTitle
	if short == "" {
		short = name
	}
	theme := cfg.Site.ThemeColor
	if theme == "" {
		theme = "#ffffff"
	}
	background := cfg.Site.BackgroundColor
	if background == "" {
		background = "#ffffff"
	}
	startURL := cfg.Site.BasePath
	if startURL == "" {
		startURL = "/"
	}

	m := webManifest{
		Name:            name,
		ShortName:       short,
		StartURL:        startURL,
		Display:         "standalone",
		ThemeColor:      theme,
		BackgroundColor: background,
		Icons:           []manifestIcon{},
	}
	for _, icon := range cfg.Site.Icons {
		m.Icons = append(m.Icons, manifestIcon{Src: icon.Src, Sizes: icon.Sizes, Type: icon.Type})
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(outputRoot, "site.webmanifest"), append(data, '\n'), 0o644)
}
