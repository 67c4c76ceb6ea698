package site

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
)

func TestDocument_DefaultShell(t *testing.T) {
	cfg := config.Default()
	cfg.Site.Title = "My Site"
	cfg.Site.Lang = "de"

	doc, err := NewDocument(t.TempDir(), cfg)
	require.NoError(t, err)

	fm := content.Frontmatter{Title: "Intro", Description: "About intro"}
	html, err := doc.Render(fm, `<meta name="x" content="1">`, "<p>hello</p>", `<script>window.p=1</script>`)
	require.NoError(t, err)

	require.Contains(t, html, `<html lang="de">`)
	require.Contains(t, html, "<title>Intro</title>")
	require.Contains(t, html, `<meta name="description" content="About intro">`)
	require.Contains(t, html, `<meta name="x" content="1">`)
	require.Contains(t, html, `<div id="app"><p>hello</p></div>`)
	require.Contains(t, html, `<script>window.p=1</script>`)
}

func TestDocument_TitleFallsBackToSiteTitle(t *testing.T) {
	cfg := config.Default()
	cfg.Site.Title = "My Site"

	doc, err := NewDocument(t.TempDir(), cfg)
	require.NoError(t, err)

	html, err := doc.Render(content.Frontmatter{}, "", "<p>x</p>", "")
	require.NoError(t, err)
	require.Contains(t, html, "<title>My Site</title>")
}

func TestDocument_TitleEscaped(t *testing.T) {
	doc, err := NewDocument(t.TempDir(), config.Default())
	require.NoError(t, err)

	html, err := doc.Render(content.Frontmatter{Title: "a < b & c"}, "", "", "")
	require.NoError(t, err)
	require.Contains(t, html, "<title>a &lt; b &amp; c</title>")
}

func TestDocument_ProjectOverride(t *testing.T) {
	root := t.TempDir()
	override := `<!DOCTYPE html><html><head><title>{{.Title}}</title></head><body>{{.Body}}</body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(root, "_document.html"), []byte(override), 0o644))

	doc, err := NewDocument(root, config.Default())
	require.NoError(t, err)

	html, err := doc.Render(content.Frontmatter{Title: "Custom"}, "", "<p>b</p>", "")
	require.NoError(t, err)
	require.Contains(t, html, "<title>Custom</title>")
	require.Contains(t, html, "<body><p>b</p></body>")
	require.NotContains(t, html, "viewport")
}

func TestDocument_ManifestLinkOnlyWithBaseURL(t *testing.T) {
	cfg := config.Default()
	doc, err := NewDocument(t.TempDir(), cfg)
	require.NoError(t, err)
	html, err := doc.Render(content.Frontmatter{Title: "t"}, "", "", "")
	require.NoError(t, err)
	require.NotContains(t, html, "site.webmanifest")

	cfg2 := config.Default()
	cfg2.Site.BaseURL = "https://example.com"
	doc2, err := NewDocument(t.TempDir(), cfg2)
	require.NoError(t, err)
	html2, err := doc2.Render(content.Frontmatter{Title: "t"}, "", "", "")
	require.NoError(t, err)
	require.Contains(t, html2, `<link rel="manifest" href="/site.webmanifest">`)
}

func TestPropsScript_TitleCannotTerminateScriptTag(t *testing.T) {
	page := &Page{
		Entry:       content.ContentEntry{RoutePath: "/x"},
		Frontmatter: content.Frontmatter{Title: `</script><script>alert(1)</script>`},
	}
	propsJSON, err := page.PropsJSON()
	require.NoError(t, err)
	require.NotContains(t, propsJSON, "</script>",
		"serialized props must not be able to close the surrounding tag")
	require.Contains(t, propsJSON, `\u003c/script\u003e`)

	script := PropsScript(propsJSON)
	require.Equal(t, 1, strings.Count(script, "</script>"))
}
