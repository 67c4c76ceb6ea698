package site

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"git.home.luguber.info/inful/sitegen/internal/bundler"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
)

// defaultDocumentTemplate is the built-in document shell used when the
// project does not supply a _document.html override in its content root.
const defaultDocumentTemplate = `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
{{- if .Description}}
<meta name="description" content="{{.Description}}">
{{- end}}
{{- if .SiteMeta}}
{{.SiteMeta}}
{{- end}}
{{- if .Head}}
{{.Head}}
{{- end}}
</head>
<body>
<div id="app">{{.Body}}</div>
{{- if .Scripts}}
{{.Scripts}}
{{- end}}
</body>
</html>
`

// DocumentData is the data a document template is executed with. Head,
// Body, SiteMeta and Scripts are pre-rendered HTML; Title and Description
// arrive already escaped.
type DocumentData struct {
	Lang        string
	Title       string
	Description string
	SiteMeta    string
	Head        string
	Body        string
	Scripts     string
}

// Document renders the outer HTML shell around a composed page. The
// template is the built-in default or the project's _document.html,
// resolved once at construction.
type Document struct {
	tmpl     *template.Template
	cfg      *config.Config
	siteMeta string
}

// NewDocument resolves the document template: a _document.html in the
// content root overrides the built-in shell. Overrides use the same
// placeholder fields as the default template.
func NewDocument(contentRoot string, cfg *config.Config) (*Document, error) {
	source := defaultDocumentTemplate
	override := filepath.Join(contentRoot, content.SystemDocument+".html")
	if data, err := os.ReadFile(override); err == nil {
		source = string(data)
	}
	tmpl, err := template.New("document").Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	return &Document{tmpl: tmpl, cfg: cfg, siteMeta: siteMeta(cfg)}, nil
}

// siteMeta builds the site-level head lines derived from configuration:
// theme color and, when artifacts are generated, the manifest link.
func siteMeta(cfg *config.Config) string {
	var lines []string
	if cfg.Site.ThemeColor != "" {
		lines = append(lines, fmt.Sprintf(`<meta name="theme-color" content="%s">`, html.EscapeString(cfg.Site.ThemeColor)))
	}
	if cfg.Site.BaseURL != "" {
		lines = append(lines, fmt.Sprintf(`<link rel="manifest" href="%s">`, cfg.PrefixedPath("/site.webmanifest")))
	}
	return strings.Join(lines, "\n")
}

// Render executes the document template for one page. Title falls back
// to the site title when the page frontmatter left it empty.
func (d *Document) Render(fm content.Frontmatter, head, body, scripts string) (string, error) {
	title := fm.Title
	if title == "" {
		title = d.cfg.Site.Title
	}
	description := fm.Description
	if description == "" {
		description = d.cfg.Site.Description
	}

	data := DocumentData{
		Lang:        d.cfg.Site.Lang,
		Title:       html.EscapeString(title),
		Description: html.EscapeString(description),
		SiteMeta:    d.siteMeta,
		Head:        head,
		Body:        body,
		Scripts:     scripts,
	}
	var b strings.Builder
	if err := d.tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("execute document template: %w", err)
	}
	return b.String(), nil
}

// PropsScript serializes page props into the global script tag that must
// precede the bundle module tag.
func PropsScript(propsJSON string) string {
	return fmt.Sprintf(`<script>window.%s = %s;</script>`, bundler.PropsGlobal, propsJSON)
}

// ModuleScript emits the bundle script tag for a page.
func ModuleScript(src string) string {
	return fmt.Sprintf(`<script type="module" src="%s"></script>`, src)
}
