package site

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitegen/internal/content"
	siteerrors "git.home.luguber.info/inful/sitegen/internal/errors"
	"git.home.luguber.info/inful/sitegen/internal/render"
)

// Page is the result of one page's render pipeline, before bundling and
// document assembly.
type Page struct {
	Entry       content.ContentEntry
	ID          string
	Frontmatter content.Frontmatter
	Layouts     []render.Layout
	Head        string
	Body        string
}

// Pipeline runs the per-page render sequence shared by the static builder
// and the dev server: read, parse frontmatter, resolve layouts, compose,
// render, extract head fragments.
type Pipeline struct {
	contentRoot string
	renderer    render.ModuleRenderer
}

// NewPipeline creates a Pipeline over the given content root.
func NewPipeline(contentRoot string, renderer render.ModuleRenderer) *Pipeline {
	return &Pipeline{contentRoot: contentRoot, renderer: renderer}
}

// RenderPage runs the full render sequence for one entry. Every failure
// is a per-page error carrying the route.
func (p *Pipeline) RenderPage(ctx context.Context, entry content.ContentEntry) (*Page, error) {
	data, err := os.ReadFile(entry.FilePath)
	if err != nil {
		return nil, siteerrors.RenderError(entry.RoutePath, err)
	}

	fm, body, err := content.Parse(data, entry.Kind)
	if err != nil {
		return nil, siteerrors.FrontmatterError(entry.RoutePath, err)
	}

	chain, err := render.ResolveLayoutChain(p.contentRoot, entry.FilePath)
	if err != nil {
		return nil, siteerrors.RenderError(entry.RoutePath, err)
	}

	component := render.ComposePage(render.PageComponent(entry, body, p.renderer), chain, fm, p.renderer)
	markup, err := component(ctx)
	if err != nil {
		return nil, siteerrors.RenderError(entry.RoutePath, err)
	}

	head, pageBody := render.ExtractHead(markup)
	return &Page{
		Entry:       entry,
		ID:          content.PageID(entry.RoutePath),
		Frontmatter: fm,
		Layouts:     chain,
		Head:        head,
		Body:        pageBody,
	}, nil
}

// LayoutPaths returns the page's layout module paths root-first, the
// order entry-point generation expects.
func (pg *Page) LayoutPaths() []string {
	paths := make([]string, len(pg.Layouts))
	for i, l := range pg.Layouts {
		paths[i] = l.Path
	}
	return paths
}

// PropsJSON serializes the page props embedded into the document for
// client-side hydration.
func (pg *Page) PropsJSON() (string, error) {
	data, err := json.Marshal(render.PropsFrom(pg.Frontmatter))
	if err != nil {
		return "", siteerrors.RenderError(pg.Entry.RoutePath, err)
	}
	return string(data), nil
}

// SystemPage locates a reserved system page (stem "_404" or "_500") in
// the content root and returns a synthetic entry for it. The second
// return is false when the project defines none.
func (p *Pipeline) SystemPage(stem string) (content.ContentEntry, bool) {
	for _, ext := range []string{".tsx", ".jsx", ".md", ".markdown"} {
		path := filepath.Join(p.contentRoot, stem+ext)
		if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
			kind, _ := content.KindForExtension(ext)
			return content.ContentEntry{
				FilePath:  path,
				RoutePath: "/" + stem,
				Kind:      kind,
			}, true
		}
	}
	return content.ContentEntry{}, false
}

// OutputPath maps a route to its file location under the output root:
// "/" writes index.html at the root, every other route writes
// <route>/index.html so static hosting resolves the clean URL.
func OutputPath(outputRoot, route string) string {
	if route == "/" {
		return filepath.Join(outputRoot, "index.html")
	}
	return filepath.Join(outputRoot, filepath.FromSlash(route[1:]), "index.html")
}
