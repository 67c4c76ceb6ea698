package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

// Component renders HTML markup for one node of a composed page tree.
type Component func(ctx context.Context) (string, error)

// Layout is one ancestor layout wrapper in a page's chain.
type Layout struct {
	Path  string // absolute path to the layout module
	Dir   string // directory relative to the content root ("" for root)
	Depth int    // 0 for the content-root layout
}

// layoutFilenames are probed in order at each directory level.
var layoutFilenames = []string{
	content.SystemLayout + ".tsx",
	content.SystemLayout + ".jsx",
}

// ResolveLayoutChain walks from the content root down to the page's
// directory and collects one layout per level that defines one, root
// first. The chain order is strictly depth-ascending: the layout at
// depth n wraps depth n+1.
func ResolveLayoutChain(contentRoot, pageFile string) ([]Layout, error) {
	rel, err := filepath.Rel(contentRoot, filepath.Dir(pageFile))
	if err != nil {
		return nil, err
	}

	var segments []string
	if rel != "." {
		segments = strings.Split(filepath.ToSlash(rel), "/")
	}

	var chain []Layout
	dir := contentRoot
	relDir := ""
	for depth := 0; ; depth++ {
		if l, ok := layoutAt(dir); ok {
			chain = append(chain, Layout{Path: l, Dir: relDir, Depth: depth})
		}
		if depth >= len(segments) {
			break
		}
		dir = filepath.Join(dir, segments[depth])
		if relDir == "" {
			relDir = segments[depth]
		} else {
			relDir = relDir + "/" + segments[depth]
		}
	}
	return chain, nil
}

func layoutAt(dir string) (string, bool) {
	for _, name := range layoutFilenames {
		p := filepath.Join(dir, name)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

// ComposePage nests the layout chain around the page content, deepest
// layout innermost and the content-root layout outermost, and installs
// the shared frontmatter context for every level. With an empty chain
// the composed result is the page content unmodified.
func ComposePage(page Component, chain []Layout, fm content.Frontmatter, mr ModuleRenderer) Component {
	return func(ctx context.Context) (string, error) {
		ctx = WithFrontmatter(ctx, fm)

		markup, err := page(ctx)
		if err != nil {
			return "", err
		}
		for i := len(chain) - 1; i >= 0; i-- {
			props := PropsFrom(fm)
			props["children"] = markup
			markup, err = mr.RenderModule(ctx, chain[i].Path, props)
			if err != nil {
				return "", err
			}
		}
		return markup, nil
	}
}
