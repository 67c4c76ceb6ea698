package render

import (
	"bytes"
	"context"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

// markdownInstance is initialized once and reused. The converter
// configuration never changes and goldmark converters are safe to share.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				newHighlighting("github"),
			),
			goldmark.WithRendererOptions(
				htmlrenderer.WithUnsafe(),
			),
		)
	})
	return markdownInstance
}

// RenderMarkdown converts a Markdown body (frontmatter already removed)
// to HTML with GFM extensions and chroma-highlighted code blocks.
func RenderMarkdown(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := getMarkdown().Convert(body, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PageComponent turns a content entry plus its body into a renderable
// component. Markdown bodies convert in-process; component modules are
// delegated to the module renderer with the ambient frontmatter as props.
func PageComponent(entry content.ContentEntry, body []byte, mr ModuleRenderer) Component {
	switch entry.Kind {
	case content.KindMarkdown:
		return func(ctx context.Context) (string, error) {
			return RenderMarkdown(body)
		}
	default:
		return func(ctx context.Context) (string, error) {
			fm, err := FrontmatterFrom(ctx)
			if err != nil {
				return "", err
			}
			return mr.RenderModule(ctx, entry.FilePath, PropsFrom(fm))
		}
	}
}
