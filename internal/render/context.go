// Package render composes page content with its layout chain and turns
// the result into final markup. Rendering of component modules is
// delegated to an external SSR helper; Markdown rendering is in-process.
package render

import (
	"context"
	"errors"

	"git.home.luguber.info/inful/sitegen/internal/content"
)

type frontmatterKeyType struct{}

var frontmatterKey frontmatterKeyType

// ErrNoFrontmatterProvider is returned when page metadata is requested
// outside a composed page tree. This is a programming error, not a
// recoverable condition, so the message names the missing provider.
var ErrNoFrontmatterProvider = errors.New("frontmatter requested outside a composed page tree: no frontmatter provider in context")

// WithFrontmatter returns a context carrying the page's frontmatter.
// The compositor installs it once per composition; every layout and
// component below reads the same value.
func WithFrontmatter(ctx context.Context, fm content.Frontmatter) context.Context {
	return context.WithValue(ctx, frontmatterKey, fm)
}

// FrontmatterFrom retrieves the shared page frontmatter. It fails fast
// with ErrNoFrontmatterProvider when no compositor installed one; there
// is deliberately no silent default.
func FrontmatterFrom(ctx context.Context) (content.Frontmatter, error) {
	fm, ok := ctx.Value(frontmatterKey).(content.Frontmatter)
	if !ok {
		return content.Frontmatter{}, ErrNoFrontmatterProvider
	}
	return fm, nil
}
