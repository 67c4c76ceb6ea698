// Package bundler synthesizes hydration entry points and hands them to
// an external bundler, in development or production mode.
package bundler

// SourcemapMode selects source map emission for a bundle build.
type SourcemapMode string

const (
	SourcemapInline SourcemapMode = "inline"
	SourcemapNone   SourcemapMode = "none"
)

// Options parameterizes one bundling call. Development and production
// are the same code path; they differ only in these three fields.
type Options struct {
	Minify    bool
	Sourcemap SourcemapMode
	// Hash controls whether a content-hashed output filename is derived.
	// Dev bundles are served from cache by page id and never get one.
	Hash bool
}

// DevOptions returns the development mode: unminified, inline source
// map, no output filename.
func DevOptions() Options {
	return Options{Minify: false, Sourcemap: SourcemapInline, Hash: false}
}

// ProdOptions returns the production mode: minified, no source map,
// content-hashed filename.
func ProdOptions() Options {
	return Options{Minify: true, Sourcemap: SourcemapNone, Hash: true}
}

// Bundle is the result of one bundling call.
type Bundle struct {
	PageID string
	Code   string
	// Filename is only set in hashed (production) mode:
	// "<pageId>-<shortContentHash>.js".
	Filename string
}
