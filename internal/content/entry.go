// Package content discovers page source files under a content root and
// maps them onto site routes.
package content

import (
	"path/filepath"
	"strings"
)

// Kind classifies a content file by how it is rendered.
type Kind string

const (
	KindMarkdown  Kind = "markdown"
	KindComponent Kind = "component"
)

// ContentEntry is one discovered content file mapped to a route.
// Entries are produced fresh on every build/dev pass and never mutated.
type ContentEntry struct {
	FilePath  string // absolute path to the source file
	RoutePath string // site route, always starting with "/"
	Kind      Kind
}

// PageID derives the stable page identifier used for bundle naming and
// cache keys from a route path ("/" -> "index", "/docs/intro" -> "docs-intro").
func PageID(route string) string {
	trimmed := strings.Trim(route, "/")
	if trimmed == "" {
		return "index"
	}
	return strings.ReplaceAll(trimmed, "/", "-")
}

// systemPrefix marks reserved files (layouts, not-found, error, document
// shell) that never become pages.
const systemPrefix = "_"

// IsSystemFile reports whether a file name is reserved for the build
// system rather than page content.
func IsSystemFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), systemPrefix)
}

// Reserved system file stems. Each is looked up with every recognized
// extension for its category.
const (
	SystemLayout   = "_layout"
	SystemNotFound = "_404"
	SystemError    = "_500"
	SystemDocument = "_document"
)

// markdownExtensions and componentExtensions are the recognized content
// file extensions.
var (
	markdownExtensions  = []string{".md", ".markdown"}
	componentExtensions = []string{".tsx", ".jsx"}
)

// KindForExtension returns the content kind for a file extension, and
// whether the extension is recognized at all.
func KindForExtension(ext string) (Kind, bool) {
	ext = strings.ToLower(ext)
	for _, e := range markdownExtensions {
		if ext == e {
			return KindMarkdown, true
		}
	}
	for _, e := range componentExtensions {
		if ext == e {
			return KindComponent, true
		}
	}
	return "", false
}
