package bundler

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RuntimeModule is the module specifier of the UI runtime the generated
// entry points import hydration primitives from.
const RuntimeModule = "@sitegen/runtime"

// MountID is the id of the fixed mount-point element every generated
// page contains.
const MountID = "app"

// PropsGlobal is the name of the global the server embeds the page
// props under, as a script tag preceding the bundle tag.
const PropsGlobal = "__SITE_PROPS__"

// EntrySpec describes the page a hydration entry point is generated for.
type EntrySpec struct {
	PageID string
	// PagePath is the component module path. Empty for Markdown pages,
	// which have no client-side component identity to re-render and
	// instead freeze the server markup as static content.
	PagePath string
	// LayoutPaths is the layout chain root-first, matching server-side
	// composition order.
	LayoutPaths []string
}

// GenerateEntryPoint synthesizes the hydration entry-point source for a
// page: import the page and its layout chain, nest layouts root-outermost
// around the page expression, wrap the composition in an error boundary
// (a hydration failure degrades to the still-visible server markup), and
// wrap again in the frontmatter context provider fed from the embedded
// page-props global. The page id is embedded textually, so structurally
// identical pages still produce distinct bundles.
func GenerateEntryPoint(spec EntrySpec) string {
	var b strings.Builder
	b.WriteString("// Generated by sitegen; do not edit.\n")
	b.WriteString(fmt.Sprintf("import { h, hydrate, ErrorBoundary, FrontmatterProvider, StaticContent } from %q;\n", RuntimeModule))

	if spec.PagePath != "" {
		b.WriteString(fmt.Sprintf("import Page from %q;\n", filepath.ToSlash(spec.PagePath)))
	}
	for i, layout := range spec.LayoutPaths {
		b.WriteString(fmt.Sprintf("import Layout%d from %q;\n", i, filepath.ToSlash(layout)))
	}

	b.WriteString(fmt.Sprintf("\nconst pageId = %q;\n", spec.PageID))
	b.WriteString(fmt.Sprintf("const props = window.%s ?? {};\n", PropsGlobal))
	b.WriteString(fmt.Sprintf("const mount = document.getElementById(%q);\n", MountID))

	if spec.PagePath == "" {
		// Markdown content: read the server-rendered markup back from the
		// mount point and freeze it as static, non-reactive content.
		b.WriteString("const serverHtml = mount ? mount.innerHTML : \"\";\n")
		b.WriteString("const Page = () => h(StaticContent, { html: serverHtml });\n")
	}

	b.WriteString("\nlet tree = h(Page, props);\n")
	for i := len(spec.LayoutPaths) - 1; i >= 0; i-- {
		b.WriteString(fmt.Sprintf("tree = h(Layout%d, props, tree);\n", i))
	}
	b.WriteString("tree = h(ErrorBoundary, null, tree);\n")
	b.WriteString("tree = h(FrontmatterProvider, { value: props }, tree);\n")
	b.WriteString("if (mount) {\n  hydrate(tree, mount);\n}\n")
	return b.String()
}
