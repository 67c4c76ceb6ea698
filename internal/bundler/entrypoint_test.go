package bundler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateEntryPoint_ComponentPage(t *testing.T) {
	src := GenerateEntryPoint(EntrySpec{
		PageID:      "docs-intro",
		PagePath:    "/site/pages/docs/intro.tsx",
		LayoutPaths: []string{"/site/pages/_layout.tsx", "/site/pages/docs/_layout.tsx"},
	})

	require.Contains(t, src, `import Page from "/site/pages/docs/intro.tsx"`)
	require.Contains(t, src, `import Layout0 from "/site/pages/_layout.tsx"`)
	require.Contains(t, src, `import Layout1 from "/site/pages/docs/_layout.tsx"`)
	require.Contains(t, src, `const pageId = "docs-intro"`)
	require.Contains(t, src, "window."+PropsGlobal)
	require.Contains(t, src, "ErrorBoundary")
	require.Contains(t, src, "FrontmatterProvider")

	// Root layout wraps last, so it ends up outermost in the tree.
	leafWrap := strings.Index(src, "tree = h(Layout1, props, tree)")
	rootWrap := strings.Index(src, "tree = h(Layout0, props, tree)")
	require.True(t, leafWrap >= 0 && rootWrap >= 0)
	require.Less(t, leafWrap, rootWrap)
}

func TestGenerateEntryPoint_MarkdownFreezesServerMarkup(t *testing.T) {
	src := GenerateEntryPoint(EntrySpec{PageID: "index"})

	require.NotContains(t, src, "import Page")
	require.Contains(t, src, "mount.innerHTML")
	require.Contains(t, src, "StaticContent")
}

func TestGenerateEntryPoint_PageIDMakesBundlesDistinct(t *testing.T) {
	a := GenerateEntryPoint(EntrySpec{PageID: "a", PagePath: "/p/x.tsx"})
	b := GenerateEntryPoint(EntrySpec{PageID: "b", PagePath: "/p/x.tsx"})
	require.NotEqual(t, a, b)
}
