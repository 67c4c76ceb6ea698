package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeAsset(t *testing.T, root, rel string, content []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func TestBuildMap_MissingRoot_YieldsEmptyMap(t *testing.T) {
	m, err := BuildMap(filepath.Join(t.TempDir(), "nope"), "")
	require.NoError(t, err)
	require.Zero(t, m.Len())
	require.Equal(t, "<p>x</p>", m.Rewrite("<p>x</p>"))
}

func TestHashBytes_Deterministic(t *testing.T) {
	data := []byte("logo bytes")
	h1 := HashBytes(data)
	h2 := HashBytes(data)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 8)
	require.NotEqual(t, h1, HashBytes([]byte("other bytes")))
}

func TestHashedName(t *testing.T) {
	require.Equal(t, "img/logo-abcd1234.png", HashedName("img/logo.png", "abcd1234"))
	require.Equal(t, "style-abcd1234.css", HashedName("style.css", "abcd1234"))
}

func TestBuildMap_DeterministicAcrossBuilds(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "img/logo.png", []byte("png-bytes"))

	m1, err := BuildMap(root, "")
	require.NoError(t, err)
	m2, err := BuildMap(root, "")
	require.NoError(t, err)
	require.Equal(t, m1.Entries()[0].HashedURL, m2.Entries()[0].HashedURL)
}

func TestRewrite_GuardedReplacement(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "logo.png", []byte("png"))
	m, err := BuildMap(root, "")
	require.NoError(t, err)
	hashed := m.Entries()[0].HashedURL

	html := `<img src="/public/logo.png"> <div style="background:url(/public/logo.png)"></div> <a href='/public/logo.png'>x</a>`
	out := m.Rewrite(html)
	require.NotContains(t, out, `"/public/logo.png"`)
	require.Contains(t, out, `"`+hashed+`"`)
	require.Contains(t, out, `(`+hashed+`)`)
	require.Contains(t, out, `'`+hashed+`'`)

	// A clean path embedded in unrelated prose is left alone.
	prose := `<p>see docs/public/logo.png for details</p>`
	require.Equal(t, prose, m.Rewrite(prose))
}

func TestRewrite_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "logo.png", []byte("png"))
	m, err := BuildMap(root, "")
	require.NoError(t, err)

	once := m.Rewrite(`<img src="/public/logo.png">`)
	twice := m.Rewrite(once)
	require.Equal(t, once, twice)
}

func TestRewrite_PrefixAssetDoesNotShadowLongerPath(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "app.js", []byte("code"))
	writeAsset(t, root, "app.js.map", []byte("map"))
	m, err := BuildMap(root, "")
	require.NoError(t, err)

	out := m.Rewrite(`<script src="/public/app.js"></script><a href="/public/app.js.map">map</a>`)

	var jsHashed, mapHashed string
	for _, e := range m.Entries() {
		switch e.RelPath {
		case "app.js":
			jsHashed = e.HashedURL
		case "app.js.map":
			mapHashed = e.HashedURL
		}
	}
	require.Contains(t, out, `src="`+jsHashed+`"`)
	require.Contains(t, out, `href="`+mapHashed+`"`, "the longer path must keep its own hash")
	require.NotContains(t, out, jsHashed+".map")
}

func TestRewrite_ExtensionlessAssetStaysIdempotent(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "LICENSE", []byte("text"))
	m, err := BuildMap(root, "")
	require.NoError(t, err)

	once := m.Rewrite(`<a href="/public/LICENSE">license</a>`)
	require.Contains(t, once, m.Entries()[0].HashedURL)

	twice := m.Rewrite(once)
	require.Equal(t, once, twice, "a hashed extensionless name must not hash again")
}

func TestBuildMap_HonorsBasePath(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "logo.png", []byte("png"))
	m, err := BuildMap(root, "/docs")
	require.NoError(t, err)
	e := m.Entries()[0]
	require.Equal(t, "/docs/public/logo.png", e.CleanURL)
	require.Contains(t, e.HashedURL, "/docs/public/logo-")
}

func TestReverseResolve(t *testing.T) {
	root := t.TempDir()
	writeAsset(t, root, "img/logo.png", []byte("png"))
	m, err := BuildMap(root, "")
	require.NoError(t, err)
	e := m.Entries()[0]

	src, ok := m.ReverseResolve(e.HashedURL)
	require.True(t, ok)
	require.Equal(t, e.SourcePath, src)

	_, ok = m.ReverseResolve("/public/unknown-12345678.png")
	require.False(t, ok)
}
