package devserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitegen/internal/bundler"
	"git.home.luguber.info/inful/sitegen/internal/config"
)

type stubRenderer struct {
	failPath string
}

func (s stubRenderer) RenderModule(_ context.Context, modulePath string, props map[string]any) (string, error) {
	if s.failPath != "" && strings.HasSuffix(modulePath, s.failPath) {
		return "", errors.New("component exploded at line 3")
	}
	children, _ := props["children"].(string)
	return fmt.Sprintf(`<div data-module=%q>%s</div>`, filepath.Base(modulePath), children), nil
}

type stubEngine struct{ calls int }

func (s *stubEngine) BundleFile(_ context.Context, entryPath string, _ bundler.Options) (string, error) {
	s.calls++
	data, err := os.ReadFile(entryPath)
	if err != nil {
		return "", err
	}
	return "// bundled\n" + string(data), nil
}

func (s *stubEngine) Close() error { return nil }

func writeFile(t *testing.T, root, rel, body string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newTestServer(t *testing.T, root string, cfg *config.Config, renderer stubRenderer, engine *stubEngine) *Server {
	t.Helper()
	s, err := NewServer(cfg, root, filepath.Join(root, "site.yaml"), renderer, engine, nil, nil)
	require.NoError(t, err)
	return s
}

func TestServer_ServesPageWithScriptsAndReloadInjection(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\n# Hello\n")

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readAll(t, resp)
	require.Contains(t, body, "<title>Home</title>")
	require.Contains(t, body, `<div id="app">`)
	require.Contains(t, body, "window.__SITE_PROPS__")
	require.Contains(t, body, `src="/__bundle/index.js"`)
	require.Contains(t, body, `src="/__livereload.js"></script></body>`)
}

func TestServer_BundleCacheHitSkipsRebuild(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")

	engine := &stubEngine{}
	s := newTestServer(t, root, config.Default(), stubRenderer{}, engine)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	first := getBody(t, srv.URL+"/__bundle/index.js")
	require.Contains(t, first, "// bundled")
	require.Equal(t, 1, engine.calls)

	second := getBody(t, srv.URL+"/__bundle/index.js")
	require.Equal(t, first, second)
	require.Equal(t, 1, engine.calls, "second request must come from the cache")
}

func TestServer_ChangeClearsBundleCache(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")

	engine := &stubEngine{}
	s := newTestServer(t, root, config.Default(), stubRenderer{}, engine)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	getBody(t, srv.URL+"/__bundle/index.js")
	require.Equal(t, 1, engine.calls)

	s.applyChanges([]FileChange{{Path: filepath.Join(root, "pages", "index.md"), Class: ClassPage, Op: fsnotify.Write}})

	getBody(t, srv.URL+"/__bundle/index.js")
	require.Equal(t, 2, engine.calls, "cache must be cleared wholesale on change")
}

func TestServer_UnknownRouteIsNotFound(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, readAll(t, resp), "404")
}

func TestServer_CustomNotFoundPage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")
	writeFile(t, root, "pages/_404.md", "---\ntitle: Lost\n---\n\nNothing to see here.\n")

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Contains(t, readAll(t, resp), "Nothing to see here.")
}

func TestServer_RenderFailureBecomesDiagnosticPage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/crash.tsx", "---\ntitle: Crash\n---\nexport default () => boom\n")

	s := newTestServer(t, root, config.Default(), stubRenderer{failPath: "crash.tsx"}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/crash")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	body := readAll(t, resp)
	require.Contains(t, body, "component exploded at line 3")
	require.Contains(t, body, "reloads automatically")
}

func TestServer_ServesHashedAndCleanAssets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")
	writeFile(t, root, "public/css/site.css", "body{color:red}")

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	entries := s.assetMap.Entries()
	require.Len(t, entries, 1)
	hashedURL := entries[0].HashedURL

	require.Equal(t, "body{color:red}", getBody(t, srv.URL+hashedURL))
	require.Equal(t, "body{color:red}", getBody(t, srv.URL+"/public/css/site.css"))

	resp, err := http.Get(srv.URL + "/public/css/missing.css")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_PublicChangeRebuildsAssetMap(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")
	cssPath := "public/css/site.css"
	writeFile(t, root, cssPath, "body{color:red}")

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	oldHashed := s.assetMap.Entries()[0].HashedURL

	writeFile(t, root, cssPath, "body{color:blue}")
	s.applyChanges([]FileChange{{Path: filepath.Join(root, filepath.FromSlash(cssPath)), Class: ClassPublic, Op: fsnotify.Write}})

	newHashed := s.assetMap.Entries()[0].HashedURL
	require.NotEqual(t, oldHashed, newHashed, "changed bytes must produce a new hashed URL")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	require.Equal(t, "body{color:blue}", getBody(t, srv.URL+newHashed))
}

func TestServer_RescanPicksUpNewPage(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/fresh")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	writeFile(t, root, "pages/fresh.md", "---\ntitle: Fresh\n---\n\nnew page\n")
	s.applyChanges([]FileChange{{Path: filepath.Join(root, "pages", "fresh.md"), Class: ClassPage, Op: fsnotify.Create}})

	body := getBody(t, srv.URL+"/fresh")
	require.Contains(t, body, "new page")
}

func TestServer_DocumentChangeTakesEffect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")
	shell := `<!DOCTYPE html><html data-shell=%q><head><title>{{.Title}}</title></head><body><div id="app">{{.Body}}</div>{{.Scripts}}</body></html>`
	writeFile(t, root, "pages/_document.html", fmt.Sprintf(shell, "v1"))

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	require.Contains(t, getBody(t, srv.URL+"/"), `data-shell="v1"`)

	writeFile(t, root, "pages/_document.html", fmt.Sprintf(shell, "v2"))
	s.applyChanges([]FileChange{{Path: filepath.Join(root, "pages", "_document.html"), Class: ClassSystem, Op: fsnotify.Write}})

	require.Contains(t, getBody(t, srv.URL+"/"), `data-shell="v2"`,
		"edited document shell must apply without a restart")
}

func TestServer_ConfigChangeTakesEffect(t *testing.T) {
	root := t.TempDir()
	// No frontmatter: the document title falls back to the site title.
	writeFile(t, root, "pages/index.md", "# hi\n")

	s := newTestServer(t, root, config.Default(), stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	require.NotContains(t, getBody(t, srv.URL+"/"), "<title>Renamed</title>")

	writeFile(t, root, "site.yaml", "site:\n  title: Renamed\n")
	s.applyChanges([]FileChange{{Path: filepath.Join(root, "site.yaml"), Class: ClassConfig, Op: fsnotify.Write}})

	require.Contains(t, getBody(t, srv.URL+"/"), "<title>Renamed</title>",
		"edited configuration must apply without a restart")
}

func TestServer_BasePathPrefix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/index.md", "---\ntitle: Home\n---\n\nhi\n")

	cfg := config.Default()
	cfg.Site.BasePath = "/docs"
	s := newTestServer(t, root, cfg, stubRenderer{}, &stubEngine{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	body := getBody(t, srv.URL+"/docs")
	require.Contains(t, body, "<title>Home</title>")

	resp, err := http.Get(srv.URL + "/elsewhere")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func getBody(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return readAll(t, resp)
}
