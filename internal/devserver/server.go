// Package devserver serves the site during development: pages render on
// demand, hydration bundles build lazily behind a bounded cache, and
// filesystem changes push reload notifications to connected browsers.
package devserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"git.home.luguber.info/inful/sitegen/internal/assets"
	"git.home.luguber.info/inful/sitegen/internal/bundler"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/site"
)

// Dev-only endpoint paths. They live outside the configured base path;
// the dev server owns the whole host.
const (
	ReloadPath       = "/__livereload"
	ReloadScriptPath = "/__livereload.js"
	BundlePrefix     = "/__bundle/"
)

// Server is the development HTTP server.
type Server struct {
	cfg         *config.Config
	projectRoot string
	configPath  string
	pipeline    *site.Pipeline
	doc         *site.Document
	bundles     *bundler.Builder
	recorder    metrics.Recorder
	metricsHTTP http.Handler
	hub         *ReloadHub
	watcher     *Watcher

	// mu also guards cfg and doc: both are replaced wholesale when the
	// config file or a reserved system file changes mid-session.
	mu           sync.RWMutex
	routesByPath map[string]content.ContentEntry
	routesByID   map[string]content.ContentEntry
	assetMap     *assets.Map

	cache *lru.Cache[string, *bundler.Bundle]
}

// NewServer wires a dev server over the project root. metricsHTTP may be
// nil; the /metrics endpoint is then absent.
func NewServer(cfg *config.Config, projectRoot, configPath string, renderer render.ModuleRenderer, engine bundler.Engine, recorder metrics.Recorder, metricsHTTP http.Handler) (*Server, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	contentRoot := filepath.Join(projectRoot, cfg.Dirs.Content)
	doc, err := site.NewDocument(contentRoot, cfg)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *bundler.Bundle](cfg.Dev.BundleCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:         cfg,
		projectRoot: projectRoot,
		configPath:  configPath,
		pipeline:    site.NewPipeline(contentRoot, renderer),
		doc:         doc,
		bundles:     bundler.NewBuilder(engine, projectRoot),
		recorder:    recorder,
		metricsHTTP: metricsHTTP,
		hub:         NewReloadHub(recorder),
		cache:       cache,
	}
	if err := s.rescan(); err != nil {
		return nil, err
	}
	if err := s.rebuildAssets(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) contentRoot() string { return filepath.Join(s.projectRoot, s.config().Dirs.Content) }
func (s *Server) publicRoot() string  { return filepath.Join(s.projectRoot, s.config().Dirs.Public) }

func (s *Server) config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) document() *site.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Run serves until ctx is canceled, then shuts down: reload clients are
// closed, the watcher stops synchronously and the HTTP server drains.
func (s *Server) Run(ctx context.Context) error {
	port := s.config().Dev.Port
	debounce := time.Duration(s.config().Dev.DebounceMS) * time.Millisecond
	watcher, err := NewWatcher(s.contentRoot(), s.publicRoot(), s.configPath, debounce)
	if err != nil {
		return err
	}
	s.watcher = watcher
	go s.consumeChanges(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("dev server listening", slog.Int("port", port))

	select {
	case <-ctx.Done():
		s.hub.Shutdown()
		watcher.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("dev server shutdown", logfields.Error(err))
		}
		return nil
	case err := <-errCh:
		s.hub.Shutdown()
		watcher.Stop()
		return err
	}
}

// Handler builds the full dev handler, with reload-script injection
// wrapped around page responses.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(ReloadPath, s.hub)
	mux.HandleFunc(ReloadScriptPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		_, _ = w.Write([]byte(ReloadScript))
	})
	mux.HandleFunc(BundlePrefix, s.handleBundle)
	if s.metricsHTTP != nil {
		mux.Handle("/metrics", s.metricsHTTP)
	}
	mux.HandleFunc("/", s.handleRequest)
	return s.injectReloadScript(mux)
}

// consumeChanges applies debounced change batches: the bundle cache is
// cleared wholesale, the asset map rebuilds only when a public asset
// changed, the route table rebuilds for everything else, and one reload
// token broadcasts per batch.
func (s *Server) consumeChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.watcher.Changes():
			if !ok {
				return
			}
			s.applyChanges(batch)
		}
	}
}

func (s *Server) applyChanges(batch []FileChange) {
	s.cache.Purge()

	var publicChanged, contentChanged, systemChanged, configChanged bool
	for _, c := range batch {
		switch c.Class {
		case ClassPublic:
			publicChanged = true
		case ClassConfig:
			configChanged = true
		case ClassSystem:
			systemChanged = true
			contentChanged = true
		default:
			contentChanged = true
		}
		slog.Info("change detected", logfields.Path(c.Path), logfields.ChangeType(string(c.Class)))
	}
	if configChanged {
		s.reloadConfig()
	}
	// The base path is baked into asset URLs, so a config change also
	// invalidates the asset map.
	if publicChanged || configChanged {
		if err := s.rebuildAssets(); err != nil {
			slog.Error("asset map rebuild failed", logfields.Error(err))
		}
	}
	if systemChanged || configChanged {
		s.reloadDocument()
	}
	if contentChanged {
		if err := s.rescan(); err != nil {
			slog.Error("content rescan failed", logfields.Error(err))
		}
	}
	s.hub.Broadcast(reloadToken(batch))
}

// reloadConfig re-reads the config file so title, base path and render
// settings apply without a restart. The port, debounce window and
// directory layout stay fixed for the session; the watcher, pipeline and
// listener were wired against them and changing those needs a restart.
func (s *Server) reloadConfig() {
	cfg, err := config.Load(s.configPath)
	if err != nil {
		slog.Error("config reload failed", logfields.Error(err))
		return
	}
	s.mu.Lock()
	cfg.Dev.Port = s.cfg.Dev.Port
	cfg.Dev.DebounceMS = s.cfg.Dev.DebounceMS
	cfg.Dirs = s.cfg.Dirs
	s.cfg = cfg
	s.mu.Unlock()
	slog.Info("configuration reloaded", logfields.Path(s.configPath))
}

// reloadDocument re-resolves the document shell so edits to the
// _document.html override take effect on the next request.
func (s *Server) reloadDocument() {
	doc, err := site.NewDocument(s.contentRoot(), s.config())
	if err != nil {
		slog.Error("document reload failed", logfields.Error(err))
		return
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
}

// reloadToken derives a broadcast token from the batch contents plus the
// wall clock, so successive batches over the same paths still differ.
func reloadToken(batch []FileChange) string {
	var b strings.Builder
	for _, c := range batch {
		b.WriteString(c.Path)
		b.WriteByte(';')
	}
	b.WriteString(time.Now().Format(time.RFC3339Nano))
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

func (s *Server) rescan() error {
	entries, err := content.NewScanner(s.contentRoot()).Scan()
	if err != nil {
		return err
	}
	byPath := make(map[string]content.ContentEntry, len(entries))
	byID := make(map[string]content.ContentEntry, len(entries))
	for _, e := range entries {
		byPath[e.RoutePath] = e
		byID[content.PageID(e.RoutePath)] = e
	}
	s.mu.Lock()
	s.routesByPath = byPath
	s.routesByID = byID
	s.mu.Unlock()
	return nil
}

func (s *Server) rebuildAssets() error {
	m, err := assets.BuildMap(s.publicRoot(), s.config().Site.BasePath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.assetMap = m
	s.mu.Unlock()
	return nil
}

// handleRequest serves page routes and static assets under the
// configured base path.
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if bp := s.config().Site.BasePath; bp != "" {
		if path == bp {
			path = "/"
		} else if strings.HasPrefix(path, bp+"/") {
			path = strings.TrimPrefix(path, bp)
		} else {
			s.serveNotFound(w, r)
			return
		}
	}

	if strings.HasPrefix(path, assets.URLPrefix) {
		s.serveAsset(w, r)
		return
	}
	s.servePage(w, r, normalizeRoute(path))
}

func normalizeRoute(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// serveAsset serves both hashed URLs (reverse-resolved through the asset
// map back to the source file) and clean URLs straight from the public
// root. An unknown asset is a plain not-found, never an error.
func (s *Server) serveAsset(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	assetMap := s.assetMap
	basePath := s.cfg.Site.BasePath
	s.mu.RUnlock()

	if src, ok := assetMap.ReverseResolve(r.URL.Path); ok {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		http.ServeFile(w, r, src)
		return
	}

	rel := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, basePath), assets.URLPrefix)
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.publicRoot(), clean))
}

// servePage renders the route on demand and assembles the full document
// with props and bundle scripts. Render failures become a diagnostic
// error page, never a server crash.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request, route string) {
	s.mu.RLock()
	entry, ok := s.routesByPath[route]
	assetMap := s.assetMap
	doc := s.doc
	s.mu.RUnlock()
	if !ok {
		s.serveNotFound(w, r)
		return
	}

	t0 := time.Now()
	page, err := s.pipeline.RenderPage(r.Context(), entry)
	s.recorder.ObservePageRenderDuration(time.Since(t0))
	if err != nil {
		s.recorder.IncPageResult(metrics.ResultFailed)
		s.serveRenderError(w, r, route, err)
		return
	}
	s.recorder.IncPageResult(metrics.ResultSuccess)

	propsJSON, err := page.PropsJSON()
	if err != nil {
		s.serveRenderError(w, r, route, err)
		return
	}
	scripts := site.PropsScript(propsJSON) + "\n" + site.ModuleScript(BundlePrefix+page.ID+".js")

	html, err := doc.Render(page.Frontmatter, page.Head, page.Body, scripts)
	if err != nil {
		s.serveRenderError(w, r, route, err)
		return
	}
	html = assetMap.Rewrite(html)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(html))
}

// handleBundle serves dev hydration bundles from the LRU cache, building
// on miss. Dev bundles carry inline sourcemaps and no content hash.
func (s *Server) handleBundle(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, BundlePrefix)
	if !strings.HasSuffix(name, ".js") {
		http.NotFound(w, r)
		return
	}
	pageID := strings.TrimSuffix(name, ".js")

	if bundle, ok := s.cache.Get(pageID); ok {
		s.recorder.IncBundleCacheLookup(true)
		writeBundle(w, bundle)
		return
	}
	s.recorder.IncBundleCacheLookup(false)

	s.mu.RLock()
	entry, ok := s.routesByID[pageID]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	chain, err := render.ResolveLayoutChain(s.contentRoot(), entry.FilePath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	spec := bundler.EntrySpec{PageID: pageID}
	if entry.Kind == content.KindComponent {
		spec.PagePath = entry.FilePath
	}
	for _, l := range chain {
		spec.LayoutPaths = append(spec.LayoutPaths, l.Path)
	}

	bundle, err := s.bundles.Build(r.Context(), spec, bundler.DevOptions())
	if err != nil {
		slog.Error("dev bundle failed", logfields.Page(pageID), logfields.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.cache.Add(pageID, bundle)
	writeBundle(w, bundle)
}

func writeBundle(w http.ResponseWriter, b *bundler.Bundle) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(b.Code))
}

// serveNotFound renders the project's _404 page when defined, falling
// back to a built-in minimal body. Not-found is an expected outcome and
// is never logged as an error.
func (s *Server) serveNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)

	if entry, ok := s.pipeline.SystemPage(content.SystemNotFound); ok {
		if page, err := s.pipeline.RenderPage(r.Context(), entry); err == nil {
			if html, err := s.document().Render(page.Frontmatter, page.Head, page.Body, ""); err == nil {
				_, _ = w.Write([]byte(html))
				return
			}
		}
	}
	_, _ = w.Write([]byte(builtinNotFoundPage))
}

// serveRenderError converts a dev-time render failure into a diagnostic
// page carrying the message, on top of the project's _500 body when one
// renders cleanly.
func (s *Server) serveRenderError(w http.ResponseWriter, r *http.Request, route string, cause error) {
	slog.Error("dev render failed", logfields.Route(route), logfields.Error(cause))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)

	body := builtinErrorBody
	if entry, ok := s.pipeline.SystemPage(content.SystemError); ok {
		if page, err := s.pipeline.RenderPage(r.Context(), entry); err == nil {
			body = page.Body
		}
	}
	_, _ = fmt.Fprintf(w, errorPageTemplate, body, htmlEscape(cause.Error()))
}

func htmlEscape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

const builtinNotFoundPage = `<!DOCTYPE html>
<html><head><title>404 Not Found</title></head>
<body><div id="app"><h1>404</h1><p>Page not found.</p></div></body></html>
`

const builtinErrorBody = `<h1>500</h1><p>Something went wrong rendering this page.</p>`

// errorPageTemplate wraps the error body with the dev diagnostic overlay.
// The overlay names the failure and tells the reader the page recovers
// automatically once the underlying file is fixed.
const errorPageTemplate = `<!DOCTYPE html>
<html><head><title>Render error</title></head>
<body>
<div id="app">%s</div>
<div style="position:fixed;bottom:0;left:0;right:0;background:#300;color:#fdd;font-family:monospace;padding:1em;max-height:50vh;overflow:auto">
<strong>Render error</strong>
<pre style="white-space:pre-wrap">%s</pre>
<p>This page reloads automatically once the underlying file is fixed.</p>
</div>
</body></html>
`

// injectReloadScript wraps page responses so the reload client script is
// injected immediately before the closing body tag. Dev endpoints and
// asset responses pass through untouched; the SSE stream in particular
// must keep its Flusher.
func (s *Server) injectReloadScript(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if strings.HasPrefix(path, "/__") || path == "/metrics" ||
			strings.HasPrefix(strings.TrimPrefix(path, s.config().Site.BasePath), assets.URLPrefix) {
			next.ServeHTTP(w, r)
			return
		}
		injector := newReloadInjector(w)
		next.ServeHTTP(injector, r)
		injector.finalize()
	})
}

// reloadInjector buffers an HTML response so the reload script tag can be
// inserted before </body>. Non-HTML responses and oversized bodies switch
// to passthrough so a large download never stalls behind the buffer.
type reloadInjector struct {
	http.ResponseWriter
	statusCode    int
	buffer        []byte
	headerWritten bool
	passthrough   bool
	maxSize       int
}

func newReloadInjector(w http.ResponseWriter) *reloadInjector {
	return &reloadInjector{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		maxSize:        512 * 1024,
	}
}

func (l *reloadInjector) WriteHeader(code int) {
	l.statusCode = code
	if l.passthrough {
		l.ResponseWriter.WriteHeader(code)
		l.headerWritten = true
	}
}

func (l *reloadInjector) Write(data []byte) (int, error) {
	if !l.headerWritten && !l.passthrough && l.buffer == nil {
		contentType := l.ResponseWriter.Header().Get("Content-Type")
		isHTML := contentType == "" || strings.Contains(contentType, "text/html")
		if !isHTML {
			l.passthrough = true
			l.ResponseWriter.WriteHeader(l.statusCode)
			l.headerWritten = true
			return l.ResponseWriter.Write(data)
		}
		l.buffer = make([]byte, 0, 64*1024)
	}

	if l.passthrough {
		return l.ResponseWriter.Write(data)
	}

	if len(l.buffer)+len(data) > l.maxSize {
		l.passthrough = true
		l.ResponseWriter.Header().Del("Content-Length")
		l.ResponseWriter.WriteHeader(l.statusCode)
		l.headerWritten = true
		if len(l.buffer) > 0 {
			if _, err := l.ResponseWriter.Write(l.buffer); err != nil {
				return 0, err
			}
		}
		return l.ResponseWriter.Write(data)
	}

	l.buffer = append(l.buffer, data...)
	return len(data), nil
}

// finalize injects the script tag and flushes the buffered body.
func (l *reloadInjector) finalize() {
	if l.passthrough || len(l.buffer) == 0 {
		if !l.headerWritten {
			l.ResponseWriter.WriteHeader(l.statusCode)
		}
		return
	}
	html := string(l.buffer)
	script := fmt.Sprintf(`<script async src="%s"></script></body>`, ReloadScriptPath)
	modified := strings.Replace(html, "</body>", script, 1)

	l.ResponseWriter.Header().Del("Content-Length")
	l.ResponseWriter.WriteHeader(l.statusCode)
	_, _ = l.ResponseWriter.Write([]byte(modified))
}
