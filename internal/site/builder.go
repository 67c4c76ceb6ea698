package site

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitegen/internal/assets"
	"git.home.luguber.info/inful/sitegen/internal/bundler"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/content"
	siteerrors "git.home.luguber.info/inful/sitegen/internal/errors"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/render"
)

// defaultRenderConcurrency bounds concurrent page pipelines. Page work is
// dominated by external helper processes, so a small bound keeps the
// process count sane.
const defaultRenderConcurrency = 4

// Builder orchestrates a full static build.
type Builder struct {
	cfg         *config.Config
	projectRoot string
	pipeline    *Pipeline
	bundles     *bundler.Builder
	doc         *Document
	recorder    metrics.Recorder
	concurrency int
}

// NewBuilder wires a Builder over the project root. A nil recorder
// defaults to no-op metrics.
func NewBuilder(cfg *config.Config, projectRoot string, renderer render.ModuleRenderer, engine bundler.Engine, recorder metrics.Recorder) (*Builder, error) {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	doc, err := NewDocument(filepath.Join(projectRoot, cfg.Dirs.Content), cfg)
	if err != nil {
		return nil, err
	}
	return &Builder{
		cfg:         cfg,
		projectRoot: projectRoot,
		pipeline:    NewPipeline(filepath.Join(projectRoot, cfg.Dirs.Content), renderer),
		bundles:     bundler.NewBuilder(engine, projectRoot),
		doc:         doc,
		recorder:    recorder,
		concurrency: defaultRenderConcurrency,
	}, nil
}

// Close releases the bundler engine.
func (b *Builder) Close() error { return b.bundles.Close() }

func (b *Builder) contentRoot() string { return filepath.Join(b.projectRoot, b.cfg.Dirs.Content) }
func (b *Builder) publicRoot() string  { return filepath.Join(b.projectRoot, b.cfg.Dirs.Public) }
func (b *Builder) outputRoot() string  { return filepath.Join(b.projectRoot, b.cfg.Dirs.Output) }

// Build runs the full stage pipeline and returns the report. The report
// is returned even when the build fails; err is non-nil only for fatal
// or canceled builds.
func (b *Builder) Build(ctx context.Context) (*BuildReport, error) {
	report := newBuildReport()
	slog.Info("build starting", logfields.BuildID(report.BuildID), logfields.Dir(b.outputRoot()))

	bs := newBuildState(b, report)
	err := runStages(ctx, bs, buildStages())
	report.finish()

	b.recorder.ObserveBuildDuration(report.Duration())
	b.recorder.IncBuildOutcome(metrics.BuildOutcomeLabel(report.Outcome))

	if perr := report.Persist(b.outputRoot()); perr != nil {
		slog.Warn("persist build report failed", logfields.Error(perr))
	}
	slog.Info("build finished", logfields.BuildID(report.BuildID), slog.String("summary", report.Summary()))
	return report, err
}

// stagePrepareOutput fully removes and recreates the output directory.
// No incremental or partial-output mode exists.
func stagePrepareOutput(_ context.Context, bs *BuildState) error {
	out := bs.Builder.outputRoot()
	if err := os.RemoveAll(out); err != nil {
		return newFatalStageError(StagePrepareOutput, siteerrors.OutputDirError("remove", err))
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return newFatalStageError(StagePrepareOutput, siteerrors.OutputDirError("create", err))
	}
	return nil
}

// stageScanPages discovers the page inventory and aborts on duplicate
// routes before any rendering begins.
func stageScanPages(_ context.Context, bs *BuildState) error {
	entries, err := content.NewScanner(bs.Builder.contentRoot()).Scan()
	if err != nil {
		return newFatalStageError(StageScanPages, err)
	}
	if err := content.CheckDuplicateRoutes(entries); err != nil {
		return newFatalStageError(StageScanPages, err)
	}
	bs.Entries = entries
	bs.Report.Pages = len(entries)
	return nil
}

func stageHashAssets(_ context.Context, bs *BuildState) error {
	m, err := assets.BuildMap(bs.Builder.publicRoot(), bs.Builder.cfg.Site.BasePath)
	if err != nil {
		return newFatalStageError(StageHashAssets, err)
	}
	bs.Assets = m
	bs.Report.Assets = m.Len()
	return nil
}

// stageRenderPages drives the per-page pipeline with bounded concurrency.
// A failed page is recorded and skipped; it never aborts sibling pages.
func stageRenderPages(ctx context.Context, bs *BuildState) error {
	b := bs.Builder
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, entry := range bs.Entries {
		entry := entry
		g.Go(func() error {
			t0 := time.Now()
			page, err := b.renderAndWrite(gctx, entry, bs.Assets)
			b.recorder.ObservePageRenderDuration(time.Since(t0))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.recorder.IncPageResult(metrics.ResultFailed)
				bs.Report.addPageError(entry.RoutePath, err)
				slog.Error("page failed", logfields.Route(entry.RoutePath), logfields.Error(err))
				return nil
			}
			b.recorder.IncPageResult(metrics.ResultSuccess)
			bs.Report.RenderedPages++
			bs.Pages = append(bs.Pages, page)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return newFatalStageError(StageRenderPages, err)
	}
	if ctx.Err() != nil {
		return newCanceledStageError(StageRenderPages, ctx.Err())
	}
	if bs.Report.FailedPages > 0 {
		return newWarnStageError(StageRenderPages,
			fmt.Errorf("%d of %d pages failed", bs.Report.FailedPages, len(bs.Entries)))
	}
	return nil
}

// renderAndWrite runs one page's full pipeline: render, bundle, assemble
// document, rewrite asset references, write output.
func (b *Builder) renderAndWrite(ctx context.Context, entry content.ContentEntry, assetMap *assets.Map) (*Page, error) {
	page, err := b.pipeline.RenderPage(ctx, entry)
	if err != nil {
		return nil, err
	}

	spec := bundler.EntrySpec{PageID: page.ID, LayoutPaths: page.LayoutPaths()}
	if entry.Kind == content.KindComponent {
		spec.PagePath = entry.FilePath
	}
	bundle, err := b.bundles.Build(ctx, spec, bundler.ProdOptions())
	if err != nil {
		return nil, err
	}

	bundlePath := filepath.Join(b.outputRoot(), "public", bundle.Filename)
	if err := os.MkdirAll(filepath.Dir(bundlePath), 0o755); err != nil {
		return nil, siteerrors.OutputDirError("create bundle dir", err)
	}
	if err := os.WriteFile(bundlePath, []byte(bundle.Code), 0o644); err != nil {
		return nil, siteerrors.BundleError(page.ID, err)
	}

	propsJSON, err := page.PropsJSON()
	if err != nil {
		return nil, err
	}
	scripts := PropsScript(propsJSON) + "\n" +
		ModuleScript(b.cfg.PrefixedPath(assets.URLPrefix+bundle.Filename))

	html, err := b.doc.Render(page.Frontmatter, page.Head, page.Body, scripts)
	if err != nil {
		return nil, siteerrors.RenderError(entry.RoutePath, err)
	}
	html = assetMap.Rewrite(html)

	outPath := OutputPath(b.outputRoot(), entry.RoutePath)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return nil, siteerrors.OutputDirError("create page dir", err)
	}
	if err := os.WriteFile(outPath, []byte(html), 0o644); err != nil {
		return nil, siteerrors.RenderError(entry.RoutePath, err)
	}
	return page, nil
}

// stageCopyAssets publishes every asset under its hashed name in the
// output's public directory.
func stageCopyAssets(_ context.Context, bs *BuildState) error {
	out := filepath.Join(bs.Builder.outputRoot(), "public")
	for _, e := range bs.Assets.Entries() {
		data, err := os.ReadFile(e.SourcePath)
		if err != nil {
			return newFatalStageError(StageCopyAssets, siteerrors.Wrap(err, siteerrors.CategoryAsset, siteerrors.SeverityFatal, "read asset").WithContext("path", e.SourcePath))
		}
		dst := filepath.Join(out, filepath.FromSlash(e.HashedRel))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return newFatalStageError(StageCopyAssets, siteerrors.OutputDirError("create asset dir", err))
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return newFatalStageError(StageCopyAssets, siteerrors.Wrap(err, siteerrors.CategoryAsset, siteerrors.SeverityFatal, "write asset").WithContext("path", dst))
		}
	}
	return nil
}

// stageSystemPages publishes the project's _404/_500 fallbacks as
// 404.html and 500.html when defined. Failures here are warnings; the
// site itself already published.
func stageSystemPages(ctx context.Context, bs *BuildState) error {
	b := bs.Builder
	var firstErr error
	for stem, file := range map[string]string{
		content.SystemNotFound: "404.html",
		content.SystemError:    "500.html",
	} {
		entry, ok := b.pipeline.SystemPage(stem)
		if !ok {
			continue
		}
		page, err := b.pipeline.RenderPage(ctx, entry)
		if err == nil {
			var html string
			html, err = b.doc.Render(page.Frontmatter, page.Head, page.Body, "")
			if err == nil {
				html = bs.Assets.Rewrite(html)
				err = os.WriteFile(filepath.Join(b.outputRoot(), file), []byte(html), 0o644)
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return newWarnStageError(StageSystemPages, firstErr)
	}
	return nil
}

// stageWriteArtifacts emits sitemap.xml, robots.txt and site.webmanifest.
// Artifacts need an absolute base URL; without one the stage is a no-op.
// They run only after all page writes, so the URL set always reflects the
// actual output content of this pass.
func stageWriteArtifacts(_ context.Context, bs *BuildState) error {
	b := bs.Builder
	if b.cfg.Site.BaseURL == "" {
		slog.Debug("no base_url configured, skipping artifacts")
		return nil
	}
	routes := make([]string, 0, len(bs.Pages))
	for _, p := range bs.Pages {
		routes = append(routes, p.Entry.RoutePath)
	}
	if err := writeSitemap(b.outputRoot(), b.cfg, routes); err != nil {
		return newWarnStageError(StageWriteArtifacts, err)
	}
	if err := writeRobots(b.outputRoot(), b.cfg); err != nil {
		return newWarnStageError(StageWriteArtifacts, err)
	}
	if err := writeManifest(b.outputRoot(), b.cfg); err != nil {
		return newWarnStageError(StageWriteArtifacts, err)
	}
	return nil
}
