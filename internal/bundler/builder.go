package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	siteerrors "git.home.luguber.info/inful/sitegen/internal/errors"
)

// Builder generates entry points and drives the bundler engine. One
// Builder serves both the static build and the dev server; the mode
// lives entirely in Options.
type Builder struct {
	engine  Engine
	workDir string
}

// NewBuilder creates a Builder. Entry points are staged under
// workDir/.sitegen so bare module specifiers resolve against the
// project root.
func NewBuilder(engine Engine, workDir string) *Builder {
	return &Builder{engine: engine, workDir: workDir}
}

// Build synthesizes the entry point for spec and bundles it. Engine
// failure is fatal for this page only; callers decide whether sibling
// pages continue.
func (b *Builder) Build(ctx context.Context, spec EntrySpec, opts Options) (*Bundle, error) {
	source := GenerateEntryPoint(spec)

	stageDir := filepath.Join(b.workDir, ".sitegen")
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return nil, siteerrors.Wrap(err, siteerrors.CategoryFileSystem, siteerrors.SeverityError, "create bundle staging dir")
	}
	// Per-call temp name: concurrent builds of the same page must never
	// share a staged entry file, or one call's cleanup races the other's
	// engine read.
	f, err := os.CreateTemp(stageDir, fmt.Sprintf("entry-%s-*.js", spec.PageID))
	if err != nil {
		return nil, siteerrors.Wrap(err, siteerrors.CategoryFileSystem, siteerrors.SeverityError, "create bundle entry point")
	}
	entryPath := f.Name()
	defer func() { _ = os.Remove(entryPath) }()
	if _, err := f.WriteString(source); err != nil {
		_ = f.Close()
		return nil, siteerrors.Wrap(err, siteerrors.CategoryFileSystem, siteerrors.SeverityError, "write bundle entry point")
	}
	if err := f.Close(); err != nil {
		return nil, siteerrors.Wrap(err, siteerrors.CategoryFileSystem, siteerrors.SeverityError, "write bundle entry point")
	}

	code, err := b.engine.BundleFile(ctx, entryPath, opts)
	if err != nil {
		return nil, siteerrors.BundleError(spec.PageID, err)
	}

	bundle := &Bundle{PageID: spec.PageID, Code: code}
	if opts.Hash {
		bundle.Filename = HashedFilename(spec.PageID, source)
	}
	return bundle, nil
}

// Close releases the underlying engine.
func (b *Builder) Close() error { return b.engine.Close() }

// HashedFilename derives the production bundle filename from the entry
// point source bytes: a pure function of bytes, so identical source
// always yields the identical filename across independent builds.
func HashedFilename(pageID, entrySource string) string {
	sum := xxhash.Sum64String(entrySource)
	return fmt.Sprintf("%s-%08x.js", pageID, sum&0xffffffff)
}
