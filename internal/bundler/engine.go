package bundler

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Engine is the seam to the external bundler process. BundleFile bundles
// the entry point at entryPath and returns the bundled code.
type Engine interface {
	BundleFile(ctx context.Context, entryPath string, opts Options) (string, error)
	// Close releases any process or service the engine holds. Called
	// exactly once when the owner shuts down.
	Close() error
}

// ExecEngine invokes a bundler executable (esbuild by default) per call.
// The configured command carries the fixed flags; mode-dependent flags
// are appended from Options.
type ExecEngine struct {
	command []string
}

// NewExecEngine creates an ExecEngine from a command line.
func NewExecEngine(command []string) (*ExecEngine, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("bundler command is empty")
	}
	return &ExecEngine{command: command}, nil
}

func (e *ExecEngine) BundleFile(ctx context.Context, entryPath string, opts Options) (string, error) {
	args := append([]string{}, e.command[1:]...)
	args = append(args, entryPath)
	if opts.Minify {
		args = append(args, "--minify")
	}
	if opts.Sourcemap == SourcemapInline {
		args = append(args, "--sourcemap=inline")
	}

	cmd := exec.CommandContext(ctx, e.command[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("bundler failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// Close is a no-op: each invocation is a fresh process.
func (e *ExecEngine) Close() error { return nil }
