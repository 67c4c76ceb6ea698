package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitegen/internal/bundler"
	"git.home.luguber.info/inful/sitegen/internal/config"
	"git.home.luguber.info/inful/sitegen/internal/devserver"
	"git.home.luguber.info/inful/sitegen/internal/metrics"
	"git.home.luguber.info/inful/sitegen/internal/render"
	"git.home.luguber.info/inful/sitegen/internal/site"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"site.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Output string `short:"o" help:"Output directory override"`
	} `cmd:"" help:"Build the static site into the output directory"`

	Dev struct {
		Port    int  `short:"p" help:"Port override for the dev server"`
		Metrics bool `help:"Expose Prometheus metrics at /metrics"`
	} `cmd:"" help:"Serve the site with on-demand rendering and live reload"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	switch ctx.Command() {
	case "build":
		if CLI.Build.Output != "" {
			cfg.Dirs.Output = CLI.Build.Output
		}
		if err := runBuild(cfg); err != nil {
			slog.Error("Build failed", "error", err)
			os.Exit(1)
		}
	case "dev":
		if CLI.Dev.Port != 0 {
			cfg.Dev.Port = CLI.Dev.Port
		}
		if err := runDev(cfg, CLI.Dev.Metrics); err != nil {
			slog.Error("Dev server failed", "error", err)
			os.Exit(1)
		}
	}
}

// projectRoot anchors all configured directories at the directory holding
// the config file, so sitegen behaves the same from any working directory.
func projectRoot() (string, error) {
	abs, err := filepath.Abs(CLI.Config)
	if err != nil {
		return "", err
	}
	return filepath.Dir(abs), nil
}

func newRenderer(cfg *config.Config) (render.ModuleRenderer, error) {
	cmd := cfg.Render.SSRCommand
	if len(cmd) == 0 {
		// Markdown-only projects never invoke the helper; fail lazily at
		// first component render with a clear command name instead.
		cmd = []string{"sitegen-ssr"}
	}
	return render.NewExecRenderer(cmd)
}

func runBuild(cfg *config.Config) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	renderer, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	engine, err := bundler.NewExecEngine(cfg.Bundler.Command)
	if err != nil {
		return err
	}

	builder, err := site.NewBuilder(cfg, root, renderer, engine, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	defer func() {
		if err := builder.Close(); err != nil {
			slog.Warn("bundler close", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := builder.Build(ctx)
	if err != nil {
		return err
	}
	if report.Outcome != site.OutcomeSuccess {
		slog.Warn("build completed with failures", "outcome", string(report.Outcome), "failed_pages", report.FailedPages)
	}
	return nil
}

func runDev(cfg *config.Config, enableMetrics bool) error {
	root, err := projectRoot()
	if err != nil {
		return err
	}
	renderer, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	engine, err := bundler.NewExecEngine(cfg.Bundler.Command)
	if err != nil {
		return err
	}

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	var metricsHTTP http.Handler
	if enableMetrics {
		prom := metrics.NewPrometheusRecorder(nil)
		recorder = prom
		metricsHTTP = prom.Handler()
	}

	configPath, err := filepath.Abs(CLI.Config)
	if err != nil {
		return err
	}
	srv, err := devserver.NewServer(cfg, root, configPath, renderer, engine, recorder, metricsHTTP)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return srv.Run(ctx)
}
