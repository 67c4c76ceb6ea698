package site

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/sitegen/internal/assets"
	"git.home.luguber.info/inful/sitegen/internal/content"
	"git.home.luguber.info/inful/sitegen/internal/logfields"
)

// Stage is a discrete unit of work in the site build.
type Stage func(ctx context.Context, bs *BuildState) error

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Build must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// Stage names, in execution order.
const (
	StagePrepareOutput  = "prepare_output"
	StageScanPages      = "scan_pages"
	StageHashAssets     = "hash_assets"
	StageRenderPages    = "render_pages"
	StageCopyAssets     = "copy_assets"
	StageSystemPages    = "system_pages"
	StageWriteArtifacts = "write_artifacts"
)

// buildStages returns the stage sequence of a full build.
func buildStages() []struct {
	name string
	fn   Stage
} {
	return []struct {
		name string
		fn   Stage
	}{
		{StagePrepareOutput, stagePrepareOutput},
		{StageScanPages, stageScanPages},
		{StageHashAssets, stageHashAssets},
		{StageRenderPages, stageRenderPages},
		{StageCopyAssets, stageCopyAssets},
		{StageSystemPages, stageSystemPages},
		{StageWriteArtifacts, stageWriteArtifacts},
	}
}

// BuildState carries mutable state across stages of one build pass.
type BuildState struct {
	Builder *Builder
	Entries []content.ContentEntry
	Assets  *assets.Map
	Pages   []*Page
	Report  *BuildReport
	Timings map[string]time.Duration
	start   time.Time
}

func newBuildState(b *Builder, report *BuildReport) *BuildState {
	return &BuildState{
		Builder: b,
		Report:  report,
		Timings: make(map[string]time.Duration),
		start:   time.Now(),
	}
}

// runStages executes stages in order, recording timing and stopping on
// the first fatal or canceled error. Warnings are recorded and the run
// continues.
func runStages(ctx context.Context, bs *BuildState, stages []struct {
	name string
	fn   Stage
}) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(st.name, ctx.Err())
			bs.Report.recordStageError(st.name, se)
			return se
		default:
		}

		t0 := time.Now()
		err := st.fn(ctx, bs)
		dur := time.Since(t0)
		bs.Timings[st.name] = dur
		bs.Report.StageDurations[st.name] = dur
		slog.Debug("stage complete", logfields.Stage(st.name), logfields.DurationMS(float64(dur.Milliseconds())))

		if err == nil {
			continue
		}
		var se *StageError
		if !errors.As(err, &se) {
			se = newFatalStageError(st.name, err)
		}
		bs.Report.recordStageError(st.name, se)
		if se.Kind == StageErrorWarning {
			slog.Warn("stage warning", logfields.Stage(st.name), logfields.Error(se.Err))
			continue
		}
		return se
	}
	return nil
}
