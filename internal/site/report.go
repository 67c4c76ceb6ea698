package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// BuildOutcome is the typed enumeration of final build result states.
type BuildOutcome string

const (
	OutcomeSuccess  BuildOutcome = "success"  // every page published
	OutcomePartial  BuildOutcome = "partial"  // some pages failed, build completed
	OutcomeFailed   BuildOutcome = "failed"   // fatal error aborted the build
	OutcomeCanceled BuildOutcome = "canceled" // context cancellation
)

// PageError records one per-page failure without aborting sibling pages.
type PageError struct {
	Route   string `json:"route"`
	Message string `json:"message"`
}

// BuildReport captures metrics about one site generation run.
type BuildReport struct {
	BuildID        string
	Start          time.Time
	End            time.Time
	Pages          int // pages discovered
	RenderedPages  int // pages written to the output dir
	FailedPages    int
	Assets         int
	StageDurations map[string]time.Duration
	StageErrors    map[string]string // stage -> error kind
	PageErrors     []PageError
	Errors         []error
	Warnings       []error
	Outcome        BuildOutcome
}

func newBuildReport() *BuildReport {
	return &BuildReport{
		BuildID:        uuid.NewString(),
		Start:          time.Now(),
		StageDurations: make(map[string]time.Duration),
		StageErrors:    make(map[string]string),
	}
}

func (r *BuildReport) recordStageError(stage string, se *StageError) {
	r.StageErrors[stage] = string(se.Kind)
	if se.Kind == StageErrorWarning {
		r.Warnings = append(r.Warnings, se)
		return
	}
	r.Errors = append(r.Errors, se)
}

func (r *BuildReport) addPageError(route string, err error) {
	r.FailedPages++
	r.PageErrors = append(r.PageErrors, PageError{Route: route, Message: err.Error()})
}

func (r *BuildReport) finish() {
	r.End = time.Now()
	r.deriveOutcome()
}

// deriveOutcome sets Outcome from the recorded errors. A build with only
// page-level failures is partial: it completed, but not every page
// published.
func (r *BuildReport) deriveOutcome() {
	for _, e := range r.Errors {
		if se, ok := e.(*StageError); ok && se.Kind == StageErrorCanceled {
			r.Outcome = OutcomeCanceled
			return
		}
	}
	if len(r.Errors) > 0 {
		r.Outcome = OutcomeFailed
		return
	}
	if r.FailedPages > 0 {
		r.Outcome = OutcomePartial
		return
	}
	r.Outcome = OutcomeSuccess
}

// Duration returns the wall-clock build duration.
func (r *BuildReport) Duration() time.Duration { return r.End.Sub(r.Start) }

// Summary returns a human-readable single-line summary.
func (r *BuildReport) Summary() string {
	return fmt.Sprintf("build=%s pages=%d rendered=%d failed=%d assets=%d duration=%s outcome=%s",
		r.BuildID, r.Pages, r.RenderedPages, r.FailedPages, r.Assets,
		r.Duration().Truncate(time.Millisecond), r.Outcome)
}

// reportSerializable mirrors BuildReport with string errors for JSON output.
type reportSerializable struct {
	BuildID        string                   `json:"build_id"`
	Start          time.Time                `json:"start"`
	End            time.Time                `json:"end"`
	Pages          int                      `json:"pages"`
	RenderedPages  int                      `json:"rendered_pages"`
	FailedPages    int                      `json:"failed_pages"`
	Assets         int                      `json:"assets"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	StageErrors    map[string]string        `json:"stage_errors"`
	PageErrors     []PageError              `json:"page_errors"`
	Errors         []string                 `json:"errors"`
	Warnings       []string                 `json:"warnings"`
	Outcome        BuildOutcome             `json:"outcome"`
}

func (r *BuildReport) serializable() *reportSerializable {
	s := &reportSerializable{
		BuildID:        r.BuildID,
		Start:          r.Start,
		End:            r.End,
		Pages:          r.Pages,
		RenderedPages:  r.RenderedPages,
		FailedPages:    r.FailedPages,
		Assets:         r.Assets,
		StageDurations: r.StageDurations,
		StageErrors:    r.StageErrors,
		PageErrors:     r.PageErrors,
		Errors:         make([]string, len(r.Errors)),
		Warnings:       make([]string, len(r.Warnings)),
	}
	s.Outcome = r.Outcome
	if s.PageErrors == nil {
		s.PageErrors = []PageError{}
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	for i, w := range r.Warnings {
		s.Warnings[i] = w.Error()
	}
	return s
}

// Persist writes build-report.json atomically into the output root. Best
// effort; the error is for caller logging and never changes the outcome.
func (r *BuildReport) Persist(root string) error {
	if r.End.IsZero() {
		r.finish()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("ensure root for report: %w", err)
	}
	data, err := json.MarshalIndent(r.serializable(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	path := filepath.Join(root, "build-report.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("atomic rename report: %w", err)
	}
	return nil
}
