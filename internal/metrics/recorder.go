package metrics

import "time"

// ResultLabel enumerates per-page result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// BuildOutcomeLabel enumerates whole-build outcomes.
type BuildOutcomeLabel string

const (
	OutcomeSuccess BuildOutcomeLabel = "success"
	OutcomePartial BuildOutcomeLabel = "partial"
	OutcomeFailed  BuildOutcomeLabel = "failed"
)

// Recorder defines observability hooks for builds and the dev loop.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All
// methods must be safe on the NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveBuildDuration(d time.Duration)
	ObservePageRenderDuration(d time.Duration)
	IncPageResult(result ResultLabel)
	IncBuildOutcome(outcome BuildOutcomeLabel)
	IncReloadBroadcast()
	SetReloadClients(n int)
	IncBundleCacheLookup(hit bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBuildDuration(time.Duration)      {}
func (NoopRecorder) ObservePageRenderDuration(time.Duration) {}
func (NoopRecorder) IncPageResult(ResultLabel)               {}
func (NoopRecorder) IncBuildOutcome(BuildOutcomeLabel)       {}
func (NoopRecorder) IncReloadBroadcast()                     {}
func (NoopRecorder) SetReloadClients(int)                    {}
func (NoopRecorder) IncBundleCacheLookup(bool)               {}
