package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry       *prom.Registry
	buildDuration  prom.Histogram
	renderDuration prom.Histogram
	pageResults    *prom.CounterVec
	buildOutcome   *prom.CounterVec
	reloadSends    prom.Counter
	reloadClients  prom.Gauge
	cacheLookups   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on
// the given registry (a fresh one when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{registry: reg}
	pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "sitegen",
		Name:      "build_duration_seconds",
		Help:      "Total site build duration",
		Buckets:   prom.DefBuckets,
	})
	pr.renderDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "sitegen",
		Name:      "page_render_duration_seconds",
		Help:      "Duration of individual page render pipelines",
		Buckets:   prom.DefBuckets,
	})
	pr.pageResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "sitegen",
		Name:      "page_results_total",
		Help:      "Per-page pipeline results",
	}, []string{"result"})
	pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "sitegen",
		Name:      "build_outcomes_total",
		Help:      "Build outcomes by final status",
	}, []string{"outcome"})
	pr.reloadSends = prom.NewCounter(prom.CounterOpts{
		Namespace: "sitegen",
		Name:      "livereload_broadcasts_total",
		Help:      "Reload notifications broadcast to connected clients",
	})
	pr.reloadClients = prom.NewGauge(prom.GaugeOpts{
		Namespace: "sitegen",
		Name:      "livereload_clients",
		Help:      "Currently connected livereload clients",
	})
	pr.cacheLookups = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "sitegen",
		Name:      "bundle_cache_lookups_total",
		Help:      "Dev bundle cache lookups by hit/miss",
	}, []string{"result"})
	reg.MustRegister(pr.buildDuration, pr.renderDuration, pr.pageResults, pr.buildOutcome, pr.reloadSends, pr.reloadClients, pr.cacheLookups)
	return pr
}

// Handler returns an http.Handler exposing the registry, for the dev
// server's /metrics endpoint.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObservePageRenderDuration(d time.Duration) {
	if p == nil || p.renderDuration == nil {
		return
	}
	p.renderDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPageResult(result ResultLabel) {
	if p == nil || p.pageResults == nil {
		return
	}
	p.pageResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome BuildOutcomeLabel) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncReloadBroadcast() {
	if p == nil || p.reloadSends == nil {
		return
	}
	p.reloadSends.Inc()
}

func (p *PrometheusRecorder) SetReloadClients(n int) {
	if p == nil || p.reloadClients == nil {
		return
	}
	p.reloadClients.Set(float64(n))
}

func (p *PrometheusRecorder) IncBundleCacheLookup(hit bool) {
	if p == nil || p.cacheLookups == nil {
		return
	}
	res := "miss"
	if hit {
		res = "hit"
	}
	p.cacheLookups.WithLabelValues(res).Inc()
}
