// Package metrics defines observability hooks for the build pipeline and
// dev server, with a no-op default and a Prometheus-backed implementation.
package metrics
