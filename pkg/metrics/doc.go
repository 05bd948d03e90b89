// Package metrics exposes Prometheus collectors for the request
// lifecycle, executor pool, privacy gate, and reconciler, plus the
// /metrics, /healthz, and /readyz HTTP handlers served by axon serve.
package metrics
