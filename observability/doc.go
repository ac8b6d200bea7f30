// Package observability provides an OpenTelemetry metrics extension for
// Foreman. The MetricsExtension implements lifecycle hooks to record
// run-level counters: runs started, completed, and failed, phases
// completed, loop iterations, dead letters, trigger matches, and
// schedule fires.
//
// Per-invocation metrics and tracing live at the dispatch boundary; see
// middleware.Metrics() and middleware.Tracing().
package observability
