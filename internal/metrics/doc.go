// Package metrics exports Prometheus instrumentation for the orchestrator.
//
// Recorder implements flow.Observer; pass it with flow.WithObserver and
// serve Handler on the configured metrics address.
package metrics
