// Package metrics provides observability hooks for workspace allocation and
// reclamation.
//
// The package implements the Null Object pattern: components receive a
// Recorder through dependency injection and default to NoopRecorder, so no
// call site needs a nil check and metrics can be enabled by swapping in the
// Prometheus implementation without code changes.
package metrics
