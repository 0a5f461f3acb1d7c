package metrics

import "time"

// ResultLabel enumerates deletion result categories for counters. Deleting
// an already-absent path counts as success; deletion is idempotent.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultTimeout ResultLabel = "timeout"
	ResultFailed  ResultLabel = "failed"
)

// Recorder defines observability hooks for allocation and reclamation.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	IncAllocation(scheme string)
	IncCollision()
	IncNotApplicable()
	ObserveDeletionDuration(node string, d time.Duration)
	IncDeletionResult(node string, result ResultLabel)
	IncTaskOutcome(outcome string) // outcome: done|failed
	SetQueueDepth(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncAllocation(string)                          {}
func (NoopRecorder) IncCollision()                                 {}
func (NoopRecorder) IncNotApplicable()                             {}
func (NoopRecorder) ObserveDeletionDuration(string, time.Duration) {}
func (NoopRecorder) IncDeletionResult(string, ResultLabel)         {}
func (NoopRecorder) IncTaskOutcome(string)                         {}
func (NoopRecorder) SetQueueDepth(int)                             {}
