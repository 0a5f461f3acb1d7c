package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once             sync.Once
	allocations      *prom.CounterVec
	collisions       prom.Counter
	notApplicable    prom.Counter
	deletionDuration *prom.HistogramVec
	deletionResults  *prom.CounterVec
	taskOutcomes     *prom.CounterVec
	queueDepth       prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.allocations = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wsalloc",
			Name:      "allocations_total",
			Help:      "Workspace path allocations by scheme",
		}, []string{"scheme"})
		pr.collisions = prom.NewCounter(prom.CounterOpts{
			Namespace: "wsalloc",
			Name:      "collisions_total",
			Help:      "Mangled name collisions detected at allocation time",
		})
		pr.notApplicable = prom.NewCounter(prom.CounterOpts{
			Namespace: "wsalloc",
			Name:      "not_applicable_total",
			Help:      "Requests passed through because the root pattern is non-default",
		})
		pr.deletionDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "wsalloc",
			Name:      "deletion_duration_seconds",
			Help:      "Duration of individual workspace directory deletions",
			Buckets:   prom.DefBuckets,
		}, []string{"node"})
		pr.deletionResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wsalloc",
			Name:      "deletion_results_total",
			Help:      "Deletion results by node and outcome",
		}, []string{"node", "result"})
		pr.taskOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "wsalloc",
			Name:      "reclamation_task_outcomes_total",
			Help:      "Terminal reclamation task outcomes",
		}, []string{"outcome"})
		pr.queueDepth = prom.NewGauge(prom.GaugeOpts{
			Namespace: "wsalloc",
			Name:      "reclamation_queue_depth",
			Help:      "Deletions currently enqueued or in flight",
		})
		reg.MustRegister(pr.allocations, pr.collisions, pr.notApplicable, pr.deletionDuration, pr.deletionResults, pr.taskOutcomes, pr.queueDepth)
	})
	return pr
}

func (p *PrometheusRecorder) IncAllocation(scheme string) {
	if p == nil || p.allocations == nil {
		return
	}
	p.allocations.WithLabelValues(scheme).Inc()
}

func (p *PrometheusRecorder) IncCollision() {
	if p == nil || p.collisions == nil {
		return
	}
	p.collisions.Inc()
}

func (p *PrometheusRecorder) IncNotApplicable() {
	if p == nil || p.notApplicable == nil {
		return
	}
	p.notApplicable.Inc()
}

func (p *PrometheusRecorder) ObserveDeletionDuration(node string, d time.Duration) {
	if p == nil || p.deletionDuration == nil {
		return
	}
	p.deletionDuration.WithLabelValues(node).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncDeletionResult(node string, result ResultLabel) {
	if p == nil || p.deletionResults == nil {
		return
	}
	p.deletionResults.WithLabelValues(node, string(result)).Inc()
}

func (p *PrometheusRecorder) IncTaskOutcome(outcome string) {
	if p == nil || p.taskOutcomes == nil {
		return
	}
	p.taskOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil || p.queueDepth == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}
