// Package reclaim deletes orphaned workspace directories across every
// execution node on a background worker pool.
//
// Triggering reclamation only enqueues work and returns immediately; the
// indexing collaborator that reports a job removed is never blocked. Each
// (node, path) deletion runs independently with its own timeout, so one
// slow or wedged node cannot hold up siblings. There is no automatic retry:
// a failed deletion is logged and counted, and the periodic orphan sweep or
// an operator picks it up later.
package reclaim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/logfields"
	"git.home.luguber.info/inful/wsalloc/internal/metrics"
)

const defaultHistorySize = 50

// deletion is one unit of pool work: a single target under a task.
type deletion struct {
	task   *Task
	target Target
}

// Scheduler owns the worker pool and the task registry.
type Scheduler struct {
	deletions chan deletion
	workers   int
	timeout   time.Duration
	recorder  metrics.Recorder

	// onReclaimed runs after a task finishes with every target deleted,
	// letting the allocator release the collision-guard entry and drop the
	// allocation record. Never called for failed tasks.
	onReclaimed func(identity.Identity)

	mu          sync.Mutex
	active      map[string]*Task
	history     []*Task
	historySize int
	outstanding int
	idle        chan struct{}
	tasksDone   int
	tasksFailed int

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithOnReclaimed sets the callback invoked after an identity's workspaces
// are fully reclaimed.
func WithOnReclaimed(fn func(identity.Identity)) Option {
	return func(s *Scheduler) { s.onReclaimed = fn }
}

// NewScheduler creates a scheduler with the given pool size, queue capacity,
// and per-deletion timeout.
func NewScheduler(workers, queueSize int, timeout time.Duration, opts ...Option) *Scheduler {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	idle := make(chan struct{})
	close(idle) // no outstanding work yet

	s := &Scheduler{
		deletions:   make(chan deletion, queueSize),
		workers:     workers,
		timeout:     timeout,
		recorder:    metrics.NoopRecorder{},
		active:      make(map[string]*Task),
		historySize: defaultHistorySize,
		idle:        idle,
		stopChan:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("Starting reclamation scheduler",
		slog.Int("workers", s.workers),
		slog.Duration("deletion_timeout", s.timeout))

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, fmt.Sprintf("reclaim-%d", i))
	}
}

// Stop shuts the pool down without waiting for queued work. Use Drain first
// for an orderly shutdown.
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
	slog.Info("Reclamation scheduler stopped")
}

// Submit enqueues the deletion of every target belonging to the identity
// and returns immediately. Ordering between tasks, and between targets of
// one task, is not guaranteed.
//
// Targets that do not fit the queue are marked failed on the spot rather
// than blocking the caller; the task then finishes failed like any other
// partial result.
func (s *Scheduler) Submit(id identity.Identity, targets []Target) *Task {
	task := newTask(id, len(targets))

	s.mu.Lock()
	s.active[task.ID.String()] = task
	if len(targets) == 0 {
		// Nothing to delete anywhere; trivially done.
		task.status = StatusDone
		s.finishLocked(task)
		s.mu.Unlock()
		if s.onReclaimed != nil && !id.IsZero() {
			s.onReclaimed(id)
		}
		return task
	}
	s.addWorkLocked(len(targets))
	s.mu.Unlock()

	slog.Info("Reclamation enqueued",
		logfields.TaskID(task.ID.String()),
		logfields.Identity(id.FullName()),
		slog.Int("targets", len(targets)))

	for _, target := range targets {
		select {
		case s.deletions <- deletion{task: task, target: target}:
		default:
			slog.Error("Reclamation queue full, dropping deletion",
				logfields.TaskID(task.ID.String()),
				logfields.Node(target.Node.Name()),
				logfields.Path(target.Path))
			s.recorder.IncDeletionResult(target.Node.Name(), metrics.ResultFailed)
			s.completeTarget(task, false)
		}
	}
	return task
}

// Drain blocks until all currently enqueued and in-flight tasks reach a
// terminal state, bounded by ctx. Intended for orderly shutdown and for
// deterministic testing, never for the hot allocation path.
func (s *Scheduler) Drain(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports scheduler counters for the status endpoint.
type Stats struct {
	Active      int `json:"active"`
	Outstanding int `json:"outstanding"`
	Done        int `json:"done"`
	Failed      int `json:"failed"`
}

// Stats returns current task counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Active:      len(s.active),
		Outstanding: s.outstanding,
		Done:        s.tasksDone,
		Failed:      s.tasksFailed,
	}
}

// ActiveTasks returns snapshots of tasks not yet terminal.
func (s *Scheduler) ActiveTasks() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]View, 0, len(s.active))
	for _, t := range s.active {
		views = append(views, t.view())
	}
	return views
}

// History returns snapshots of recently finished tasks.
func (s *Scheduler) History() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]View, 0, len(s.history))
	for _, t := range s.history {
		views = append(views, t.view())
	}
	return views
}

func (s *Scheduler) worker(ctx context.Context, workerID string) {
	defer s.wg.Done()

	slog.Debug("Reclamation worker started", slog.String("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case d := <-s.deletions:
			s.runDeletion(ctx, d)
		}
	}
}

// runDeletion executes one target deletion with its own timeout. Exceeding
// the timeout fails only this deletion; the worker stays available.
func (s *Scheduler) runDeletion(ctx context.Context, d deletion) {
	s.mu.Lock()
	if d.task.status == StatusPending {
		d.task.status = StatusRunning
	}
	s.mu.Unlock()

	nodeName := d.target.Node.Name()
	delCtx, cancel := context.WithTimeout(ctx, s.timeout)
	start := time.Now()
	err := d.target.Node.Delete(delCtx, d.target.Path)
	cancel()
	elapsed := time.Since(start)

	s.recorder.ObserveDeletionDuration(nodeName, elapsed)

	switch {
	case err == nil:
		s.recorder.IncDeletionResult(nodeName, metrics.ResultSuccess)
		slog.Debug("Workspace directory removed",
			logfields.TaskID(d.task.ID.String()),
			logfields.Node(nodeName),
			logfields.Path(d.target.Path),
			logfields.DurationMS(float64(elapsed.Milliseconds())))
		s.completeTarget(d.task, true)
	case errors.Is(err, context.DeadlineExceeded):
		s.recorder.IncDeletionResult(nodeName, metrics.ResultTimeout)
		slog.Warn("Workspace deletion timed out",
			logfields.TaskID(d.task.ID.String()),
			logfields.Node(nodeName),
			logfields.Path(d.target.Path),
			slog.Duration("timeout", s.timeout))
		s.completeTarget(d.task, false)
	default:
		s.recorder.IncDeletionResult(nodeName, metrics.ResultFailed)
		slog.Warn("Workspace deletion failed",
			logfields.TaskID(d.task.ID.String()),
			logfields.Node(nodeName),
			logfields.Path(d.target.Path),
			logfields.Error(err))
		s.completeTarget(d.task, false)
	}
}

// completeTarget records one finished target and finalizes the task when it
// was the last one.
func (s *Scheduler) completeTarget(task *Task, success bool) {
	var reclaimed identity.Identity
	var notify bool

	s.mu.Lock()
	if !success {
		task.failed++
	}
	task.remaining--
	if task.remaining == 0 {
		if task.failed == 0 {
			task.status = StatusDone
			notify = true
			reclaimed = task.Identity
		} else {
			task.status = StatusFailed
		}
		s.finishLocked(task)
	}
	s.workDoneLocked()
	s.mu.Unlock()

	if notify && s.onReclaimed != nil && !reclaimed.IsZero() {
		s.onReclaimed(reclaimed)
	}
}

// finishLocked moves a terminal task from the active set to history.
// Caller holds s.mu.
func (s *Scheduler) finishLocked(task *Task) {
	delete(s.active, task.ID.String())
	s.history = append(s.history, task)
	if len(s.history) > s.historySize {
		copy(s.history, s.history[len(s.history)-s.historySize:])
		s.history = s.history[:s.historySize]
	}

	switch task.status {
	case StatusDone:
		s.tasksDone++
		s.recorder.IncTaskOutcome("done")
		slog.Info("Reclamation task done",
			logfields.TaskID(task.ID.String()),
			logfields.Identity(task.Identity.FullName()))
	case StatusFailed:
		s.tasksFailed++
		s.recorder.IncTaskOutcome("failed")
		slog.Warn("Reclamation task finished with failures",
			logfields.TaskID(task.ID.String()),
			logfields.Identity(task.Identity.FullName()),
			slog.Int("failed_targets", task.failed))
	}
}

// addWorkLocked registers n outstanding deletions. Caller holds s.mu.
func (s *Scheduler) addWorkLocked(n int) {
	if s.outstanding == 0 {
		s.idle = make(chan struct{})
	}
	s.outstanding += n
	s.recorder.SetQueueDepth(s.outstanding)
}

// workDoneLocked retires one outstanding deletion. Caller holds s.mu.
func (s *Scheduler) workDoneLocked() {
	if s.outstanding == 0 {
		return
	}
	s.outstanding--
	s.recorder.SetQueueDepth(s.outstanding)
	if s.outstanding == 0 {
		close(s.idle)
	}
}
