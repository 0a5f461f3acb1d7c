package daemon

import (
	"context"
	"sync"
)

// WorkerGroup tracks daemon-owned goroutines. It counts active workers under
// a lock and closes an idle latch when the count reaches zero, the same
// shape as the reclamation scheduler's drain, so StopAndWait can be bounded
// by a context.
type WorkerGroup struct {
	mu       sync.Mutex
	active   int
	stopping bool
	idle     chan struct{}
}

// Go starts a worker. It reports false, without starting anything, once the
// group is stopping.
func (g *WorkerGroup) Go(fn func()) bool {
	if fn == nil {
		return false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopping {
		return false
	}

	if g.active == 0 {
		g.idle = make(chan struct{})
	}
	g.active++

	go func() {
		defer g.workerDone()
		fn()
	}()
	return true
}

func (g *WorkerGroup) workerDone() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active--
	if g.active == 0 {
		close(g.idle)
	}
}

// StopAndWait refuses new workers and waits for the current ones to exit,
// bounded by ctx.
func (g *WorkerGroup) StopAndWait(ctx context.Context) error {
	g.mu.Lock()
	g.stopping = true
	idle := g.idle
	g.mu.Unlock()

	if idle == nil {
		// No worker ever started.
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
