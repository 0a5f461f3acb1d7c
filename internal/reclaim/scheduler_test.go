package reclaim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/node"
)

// stubNode lets tests control deletion behavior per call.
type stubNode struct {
	name     string
	deleteFn func(ctx context.Context, path string) error

	mu    sync.Mutex
	calls []string
}

func (n *stubNode) Name() string          { return n.name }
func (n *stubNode) WorkspaceRoot() string { return "/stub" }

func (n *stubNode) Delete(ctx context.Context, path string) error {
	n.mu.Lock()
	n.calls = append(n.calls, path)
	n.mu.Unlock()
	if n.deleteFn != nil {
		return n.deleteFn(ctx, path)
	}
	return nil
}

func (n *stubNode) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.Stop()
	})
}

func drain(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Drain(ctx))
}

func TestSubmit_ReturnsBeforeDeletionsComplete(t *testing.T) {
	release := make(chan struct{})
	blocked := &stubNode{name: "slow", deleteFn: func(ctx context.Context, _ string) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}

	s := NewScheduler(1, 10, time.Minute)
	startScheduler(t, s)

	done := make(chan struct{})
	go func() {
		s.Submit(identity.MustNew("p", "gone"), []Target{{Node: blocked, Path: "/stub/p-gone.x"}})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked on an in-flight deletion")
	}

	close(release)
	drain(t, s)
}

func TestDrain_TwoNodesBothDeleted_SiblingUntouched(t *testing.T) {
	rootA, rootB := t.TempDir(), t.TempDir()
	nodeA := node.NewLocalNode("controller", rootA)
	nodeB := node.NewLocalNode("agent-1", rootB)

	orphanA := filepath.Join(rootA, "p-gone.abc123")
	orphanB := filepath.Join(rootB, "p-gone.abc123")
	sibling := filepath.Join(rootA, "p-master.def456")
	for _, dir := range []string{orphanA, orphanB, sibling} {
		require.NoError(t, os.MkdirAll(dir, 0o750))
	}

	s := NewScheduler(2, 10, time.Minute)
	startScheduler(t, s)

	s.Submit(identity.MustNew("p", "gone"), []Target{
		{Node: nodeA, Path: orphanA},
		{Node: nodeB, Path: orphanB},
	})
	drain(t, s)

	for _, gone := range []string{orphanA, orphanB} {
		_, err := os.Stat(gone)
		assert.True(t, os.IsNotExist(err), "expected %s to be removed", gone)
	}
	_, err := os.Stat(sibling)
	assert.NoError(t, err, "sibling workspace must remain")

	stats := s.Stats()
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 0, stats.Failed)
}

func TestSubmit_MissingPathIsSuccess(t *testing.T) {
	n := node.NewLocalNode("controller", t.TempDir())

	s := NewScheduler(1, 10, time.Minute)
	startScheduler(t, s)

	s.Submit(identity.MustNew("p", "gone"), []Target{
		{Node: n, Path: filepath.Join(n.WorkspaceRoot(), "never-existed")},
	})
	drain(t, s)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 0, stats.Failed)
}

func TestSubmit_PartialFailureMarksTaskFailed(t *testing.T) {
	good := &stubNode{name: "good"}
	bad := &stubNode{name: "bad", deleteFn: func(context.Context, string) error {
		return errors.New("disk on fire")
	}}

	var reclaimed []string
	var mu sync.Mutex
	s := NewScheduler(2, 10, time.Minute, WithOnReclaimed(func(id identity.Identity) {
		mu.Lock()
		reclaimed = append(reclaimed, id.FullName())
		mu.Unlock()
	}))
	startScheduler(t, s)

	s.Submit(identity.MustNew("p", "gone"), []Target{
		{Node: good, Path: "/stub/a"},
		{Node: bad, Path: "/stub/b"},
	})
	drain(t, s)

	stats := s.Stats()
	assert.Equal(t, 0, stats.Done)
	assert.Equal(t, 1, stats.Failed)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, reclaimed, "failed task must not release the allocation")
}

func TestSubmit_TimeoutFailsOnlyThatDeletion(t *testing.T) {
	hang := &stubNode{name: "hang", deleteFn: func(ctx context.Context, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	quick := &stubNode{name: "quick"}

	s := NewScheduler(1, 10, 50*time.Millisecond)
	startScheduler(t, s)

	s.Submit(identity.MustNew("p", "stuck"), []Target{{Node: hang, Path: "/stub/x"}})
	drain(t, s)

	// The single worker must still be available after the timeout.
	s.Submit(identity.MustNew("p", "next"), []Target{{Node: quick, Path: "/stub/y"}})
	drain(t, s)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, quick.callCount())
}

func TestSubmit_OnReclaimedFiresOnFullSuccess(t *testing.T) {
	n := &stubNode{name: "ok"}

	var reclaimed []string
	var mu sync.Mutex
	s := NewScheduler(2, 10, time.Minute, WithOnReclaimed(func(id identity.Identity) {
		mu.Lock()
		reclaimed = append(reclaimed, id.FullName())
		mu.Unlock()
	}))
	startScheduler(t, s)

	s.Submit(identity.MustNew("p", "gone"), []Target{
		{Node: n, Path: "/stub/a"},
		{Node: n, Path: "/stub/b"},
	})
	drain(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"p/gone"}, reclaimed)
}

func TestSubmit_NoTargetsIsTriviallyDone(t *testing.T) {
	var reclaimed int
	var mu sync.Mutex
	s := NewScheduler(1, 10, time.Minute, WithOnReclaimed(func(identity.Identity) {
		mu.Lock()
		reclaimed++
		mu.Unlock()
	}))
	startScheduler(t, s)

	task := s.Submit(identity.MustNew("p", "nowhere"), nil)
	drain(t, s)

	assert.Equal(t, StatusDone, task.view().Status)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, reclaimed)
}

func TestDrain_ImmediateWhenIdle(t *testing.T) {
	s := NewScheduler(1, 10, time.Minute)
	startScheduler(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Drain(ctx))
}

func TestDrain_HonorsContextDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocked := &stubNode{name: "slow", deleteFn: func(ctx context.Context, _ string) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}}

	s := NewScheduler(1, 10, time.Minute)
	startScheduler(t, s)
	s.Submit(identity.MustNew("p", "gone"), []Target{{Node: blocked, Path: "/stub/x"}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Drain(ctx), context.DeadlineExceeded)
}

func TestStats_TracksHistory(t *testing.T) {
	n := &stubNode{name: "ok"}
	s := NewScheduler(1, 10, time.Minute)
	startScheduler(t, s)

	s.Submit(identity.MustNew("p", "one"), []Target{{Node: n, Path: "/stub/1"}})
	s.Submit(identity.MustNew("p", "two"), []Target{{Node: n, Path: "/stub/2"}})
	drain(t, s)

	assert.Len(t, s.History(), 2)
	assert.Empty(t, s.ActiveTasks())
}
