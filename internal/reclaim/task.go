package reclaim

import (
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/node"
)

// Status is the lifecycle state of a reclamation task.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Target is one (node, path) pair to delete.
type Target struct {
	Node node.Node
	Path string
}

// Task groups the deletions for one orphaned identity. It is owned
// exclusively by the Scheduler until it reaches a terminal state, then
// discarded (kept only in a bounded history for the status endpoint).
type Task struct {
	ID        uuid.UUID
	Identity  identity.Identity
	CreatedAt time.Time

	// Mutated only under the scheduler's lock.
	status    Status
	remaining int
	failed    int
}

func newTask(id identity.Identity, targetCount int) *Task {
	return &Task{
		ID:        uuid.New(),
		Identity:  id,
		CreatedAt: time.Now(),
		status:    StatusPending,
		remaining: targetCount,
	}
}

// View is an immutable snapshot of a task for status reporting.
type View struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Remaining int       `json:"remaining"`
	Failed    int       `json:"failed"`
}

func (t *Task) view() View {
	return View{
		ID:        t.ID.String(),
		Identity:  t.Identity.FullName(),
		Status:    t.status,
		CreatedAt: t.CreatedAt,
		Remaining: t.remaining,
		Failed:    t.failed,
	}
}
