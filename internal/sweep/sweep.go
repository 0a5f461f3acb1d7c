// Package sweep periodically scans every node's workspace root for
// directories that no allocation record owns and hands them to the
// reclamation scheduler.
//
// The event-driven path in package reclaim covers jobs removed while the
// service is running; the sweep is the best-effort backstop for workspaces
// orphaned while the process was down, or left behind by a failed deletion.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/wsalloc/internal/allocator"
	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/logfields"
	"git.home.luguber.info/inful/wsalloc/internal/node"
	"git.home.luguber.info/inful/wsalloc/internal/reclaim"
)

// Lister is implemented by nodes whose workspace root can be enumerated.
// Nodes without listing support are skipped by the sweep.
type Lister interface {
	ListWorkspaces(ctx context.Context) ([]string, error)
}

// Submitter accepts orphan deletions; satisfied by *reclaim.Scheduler.
type Submitter interface {
	Submit(id identity.Identity, targets []reclaim.Target) *reclaim.Task
}

// Sweeper runs the periodic orphan scan.
type Sweeper struct {
	alloc     *allocator.Allocator
	nodes     node.Source
	submitter Submitter
	scheduler gocron.Scheduler
}

// New creates a Sweeper. Call Schedule to attach the periodic job.
func New(alloc *allocator.Allocator, nodes node.Source, submitter Submitter) (*Sweeper, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	return &Sweeper{alloc: alloc, nodes: nodes, submitter: submitter, scheduler: s}, nil
}

// Schedule registers the periodic sweep and starts the scheduler.
func (s *Sweeper) Schedule(interval time.Duration) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if err := s.Run(ctx); err != nil {
				slog.Warn("Orphan sweep failed", logfields.Error(err))
			}
		}),
		gocron.WithName("orphan-sweep"),
	)
	if err != nil {
		return fmt.Errorf("create sweep job: %w", err)
	}
	s.scheduler.Start()
	slog.Info("Orphan sweep scheduled", slog.Duration("interval", interval))
	return nil
}

// Stop shuts the periodic scheduler down.
func (s *Sweeper) Stop() error {
	return s.scheduler.Shutdown()
}

// Run performs one sweep pass over every listable node and returns after
// enqueueing (not completing) the deletions.
func (s *Sweeper) Run(ctx context.Context) error {
	owned, err := s.ownedNames(ctx)
	if err != nil {
		return err
	}

	var orphans int
	for _, n := range s.nodes.Nodes() {
		lister, ok := n.(Lister)
		if !ok {
			slog.Debug("Node does not support listing, skipping sweep", logfields.Node(n.Name()))
			continue
		}
		names, err := lister.ListWorkspaces(ctx)
		if err != nil {
			slog.Warn("Failed to list workspaces", logfields.Node(n.Name()), logfields.Error(err))
			continue
		}
		for _, name := range names {
			if _, ok := owned[name]; ok {
				continue
			}
			orphans++
			path := filepath.Join(n.WorkspaceRoot(), name)
			slog.Info("Orphan workspace found",
				logfields.Node(n.Name()), logfields.Path(path))
			// No identity is attached: the directory's owner is unknown, so
			// there is no record or guard entry to release afterwards.
			s.submitter.Submit(identity.Identity{}, []reclaim.Target{{Node: n, Path: path}})
		}
	}

	slog.Info("Orphan sweep complete", slog.Int("orphans", orphans))
	return nil
}

// ownedNames maps every directory name a live allocation record resolves to.
// With mangling disabled records resolve to nested relative paths; the sweep
// only ever sees the top level of the workspace root, so the first path
// element of such a name is what must be protected from deletion. Orphans
// nested below a live top-level directory are left for event-driven
// reclamation.
func (s *Sweeper) ownedNames(ctx context.Context) (map[string]struct{}, error) {
	records, err := s.alloc.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("list allocation records: %w", err)
	}
	budget := s.alloc.Budget()
	owned := make(map[string]struct{}, len(records))
	for _, rec := range records {
		name := rec.DirectoryName(budget)
		owned[name] = struct{}{}
		if top, _, nested := strings.Cut(name, identity.Separator); nested {
			owned[top] = struct{}{}
		}
	}
	return owned, nil
}
