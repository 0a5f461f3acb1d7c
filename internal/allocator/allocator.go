// Package allocator resolves workspace roots for job identities: it applies
// the applicability policy, consults the scheme registry, computes the
// mangled directory name, and refuses to hand out colliding paths.
package allocator

import (
	"context"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/wsalloc/internal/config"
	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/logfields"
	"git.home.luguber.info/inful/wsalloc/internal/metrics"
	"git.home.luguber.info/inful/wsalloc/internal/node"
	"git.home.luguber.info/inful/wsalloc/internal/reclaim"
	"git.home.luguber.info/inful/wsalloc/internal/scheme"
	"git.home.luguber.info/inful/wsalloc/internal/wserr"
)

// ConfigSource exposes the current configuration snapshot. The policy
// re-reads it on every request so a runtime root-pattern change takes
// effect immediately.
type ConfigSource interface {
	Snapshot() *config.Config
}

// RecordStore persists allocation records.
type RecordStore interface {
	Get(ctx context.Context, id identity.Identity) (scheme.Record, bool, error)
	Put(ctx context.Context, rec scheme.Record) error
	Delete(ctx context.Context, id identity.Identity) error
	List(ctx context.Context) ([]scheme.Record, error)
}

// Allocator is the workspace-root resolution facade.
type Allocator struct {
	cfg      ConfigSource
	store    RecordStore
	guard    *Guard
	nodes    node.Source
	recorder metrics.Recorder
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(a *Allocator) { a.recorder = r }
}

// New builds an Allocator.
func New(cfg ConfigSource, store RecordStore, nodes node.Source, opts ...Option) *Allocator {
	a := &Allocator{
		cfg:      cfg,
		store:    store,
		guard:    NewGuard(),
		nodes:    nodes,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Guard exposes the collision registry, mainly for tests and status.
func (a *Allocator) Guard() *Guard {
	return a.guard
}

// Applies reports whether the allocator intercepts workspace-root requests
// under the currently configured root pattern. Operators who customized the
// pattern accept path length and character issues themselves; the allocator
// never overrides an explicit administrator choice.
func (a *Allocator) Applies() bool {
	snap := a.cfg.Snapshot()
	return snap.Allocator.Enabled && config.IsDefaultRootPattern(snap.Allocator.RootPattern)
}

// ResolveWorkspaceRoot returns the workspace path for id on n, or
// wserr.ErrNotApplicable when the host should use its own default.
//
// A collision is returned as a synchronous error: the build must not
// silently use a colliding workspace, and the caller falls back to an
// unmanaged path.
func (a *Allocator) ResolveWorkspaceRoot(ctx context.Context, id identity.Identity, n node.Node) (string, error) {
	if !a.Applies() {
		a.recorder.IncNotApplicable()
		return "", wserr.ErrNotApplicable
	}

	budget := a.cfg.Snapshot().Allocator.LengthBudget
	name, kind, err := a.directoryName(ctx, id, budget)
	if err != nil {
		return "", err
	}
	a.recorder.IncAllocation(string(kind))
	return filepath.Join(n.WorkspaceRoot(), name), nil
}

// directoryName resolves or creates the allocation record for id and runs
// the collision check on the resulting name. The guard check runs before a
// new record is persisted: a refused identity must leave no record behind,
// or a later reclamation would resolve it to the owner's directory.
func (a *Allocator) directoryName(ctx context.Context, id identity.Identity, budget int) (string, scheme.Kind, error) {
	rec, found, err := a.store.Get(ctx, id)
	if err != nil {
		return "", "", wserr.Wrap(err, wserr.CategoryStore, wserr.SeverityError,
			"load allocation record").WithContext("identity", id.FullName())
	}
	if !found {
		rec = scheme.NewCurrent(id)
	}

	name := rec.DirectoryName(budget)
	if err := a.guard.Register(name, id); err != nil {
		a.recorder.IncCollision()
		if owner, ok := a.guard.Owner(name); ok {
			slog.Error("Workspace name collision, refusing to allocate",
				logfields.Name(name),
				logfields.Identity(id.FullName()),
				slog.String("owner", owner.FullName()),
				logfields.Budget(budget))
		}
		return "", "", err
	}

	if !found {
		if err := a.store.Put(ctx, rec); err != nil {
			a.guard.Release(name)
			return "", "", wserr.Wrap(err, wserr.CategoryStore, wserr.SeverityError,
				"persist allocation record").WithContext("identity", id.FullName())
		}
	}
	return name, rec.Kind, nil
}

// TargetsFor enumerates the (node, path) pairs where a workspace for id
// might exist: every known node, with the path recomputed from the
// allocation record rather than re-derived from disk. An identity with no
// record was never allocated here (or was refused on collision, in which
// case the name belongs to another job) and yields no targets; leftovers
// with no record are the orphan sweep's business.
func (a *Allocator) TargetsFor(ctx context.Context, id identity.Identity) ([]reclaim.Target, error) {
	rec, found, err := a.store.Get(ctx, id)
	if err != nil {
		return nil, wserr.Wrap(err, wserr.CategoryStore, wserr.SeverityError,
			"load allocation record").WithContext("identity", id.FullName())
	}
	if !found {
		return nil, nil
	}

	budget := a.cfg.Snapshot().Allocator.LengthBudget
	name := rec.DirectoryName(budget)

	nodes := a.nodes.Nodes()
	targets := make([]reclaim.Target, 0, len(nodes))
	for _, n := range nodes {
		targets = append(targets, reclaim.Target{
			Node: n,
			Path: filepath.Join(n.WorkspaceRoot(), name),
		})
	}
	return targets, nil
}

// Budget returns the currently configured length budget.
func (a *Allocator) Budget() int {
	return a.cfg.Snapshot().Allocator.LengthBudget
}

// Records lists every live allocation record. Used by the orphan sweep to
// build the owned-directory set.
func (a *Allocator) Records(ctx context.Context) ([]scheme.Record, error) {
	return a.store.List(ctx)
}

// Released drops the collision-guard entry and the allocation record for an
// identity whose workspaces have been fully reclaimed. Wired as the
// reclamation scheduler's completion callback.
func (a *Allocator) Released(ctx context.Context, id identity.Identity) {
	rec, found, err := a.store.Get(ctx, id)
	if err != nil {
		slog.Warn("Failed to load allocation record for release",
			logfields.Identity(id.FullName()), logfields.Error(err))
		return
	}
	if !found {
		return
	}

	budget := a.cfg.Snapshot().Allocator.LengthBudget
	a.guard.Release(rec.DirectoryName(budget))

	if err := a.store.Delete(ctx, id); err != nil {
		slog.Warn("Failed to delete allocation record",
			logfields.Identity(id.FullName()), logfields.Error(err))
		return
	}
	slog.Info("Allocation released",
		logfields.Identity(id.FullName()),
		logfields.Scheme(string(rec.Kind)))
}
