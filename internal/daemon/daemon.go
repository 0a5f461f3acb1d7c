// Package daemon wires the allocator, the reclamation scheduler, the
// removal-event consumer, the orphan sweep, and the admin HTTP server into
// one long-running service.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/wsalloc/internal/allocator"
	"git.home.luguber.info/inful/wsalloc/internal/config"
	"git.home.luguber.info/inful/wsalloc/internal/events"
	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/logfields"
	"git.home.luguber.info/inful/wsalloc/internal/metrics"
	"git.home.luguber.info/inful/wsalloc/internal/node"
	"git.home.luguber.info/inful/wsalloc/internal/reclaim"
	"git.home.luguber.info/inful/wsalloc/internal/server"
	"git.home.luguber.info/inful/wsalloc/internal/store"
	"git.home.luguber.info/inful/wsalloc/internal/sweep"
)

// Daemon owns the long-running service components.
type Daemon struct {
	cfgWatcher *config.Watcher
	store      *store.SQLiteStore
	nodes      node.Source
	alloc      *allocator.Allocator
	sched      *reclaim.Scheduler
	consumer   *events.Consumer
	sweeper    *sweep.Sweeper
	admin      *server.Server
	registry   *prom.Registry
	workers    WorkerGroup
}

// New assembles a daemon from the watched configuration.
func New(cfgWatcher *config.Watcher) (*Daemon, error) {
	cfg := cfgWatcher.Snapshot()

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open allocation store: %w", err)
	}

	registry := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	nodes := buildNodes(cfg)
	alloc := allocator.New(cfgWatcher, st, nodes, allocator.WithRecorder(recorder))

	d := &Daemon{
		cfgWatcher: cfgWatcher,
		store:      st,
		nodes:      nodes,
		alloc:      alloc,
		registry:   registry,
	}

	d.sched = reclaim.NewScheduler(
		cfg.Reclamation.Workers,
		cfg.Reclamation.QueueSize,
		cfg.Reclamation.DeletionTimeout,
		reclaim.WithRecorder(recorder),
		reclaim.WithOnReclaimed(func(id identity.Identity) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			alloc.Released(ctx, id)
		}),
	)

	d.admin = server.New(
		fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		alloc, d.sched, nodes, registry,
	)
	return d, nil
}

func buildNodes(cfg *config.Config) node.Source {
	ns := make([]node.Node, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		ns = append(ns, node.NewLocalNode(nc.Name, nc.WorkspaceRoot))
	}
	return node.NewStaticSource(ns...)
}

// Allocator exposes the resolution facade to embedding hosts.
func (d *Daemon) Allocator() *allocator.Allocator {
	return d.alloc
}

// JobRemoved is the entry point for the indexing collaborator: it enqueues
// reclamation for the identity's workspaces on every candidate node and
// returns immediately.
func (d *Daemon) JobRemoved(id identity.Identity) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	targets, err := d.alloc.TargetsFor(ctx, id)
	if err != nil {
		slog.Warn("Failed to enumerate reclamation targets",
			logfields.Identity(id.FullName()), logfields.Error(err))
		return
	}
	d.sched.Submit(id, targets)
}

// WaitForReclamationDrain blocks until all outstanding reclamation work is
// terminal or the timeout elapses. For shutdown and tests only.
func (d *Daemon) WaitForReclamationDrain(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return d.sched.Drain(ctx)
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down in reverse order, draining reclamation first.
func (d *Daemon) Run(ctx context.Context) error {
	cfg := d.cfgWatcher.Snapshot()

	if err := d.cfgWatcher.Start(ctx); err != nil {
		return err
	}
	d.sched.Start(ctx)

	if url := cfg.Events.NATSURL; url != "" {
		consumer, err := events.NewConsumer(url, cfg.Events.Subject, d.JobRemoved)
		if err != nil {
			return fmt.Errorf("removal event consumer: %w", err)
		}
		if err := consumer.Start(); err != nil {
			consumer.Close()
			return fmt.Errorf("removal event consumer: %w", err)
		}
		d.consumer = consumer
	} else {
		slog.Info("No NATS URL configured, removal events disabled")
	}

	if cfg.Sweep.Enabled {
		sweeper, err := sweep.New(d.alloc, d.nodes, d.sched)
		if err != nil {
			return fmt.Errorf("orphan sweeper: %w", err)
		}
		if err := sweeper.Schedule(cfg.Sweep.Interval); err != nil {
			return fmt.Errorf("orphan sweeper: %w", err)
		}
		d.sweeper = sweeper
	}

	d.workers.Go(func() {
		if err := d.admin.Start(); err != nil {
			slog.Error("Admin server exited", logfields.Error(err))
		}
	})

	slog.Info("Workspace allocator daemon running",
		logfields.Budget(cfg.Allocator.LengthBudget),
		logfields.Pattern(cfg.Allocator.RootPattern),
		slog.Int("nodes", len(cfg.Nodes)))

	<-ctx.Done()
	return d.shutdown()
}

func (d *Daemon) shutdown() error {
	slog.Info("Shutting down")

	if d.consumer != nil {
		d.consumer.Close()
	}
	if d.sweeper != nil {
		if err := d.sweeper.Stop(); err != nil {
			slog.Warn("Sweeper shutdown", logfields.Error(err))
		}
	}

	if err := d.WaitForReclamationDrain(30 * time.Second); err != nil {
		slog.Warn("Reclamation drain incomplete at shutdown", logfields.Error(err))
	}
	d.sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.admin.Shutdown(shutdownCtx); err != nil {
		slog.Warn("Admin server shutdown", logfields.Error(err))
	}
	if err := d.workers.StopAndWait(shutdownCtx); err != nil {
		slog.Warn("Worker group shutdown", logfields.Error(err))
	}

	d.cfgWatcher.Stop()
	if err := d.store.Close(); err != nil {
		slog.Warn("Store close", logfields.Error(err))
	}
	slog.Info("Shutdown complete")
	return nil
}
