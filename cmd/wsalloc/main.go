package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/wsalloc/internal/allocator"
	"git.home.luguber.info/inful/wsalloc/internal/config"
	"git.home.luguber.info/inful/wsalloc/internal/daemon"
	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/node"
	"git.home.luguber.info/inful/wsalloc/internal/reclaim"
	"git.home.luguber.info/inful/wsalloc/internal/store"
	"git.home.luguber.info/inful/wsalloc/internal/sweep"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Resolve struct {
		Name string `arg:"" help:"Full job name, segments joined with '/'"`
		Node string `short:"n" help:"Node to resolve on (default: first configured node)"`
	} `cmd:"" help:"Resolve the workspace path for a job identity"`

	Serve struct{} `cmd:"" help:"Run the allocator daemon"`

	Sweep struct{} `cmd:"" help:"Run a single orphaned-workspace sweep and exit"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Write a default configuration file"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	config.LoadEnvFile()

	switch ctx.Command() {
	case "resolve <name>":
		if err := runResolve(CLI.Config, CLI.Resolve.Name, CLI.Resolve.Node); err != nil {
			slog.Error("Resolve failed", "error", err)
			os.Exit(1)
		}
	case "serve":
		if err := runServe(CLI.Config); err != nil {
			slog.Error("Daemon failed", "error", err)
			os.Exit(1)
		}
	case "sweep":
		if err := runSweep(CLI.Config); err != nil {
			slog.Error("Sweep failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
	}
}

func runResolve(configPath, name, nodeName string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("no nodes configured")
	}

	id, err := identity.Parse(name)
	if err != nil {
		return err
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open allocation store: %w", err)
	}
	defer st.Close()

	var target node.Node
	nodes := make([]node.Node, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		n := node.NewLocalNode(nc.Name, nc.WorkspaceRoot)
		nodes = append(nodes, n)
		if nc.Name == nodeName {
			target = n
		}
	}
	if target == nil {
		if nodeName != "" {
			return fmt.Errorf("unknown node %q", nodeName)
		}
		target = nodes[0]
	}

	alloc := allocator.New(config.NewStaticWatcher(cfg), st, node.NewStaticSource(nodes...))

	path, err := alloc.ResolveWorkspaceRoot(context.Background(), id, target)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runServe(configPath string) error {
	watcher, err := config.NewWatcher(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	d, err := daemon.New(watcher)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return d.Run(ctx)
}

// runSweep does one pass over every node's workspace root and reclaims
// directories no live allocation owns, then waits for the deletions to finish.
func runSweep(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open allocation store: %w", err)
	}
	defer st.Close()

	nodes := make([]node.Node, 0, len(cfg.Nodes))
	for _, nc := range cfg.Nodes {
		nodes = append(nodes, node.NewLocalNode(nc.Name, nc.WorkspaceRoot))
	}
	src := node.NewStaticSource(nodes...)
	alloc := allocator.New(config.NewStaticWatcher(cfg), st, src)

	sched := reclaim.NewScheduler(
		cfg.Reclamation.Workers,
		cfg.Reclamation.QueueSize,
		cfg.Reclamation.DeletionTimeout,
	)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sched.Start(ctx)
	defer sched.Stop()

	sweeper, err := sweep.New(alloc, src, sched)
	if err != nil {
		return err
	}
	if err := sweeper.Run(ctx); err != nil {
		return err
	}

	drainCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	if err := sched.Drain(drainCtx); err != nil {
		return fmt.Errorf("waiting for deletions: %w", err)
	}

	stats := sched.Stats()
	slog.Info("Sweep complete",
		slog.Int("tasks_done", stats.Done),
		slog.Int("tasks_failed", stats.Failed))
	return nil
}

func runInit(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", configPath)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write configuration: %w", err)
	}
	slog.Info("Wrote default configuration", "path", configPath)
	return nil
}
