package sweep

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wsalloc/internal/allocator"
	"git.home.luguber.info/inful/wsalloc/internal/config"
	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/node"
	"git.home.luguber.info/inful/wsalloc/internal/reclaim"
	"git.home.luguber.info/inful/wsalloc/internal/store"
)

type captureSubmitter struct {
	mu    sync.Mutex
	paths []string
}

func (c *captureSubmitter) Submit(id identity.Identity, targets []reclaim.Target) *reclaim.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range targets {
		c.paths = append(c.paths, t.Path)
	}
	return nil
}

func TestRun_EnqueuesOnlyUnownedDirectories(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	root := t.TempDir()
	ctrl := node.NewLocalNode("controller", root)
	src := node.NewStaticSource(ctrl)
	alloc := allocator.New(config.NewStaticWatcher(config.Default()), st, src)

	// An owned workspace, created through the allocator.
	owned := identity.MustNew("p", "master")
	ownedPath, err := alloc.ResolveWorkspaceRoot(ctx, owned, ctrl)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(ownedPath, 0o750))

	// A leftover nobody owns.
	orphanPath := filepath.Join(root, "q-deleted.zzz999")
	require.NoError(t, os.MkdirAll(orphanPath, 0o750))

	sub := &captureSubmitter{}
	sw, err := New(alloc, src, sub)
	require.NoError(t, err)
	defer sw.Stop()

	require.NoError(t, sw.Run(ctx))

	assert.Equal(t, []string{orphanPath}, sub.paths)
}

func TestRun_ZeroBudgetKeepsNestedWorkspaceParents(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	cfg := config.Default()
	cfg.Allocator.LengthBudget = 0

	root := t.TempDir()
	ctrl := node.NewLocalNode("controller", root)
	src := node.NewStaticSource(ctrl)
	alloc := allocator.New(config.NewStaticWatcher(cfg), st, src)

	// With mangling disabled the workspace is a nested path; its top-level
	// parent directory is what the sweep sees.
	live := identity.MustNew("stuff", "dev%2Fflow")
	livePath, err := alloc.ResolveWorkspaceRoot(ctx, live, ctrl)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(livePath, 0o750))

	orphanPath := filepath.Join(root, "q-deleted.zzz999")
	require.NoError(t, os.MkdirAll(orphanPath, 0o750))

	sub := &captureSubmitter{}
	sw, err := New(alloc, src, sub)
	require.NoError(t, err)
	defer sw.Stop()

	require.NoError(t, sw.Run(ctx))

	assert.Equal(t, []string{orphanPath}, sub.paths)
	_, statErr := os.Stat(livePath)
	assert.NoError(t, statErr, "live nested workspace must keep its parent")
}

func TestRun_EmptyRootIsFine(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()

	src := node.NewStaticSource(node.NewLocalNode("controller", filepath.Join(t.TempDir(), "missing")))
	alloc := allocator.New(config.NewStaticWatcher(config.Default()), st, src)

	sub := &captureSubmitter{}
	sw, err := New(alloc, src, sub)
	require.NoError(t, err)
	defer sw.Stop()

	require.NoError(t, sw.Run(context.Background()))
	assert.Empty(t, sub.paths)
}
