package node

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalNode_DeleteRemovesDirectory(t *testing.T) {
	root := t.TempDir()
	n := NewLocalNode("controller", root)

	target := filepath.Join(root, "p-master.abc123")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "nested"), 0o750))

	require.NoError(t, n.Delete(context.Background(), target))

	_, err := os.Stat(target)
	assert.True(t, os.IsNotExist(err))
}

func TestLocalNode_DeleteMissingPathIsSuccess(t *testing.T) {
	n := NewLocalNode("controller", t.TempDir())

	err := n.Delete(context.Background(), filepath.Join(n.WorkspaceRoot(), "never-existed"))

	assert.NoError(t, err)
}

func TestLocalNode_DeleteRefusesEscapingPath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	n := NewLocalNode("controller", root)

	require.NoError(t, os.MkdirAll(filepath.Join(outside, "victim"), 0o750))

	err := n.Delete(context.Background(), filepath.Join(outside, "victim"))
	assert.Error(t, err)

	_, statErr := os.Stat(filepath.Join(outside, "victim"))
	assert.NoError(t, statErr)
}

func TestLocalNode_DeleteRefusesDotDotTraversal(t *testing.T) {
	root := t.TempDir()
	n := NewLocalNode("controller", root)

	err := n.Delete(context.Background(), filepath.Join(root, "..", "elsewhere"))
	assert.Error(t, err)
}

func TestLocalNode_DeleteHonorsCancelledContext(t *testing.T) {
	root := t.TempDir()
	n := NewLocalNode("controller", root)
	target := filepath.Join(root, "ws")
	require.NoError(t, os.MkdirAll(target, 0o750))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.Delete(ctx, target)
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(target)
	assert.NoError(t, statErr)
}

func TestStaticSource_ReturnsAllNodes(t *testing.T) {
	a := NewLocalNode("a", t.TempDir())
	b := NewLocalNode("b", t.TempDir())

	src := NewStaticSource(a, b)

	nodes := src.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, "a", nodes[0].Name())
	assert.Equal(t, "b", nodes[1].Name())
}
