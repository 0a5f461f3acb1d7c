package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalNode is a Node backed by the local filesystem. The controller is
// always a LocalNode; agents mounted over a shared filesystem can be too.
type LocalNode struct {
	name string
	root string
}

// NewLocalNode creates a local node with the given name and workspace root.
func NewLocalNode(name, workspaceRoot string) *LocalNode {
	return &LocalNode{name: name, root: filepath.Clean(workspaceRoot)}
}

func (n *LocalNode) Name() string          { return n.name }
func (n *LocalNode) WorkspaceRoot() string { return n.root }

// ListWorkspaces enumerates the directory names directly under the
// workspace root. A missing root yields an empty list.
func (n *LocalNode) ListWorkspaces(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(n.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list workspace root %s: %w", n.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Delete removes the directory at path. The path must resolve to a location
// inside the node's workspace root; anything else is refused rather than
// deleted. A missing path is success.
func (n *LocalNode) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target := filepath.Clean(path)
	if target != n.root && !strings.HasPrefix(target, n.root+string(os.PathSeparator)) {
		return fmt.Errorf("path %s escapes workspace root %s", target, n.root)
	}

	if _, err := os.Lstat(target); os.IsNotExist(err) {
		return nil
	}

	// RemoveAll on a large tree can outlive the deletion timeout; check the
	// context once more right before committing.
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.RemoveAll(target)
}
