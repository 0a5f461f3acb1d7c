// Package node abstracts the execution hosts (controller and agents) that
// may hold a copy of a job's workspace. The allocator only asks a node two
// things: where its workspace root lives, and to delete a directory under it.
package node

import "context"

// Node is one execution host.
type Node interface {
	// Name identifies the node in logs and metrics.
	Name() string

	// WorkspaceRoot returns the absolute directory under which this node
	// keeps workspaces.
	WorkspaceRoot() string

	// Delete removes the workspace directory at path. An already-missing
	// path is not an error: deletion is idempotent and "already gone" is
	// success. Implementations must honor ctx cancellation.
	Delete(ctx context.Context, path string) error
}

// Source enumerates the candidate nodes on which a workspace might exist.
// A job may have run on any subset of agents over its lifetime, so this is
// necessarily a superset guess.
type Source interface {
	Nodes() []Node
}

// StaticSource is a Source over a fixed node list.
type StaticSource struct {
	nodes []Node
}

// NewStaticSource builds a Source from a fixed set of nodes.
func NewStaticSource(nodes ...Node) *StaticSource {
	return &StaticSource{nodes: nodes}
}

// Nodes returns the configured node list.
func (s *StaticSource) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}
