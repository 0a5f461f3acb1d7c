// Package identity models the hierarchical full name of a build job within
// the namespace tree (project/branch, org folder/repository/branch).
//
// An Identity is an immutable value: a rename upstream produces a new
// Identity, and therefore a new workspace path. Segments may arrive
// pre-encoded by an upstream naming layer (e.g. "dev%2Fflow" for a branch
// named "dev/flow"); this package does not decode them.
package identity

import (
	"fmt"
	"strings"
)

// Separator joins segments into a full name. It never appears inside a
// segment because the upstream naming layer percent-encodes it.
const Separator = "/"

// Identity is the ordered, non-empty sequence of name segments from the
// namespace root down to a job.
type Identity struct {
	segments []string
}

// New builds an Identity from segments. It returns an error when the
// sequence is empty or any segment is empty.
func New(segments ...string) (Identity, error) {
	if len(segments) == 0 {
		return Identity{}, fmt.Errorf("identity requires at least one segment")
	}
	for i, s := range segments {
		if s == "" {
			return Identity{}, fmt.Errorf("identity segment %d is empty", i)
		}
	}
	copied := make([]string, len(segments))
	copy(copied, segments)
	return Identity{segments: copied}, nil
}

// MustNew is New for statically known segments; it panics on invalid input.
// Intended for tests and wiring code.
func MustNew(segments ...string) Identity {
	id, err := New(segments...)
	if err != nil {
		panic(err)
	}
	return id
}

// Parse splits a slash-joined full name into an Identity.
func Parse(fullName string) (Identity, error) {
	if fullName == "" {
		return Identity{}, fmt.Errorf("full name is empty")
	}
	return New(strings.Split(fullName, Separator)...)
}

// Segments returns a copy of the segment sequence.
func (id Identity) Segments() []string {
	copied := make([]string, len(id.segments))
	copy(copied, id.segments)
	return copied
}

// FullName returns the slash-joined form, e.g. "stuff/dev%2Fflow".
func (id Identity) FullName() string {
	return strings.Join(id.segments, Separator)
}

// String implements fmt.Stringer.
func (id Identity) String() string {
	return id.FullName()
}

// IsZero reports whether the Identity carries no segments (the zero value).
func (id Identity) IsZero() bool {
	return len(id.segments) == 0
}

// Equal reports segment-wise equality.
func (id Identity) Equal(other Identity) bool {
	if len(id.segments) != len(other.segments) {
		return false
	}
	for i, s := range id.segments {
		if other.segments[i] != s {
			return false
		}
	}
	return true
}
