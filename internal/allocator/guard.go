package allocator

import (
	"sync"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/wserr"
)

// Guard validates that a mangled name always maps back to one identity.
//
// A collision is either an actual hash collision or, far more likely, a
// latent bug in the mangler. Either way the colliding path must not be
// handed out. The check runs on every allocation, not just at startup.
type Guard struct {
	mu     sync.Mutex
	owners map[string]identity.Identity
}

// NewGuard creates an empty registry.
func NewGuard() *Guard {
	return &Guard{owners: make(map[string]identity.Identity)}
}

// Register claims mangledName for id. Re-registering the same identity is a
// no-op; a different identity already owning the name is a fatal collision.
func (g *Guard) Register(mangledName string, id identity.Identity) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	owner, exists := g.owners[mangledName]
	if !exists {
		g.owners[mangledName] = id
		return nil
	}
	if owner.Equal(id) {
		return nil
	}
	return wserr.New(wserr.CategoryCollision, wserr.SeverityFatal,
		"mangled workspace name already owned by a different job").
		WithContext("mangled_name", mangledName).
		WithContext("owner", owner.FullName()).
		WithContext("claimant", id.FullName())
}

// Release drops the registration for mangledName. Called when the owning
// identity's workspaces have been fully reclaimed.
func (g *Guard) Release(mangledName string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.owners, mangledName)
}

// Owner reports the identity currently holding mangledName.
func (g *Guard) Owner(mangledName string) (identity.Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	owner, ok := g.owners[mangledName]
	return owner, ok
}

// Len reports the number of registered names.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.owners)
}
