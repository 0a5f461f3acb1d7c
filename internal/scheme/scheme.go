// Package scheme tracks which allocation scheme produced each workspace.
//
// Two schemes exist historically. The legacy scheme disambiguated truncated
// names with a small persisted integer per identity ("name-3"). The current
// scheme appends a deterministic hash suffix instead and needs no per-identity
// state. An identity that already holds a legacy record keeps resolving
// through the legacy scheme until its workspaces are reclaimed; switching it
// on upgrade would invalidate its on-disk checkout caches for every job at
// once. New identities always get the current scheme, so the legacy
// population shrinks monotonically to zero.
package scheme

import (
	"strconv"
	"time"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/mangle"
)

// Kind tags which scheme produced an allocation.
type Kind string

const (
	KindLegacy  Kind = "legacy"
	KindCurrent Kind = "current"
)

// Record binds an identity to its allocation scheme. Created once per
// identity on first workspace request, read on every subsequent request,
// removed when the identity's workspaces are fully reclaimed.
type Record struct {
	Identity    identity.Identity
	Kind        Kind
	LegacyIndex int // meaningful only for KindLegacy
	CreatedAt   time.Time
}

// NewCurrent builds a record under the current hash-suffix scheme.
func NewCurrent(id identity.Identity) Record {
	return Record{Identity: id, Kind: KindCurrent, CreatedAt: time.Now()}
}

// NewLegacy builds a record under the legacy indexed scheme. Only upgrades
// from pre-hash installations produce these.
func NewLegacy(id identity.Identity, index int) Record {
	return Record{Identity: id, Kind: KindLegacy, LegacyIndex: index, CreatedAt: time.Now()}
}

// DirectoryName resolves the workspace directory name for this record under
// the given length budget. Deterministic for a fixed record and budget.
func (r Record) DirectoryName(budget int) string {
	switch r.Kind {
	case KindLegacy:
		return legacyName(r.Identity, r.LegacyIndex, budget)
	default:
		return mangle.Name(r.Identity, budget)
	}
}

// legacyName reproduces the pre-hash naming: the sanitized prefix truncated
// to leave room for "-<index>".
func legacyName(id identity.Identity, index, budget int) string {
	suffix := "-" + strconv.Itoa(index)
	prefix := mangle.Prefix(id)
	if budget > 0 && len(prefix)+len(suffix) > budget {
		max := budget - len(suffix)
		if max < 1 {
			max = 1
		}
		prefix = prefix[:max]
	}
	return prefix + suffix
}
