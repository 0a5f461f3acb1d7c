package scheme

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/mangle"
)

func TestRecord_CurrentUsesHashSuffix(t *testing.T) {
	id := identity.MustNew("p", "master")
	rec := NewCurrent(id)

	name := rec.DirectoryName(mangle.DefaultBudget)

	assert.Equal(t, mangle.Name(id, mangle.DefaultBudget), name)
}

func TestRecord_LegacyAppendsIndex(t *testing.T) {
	id := identity.MustNew("p", "master")
	rec := NewLegacy(id, 3)

	assert.Equal(t, "p-master-3", rec.DirectoryName(mangle.DefaultBudget))
}

func TestRecord_LegacyTruncatesToBudget(t *testing.T) {
	id := identity.MustNew(strings.Repeat("x", 200))
	rec := NewLegacy(id, 12)

	name := rec.DirectoryName(mangle.MinBudget)

	assert.Len(t, name, mangle.MinBudget)
	assert.True(t, strings.HasSuffix(name, "-12"))
}

func TestRecord_LegacySurvivesUpgradeUnchanged(t *testing.T) {
	// The legacy path must not depend on anything the current scheme added.
	id := identity.MustNew("stuff", "dev%2Fflow")
	rec := NewLegacy(id, 1)

	name := rec.DirectoryName(mangle.DefaultBudget)

	assert.Equal(t, "stuff-dev_252Fflow-1", name)
	assert.NotContains(t, name, ".")
}
