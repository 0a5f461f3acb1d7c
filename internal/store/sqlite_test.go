package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/wsalloc/internal/identity"
	"git.home.luguber.info/inful/wsalloc/internal/scheme"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetMissingRecord(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Get(context.Background(), identity.MustNew("p", "master"))

	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := identity.MustNew("stuff", "dev%2Fflow")

	require.NoError(t, s.Put(ctx, scheme.NewCurrent(id)))

	rec, found, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Identity.Equal(id))
	assert.Equal(t, scheme.KindCurrent, rec.Kind)
}

func TestStore_LegacyIndexSurvives(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := identity.MustNew("p", "old-branch")

	require.NoError(t, s.Put(ctx, scheme.NewLegacy(id, 7)))

	rec, found, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, scheme.KindLegacy, rec.Kind)
	assert.Equal(t, 7, rec.LegacyIndex)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := identity.MustNew("p", "master")

	require.NoError(t, s.Put(ctx, scheme.NewCurrent(id)))
	require.NoError(t, s.Delete(ctx, id))
	require.NoError(t, s.Delete(ctx, id))

	_, found, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ListReturnsAllRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, scheme.NewCurrent(identity.MustNew("p", "master"))))
	require.NoError(t, s.Put(ctx, scheme.NewLegacy(identity.MustNew("p", "old"), 2)))

	records, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alloc.db")
	ctx := context.Background()
	id := identity.MustNew("p", "master")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, scheme.NewCurrent(id)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	_, found, err := second.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, found)
}
