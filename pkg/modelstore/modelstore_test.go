package modelstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	doc := map[string]any{"version": "v1", "weights": []any{1.0, 2.0, 3.0}}
	require.NoError(t, store.Save("v1", doc))

	got, err := store.Load("v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", got["version"])
}

func TestFileStore_LoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("v1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_SaveInvalidVersion(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	err = store.Save("v01", map[string]any{})
	assert.Error(t, err)
}

func TestFileStore_ExistsAndList(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, store.Exists("v1"))

	require.NoError(t, store.Save("v2", map[string]any{}))
	require.NoError(t, store.Save("v10", map[string]any{}))
	require.NoError(t, store.Save("v1", map[string]any{}))

	assert.True(t, store.Exists("v2"))

	versions, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2", "v10"}, versions)
}

func TestFileStore_Latest(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, ok := store.Latest()
	assert.False(t, ok)

	require.NoError(t, store.Save("v1", map[string]any{}))
	require.NoError(t, store.Save("v9", map[string]any{}))
	require.NoError(t, store.Save("v10", map[string]any{}))

	latest, ok := store.Latest()
	require.True(t, ok)
	assert.Equal(t, "v10", latest)
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("v1", map[string]any{"n": float64(1)}))
	require.NoError(t, store.Save("v1", map[string]any{"n": float64(2)}))

	got, err := store.Load("v1")
	require.NoError(t, err)
	assert.Equal(t, float64(2), got["n"])
}
