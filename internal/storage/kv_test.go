package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileKVRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs", "session.json")
	kv := NewFileKV(path)

	_, ok, err := kv.Get(CurrentOrganizationKey)
	require.NoError(t, err)
	assert.False(t, ok, "missing file reads as empty store")

	require.NoError(t, kv.Set(CurrentOrganizationKey, "org-a"))
	require.NoError(t, kv.Set("theme", "dark"))

	v, ok, err := kv.Get(CurrentOrganizationKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org-a", v)

	// A fresh handle over the same file sees the persisted values
	reopened := NewFileKV(path)
	v, ok, err = reopened.Get("theme")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestFileKVOverwrite(t *testing.T) {
	kv := NewFileKV(filepath.Join(t.TempDir(), "session.json"))

	require.NoError(t, kv.Set(CurrentOrganizationKey, "org-a"))
	require.NoError(t, kv.Set(CurrentOrganizationKey, "org-b"))

	v, ok, err := kv.Get(CurrentOrganizationKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org-b", v)
}

func TestFileKVCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not json{"), 0o600))

	kv := NewFileKV(path)
	_, ok, err := kv.Get(CurrentOrganizationKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(CurrentOrganizationKey, "org-a"))
	v, ok, err := kv.Get(CurrentOrganizationKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org-a", v)
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()

	_, ok, err := kv.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(CurrentOrganizationKey, "org-a"))
	v, ok, err := kv.Get(CurrentOrganizationKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "org-a", v)
}
