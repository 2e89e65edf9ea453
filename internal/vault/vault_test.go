package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLoad(t *testing.T) {
	v := New(t.TempDir())

	require.NoError(t, v.Store("sk-or-v1-secret"))

	got, err := v.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-or-v1-secret", got)
}

func TestLoad_NothingStored(t *testing.T) {
	v := New(t.TempDir())

	got, err := v.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_CiphertextHidesSecret(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)
	require.NoError(t, v.Store("sk-or-v1-plaintext"))

	data, err := os.ReadFile(filepath.Join(dir, secretFile))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "sk-or-v1-plaintext"))

	info, err := os.Stat(filepath.Join(dir, keyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestStore_Overwrite(t *testing.T) {
	v := New(t.TempDir())
	require.NoError(t, v.Store("first"))
	require.NoError(t, v.Store("second"))

	got, err := v.Load()
	require.NoError(t, err)
	assert.Equal(t, "second", got)
}

func TestLoad_WrongKey(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)
	require.NoError(t, v.Store("secret"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, keyFile), make([]byte, 32), 0o600))

	_, err := v.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLoad_MissingKey(t *testing.T) {
	dir := t.TempDir()
	v := New(dir)
	require.NoError(t, v.Store("secret"))
	require.NoError(t, os.Remove(filepath.Join(dir, keyFile)))

	_, err := v.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestClear(t *testing.T) {
	v := New(t.TempDir())
	require.NoError(t, v.Store("secret"))
	require.NoError(t, v.Clear())
	require.NoError(t, v.Clear())

	got, err := v.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}
