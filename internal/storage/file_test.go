package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "storage.json")

	s, err := OpenFileStorage(path, "")
	require.NoError(t, err)
	exerciseStorage(t, s)
}

func TestFileStorage_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")

	s, err := OpenFileStorage(path, "")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "footy_refresh_token", "refresh-1"))

	reopened, err := OpenFileStorage(path, "")
	require.NoError(t, err)
	v, found, err := reopened.Get(ctx, "footy_refresh_token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "refresh-1", v)
}

func TestFileStorage_Encrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")

	s, err := OpenFileStorage(path, "correct horse")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "footy_access_token", "very-secret-token"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret-token")

	reopened, err := OpenFileStorage(path, "correct horse")
	require.NoError(t, err)
	v, found, err := reopened.Get(ctx, "footy_access_token")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "very-secret-token", v)
}

func TestFileStorage_WrongSecret(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.json")

	s, err := OpenFileStorage(path, "right")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "k", "v"))

	_, err = OpenFileStorage(path, "wrong")
	assert.ErrorIs(t, err, ErrDecrypt)

	_, err = OpenFileStorage(path, "")
	assert.ErrorIs(t, err, ErrDecrypt)
}

func TestFileStorage_RequiresPath(t *testing.T) {
	_, err := OpenFileStorage("", "")
	assert.Error(t, err)
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFileStorage(path, "")
	assert.Error(t, err)
}
