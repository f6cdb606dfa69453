package session

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ec-storefront-client/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	storage.Storage
}

func (failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk gone")
}

func TestTokenStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	ts := NewTokenStore(mem)

	_, ok, err := ts.Tokens(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ts.SetTokens(ctx, Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	access, err := ts.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", access)

	tokens, ok, err := ts.Tokens(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Tokens{AccessToken: "a1", RefreshToken: "r1", TokenType: "bearer"}, tokens)

	v, found, _ := mem.Get(ctx, RefreshTokenKey)
	assert.True(t, found)
	assert.Equal(t, "r1", v)
}

func TestTokenStore_ReadsLatestValue(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	ts := NewTokenStore(mem)

	require.NoError(t, ts.SetTokens(ctx, Tokens{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, mem.Set(ctx, AccessTokenKey, "a2"))

	access, err := ts.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", access)
}

func TestTokenStore_Clear(t *testing.T) {
	ctx := context.Background()
	ts := NewTokenStore(storage.NewMemoryStorage())
	require.NoError(t, ts.SetTokens(ctx, Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	require.NoError(t, ts.Clear(ctx))

	access, _ := ts.AccessToken(ctx)
	refresh, _ := ts.RefreshToken(ctx)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestTokenStore_StorageError(t *testing.T) {
	ts := NewTokenStore(failingStorage{})

	_, err := ts.AccessToken(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}
