// Package session persists the access and refresh tokens under the fixed
// storage keys shared by the API client and the auth store.
package session

import (
	"context"
	"fmt"

	"github.com/example/ec-storefront-client/internal/storage"
)

const (
	AccessTokenKey  = "footy_access_token"
	RefreshTokenKey = "footy_refresh_token"
)

// Tokens is the token pair returned by login, register and refresh.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
}

// TokenStore reads tokens on every call, so callers always see the latest
// rotation.
type TokenStore struct {
	storage storage.Storage
}

func NewTokenStore(s storage.Storage) *TokenStore {
	return &TokenStore{storage: s}
}

// AccessToken returns the stored access token or "".
func (ts *TokenStore) AccessToken(ctx context.Context) (string, error) {
	return ts.get(ctx, AccessTokenKey)
}

// RefreshToken returns the stored refresh token or "".
func (ts *TokenStore) RefreshToken(ctx context.Context) (string, error) {
	return ts.get(ctx, RefreshTokenKey)
}

// Tokens returns both tokens, and false unless both are present.
func (ts *TokenStore) Tokens(ctx context.Context) (Tokens, bool, error) {
	access, err := ts.AccessToken(ctx)
	if err != nil {
		return Tokens{}, false, err
	}
	refresh, err := ts.RefreshToken(ctx)
	if err != nil {
		return Tokens{}, false, err
	}
	if access == "" || refresh == "" {
		return Tokens{}, false, nil
	}
	return Tokens{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, true, nil
}

// SetTokens stores a new pair.
func (ts *TokenStore) SetTokens(ctx context.Context, t Tokens) error {
	if err := ts.storage.Set(ctx, AccessTokenKey, t.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := ts.storage.Set(ctx, RefreshTokenKey, t.RefreshToken); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// Clear removes both tokens.
func (ts *TokenStore) Clear(ctx context.Context) error {
	if err := ts.storage.Remove(ctx, AccessTokenKey); err != nil {
		return fmt.Errorf("remove access token: %w", err)
	}
	if err := ts.storage.Remove(ctx, RefreshTokenKey); err != nil {
		return fmt.Errorf("remove refresh token: %w", err)
	}
	return nil
}

func (ts *TokenStore) get(ctx context.Context, key string) (string, error) {
	v, found, err := ts.storage.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if !found {
		return "", nil
	}
	return v, nil
}
