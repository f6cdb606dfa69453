// Package auth holds the signed-in user and the login, registration and
// logout flows. Tokens live in the session token store that the API client
// reads on every request.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/ec-storefront-client/internal/apiclient"
	"github.com/example/ec-storefront-client/internal/session"
	"github.com/example/ec-storefront-client/internal/storage"
	"go.uber.org/zap"
)

const (
	MsgLoginFailed    = "Login failed"
	MsgRegisterFailed = "Registration failed"

	// ProfileKey stores the last known user for display before the first
	// /auth/me round trip.
	ProfileKey = "footy-auth"
)

// User is the signed-in account.
type User struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Phone      string    `json:"phone,omitempty"`
	IsActive   bool      `json:"is_active"`
	IsVerified bool      `json:"is_verified"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

type authResponse struct {
	User   User           `json:"user"`
	Tokens session.Tokens `json:"tokens"`
}

// API is the subset of the API client the auth store needs.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
}

// TokenStore persists the token pair.
type TokenStore interface {
	Tokens(ctx context.Context) (session.Tokens, bool, error)
	SetTokens(ctx context.Context, t session.Tokens) error
	Clear(ctx context.Context) error
}

type State struct {
	User            *User
	IsLoading       bool
	IsAuthenticated bool
	Error           string
}

type Store struct {
	api     API
	tokens  TokenStore
	profile storage.Storage
	logger  *zap.Logger

	mu    sync.Mutex
	state State
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithProfileStorage remembers the signed-in user across restarts.
func WithProfileStorage(st storage.Storage) Option {
	return func(s *Store) { s.profile = st }
}

func NewStore(api API, tokens TokenStore, opts ...Option) *Store {
	s := &Store{
		api:    api,
		tokens: tokens,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("auth")
	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	if st.User != nil {
		u := *st.User
		st.User = &u
	}
	return st
}

func (s *Store) User() *User {
	return s.State().User
}

func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsAuthenticated
}

func (s *Store) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.User.IsAdmin()
}

func (s *Store) ClearError() {
	s.set(func(st *State) { st.Error = "" })
}

// Login signs in and stores the issued tokens.
func (s *Store) Login(ctx context.Context, req LoginRequest) error {
	return s.authenticate(ctx, "/auth/login", req, MsgLoginFailed)
}

// Register creates an account and signs in. The request is validated
// locally first.
func (s *Store) Register(ctx context.Context, req RegisterRequest) error {
	if err := ValidateRegistration(req); err != nil {
		s.set(func(st *State) { st.Error = err.Error() })
		return err
	}
	return s.authenticate(ctx, "/auth/register", req, MsgRegisterFailed)
}

func (s *Store) authenticate(ctx context.Context, path string, body any, fallback string) error {
	s.set(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})

	var resp authResponse
	err := s.api.Post(ctx, path, body, &resp)
	if err == nil {
		err = s.tokens.SetTokens(ctx, resp.Tokens)
	}
	if err != nil {
		msg := apiclient.Message(err, fallback)
		s.set(func(st *State) {
			st.IsLoading = false
			st.IsAuthenticated = false
			st.Error = msg
		})
		return fmt.Errorf("%s: %w", msg, err)
	}

	user := resp.User
	s.set(func(st *State) {
		st.User = &user
		st.IsAuthenticated = true
		st.IsLoading = false
	})
	s.saveProfile(ctx, &user)
	s.logger.Info("signed in", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return nil
}

// Logout forgets the tokens and the user. It is also the API client's
// logout hook, so it must not call the API.
func (s *Store) Logout(ctx context.Context) {
	if err := s.tokens.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear tokens", zap.Error(err))
	}
	s.set(func(st *State) {
		st.User = nil
		st.IsAuthenticated = false
		st.Error = ""
	})
	s.saveProfile(ctx, nil)
}

// FetchCurrentUser loads the user behind the stored tokens. Without tokens,
// or when the backend rejects them, the store ends up signed out.
func (s *Store) FetchCurrentUser(ctx context.Context) error {
	_, ok, err := s.tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.set(func(st *State) {
			st.User = nil
			st.IsAuthenticated = false
		})
		return nil
	}

	s.set(func(st *State) { st.IsLoading = true })

	var user User
	if err := s.api.Get(ctx, "/auth/me", &user); err != nil {
		s.set(func(st *State) {
			st.User = nil
			st.IsAuthenticated = false
			st.IsLoading = false
		})
		return err
	}

	s.set(func(st *State) {
		st.User = &user
		st.IsAuthenticated = true
		st.IsLoading = false
	})
	s.saveProfile(ctx, &user)
	return nil
}

// Initialize restores the remembered user and then confirms it with the
// backend when tokens are present.
func (s *Store) Initialize(ctx context.Context) error {
	if u := s.loadProfile(ctx); u != nil {
		s.set(func(st *State) {
			st.User = u
			st.IsAuthenticated = true
		})
	}

	_, ok, err := s.tokens.Tokens(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.set(func(st *State) {
			st.User = nil
			st.IsAuthenticated = false
		})
		return nil
	}
	return s.FetchCurrentUser(ctx)
}

// Claims decodes the stored access token.
func (s *Store) Claims(ctx context.Context) (*Claims, error) {
	t, ok, err := s.tokens.Tokens(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidToken
	}
	return ParseClaims(t.AccessToken)
}

func (s *Store) set(fn func(st *State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
}

func (s *Store) saveProfile(ctx context.Context, u *User) {
	if s.profile == nil {
		return
	}
	if u == nil {
		if err := s.profile.Remove(ctx, ProfileKey); err != nil {
			s.logger.Warn("failed to remove profile", zap.Error(err))
		}
		return
	}
	data, err := json.Marshal(u)
	if err == nil {
		err = s.profile.Set(ctx, ProfileKey, string(data))
	}
	if err != nil {
		s.logger.Warn("failed to save profile", zap.Error(err))
	}
}

func (s *Store) loadProfile(ctx context.Context) *User {
	if s.profile == nil {
		return nil
	}
	raw, found, err := s.profile.Get(ctx, ProfileKey)
	if err != nil || !found {
		return nil
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		s.logger.Warn("discarding unreadable profile", zap.Error(err))
		return nil
	}
	return &u
}
