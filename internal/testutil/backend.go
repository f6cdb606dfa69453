// Package testutil runs an in-process storefront backend for tests. It speaks
// the same float-dollar JSON contract as the real service and lets tests
// expire tokens, inject failures and hold requests mid-flight.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/example/ec-storefront-client/internal/session"
	"github.com/google/uuid"
)

// Call is one request seen by the backend.
type Call struct {
	Method        string
	Path          string
	Authorization string
	Body          []byte
}

type injectedFailure struct {
	status int
	detail string
}

// Backend is a fake storefront API mounted under /api/v1.
type Backend struct {
	server *httptest.Server
	tokens *tokenIssuer

	mu           sync.Mutex
	users        map[string]*user
	refresh      map[string]string
	revoked      map[string]bool
	issued       []string
	products     []product
	categories   []category
	cart         []cartLine
	cartID       string
	orders       map[string]map[string]any
	orderSeq     int
	events       map[string]map[string]any
	failures     map[string][]injectedFailure
	holds        map[string][]chan struct{}
	calls        []Call
	unauthorized int
	refreshCalls int
}

// NewBackend starts a backend that is shut down when the test ends.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		tokens:     newTokenIssuer("test-secret"),
		users:      make(map[string]*user),
		refresh:    make(map[string]string),
		revoked:    make(map[string]bool),
		products:   seedProducts(),
		categories: seedCategories(),
		cartID:     uuid.NewString(),
		orders:     make(map[string]map[string]any),
		events:     make(map[string]map[string]any),
		failures:   make(map[string][]injectedFailure),
		holds:      make(map[string][]chan struct{}),
	}
	b.server = httptest.NewServer(http.StripPrefix("/api/v1", b.router()))
	t.Cleanup(b.server.Close)
	return b
}

// URL is the base URL to hand to the API client.
func (b *Backend) URL() string {
	return b.server.URL
}

// AddUser registers a user directly.
func (b *Backend) AddUser(email, password, name, role string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email] = &user{
		ID:       uuid.NewString(),
		Email:    email,
		Name:     name,
		Password: password,
		Role:     role,
		Created:  fixtureTime,
	}
}

// Login issues a token pair for an existing user without going through HTTP.
func (b *Backend) Login(email string) (session.Tokens, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[email]
	if !ok {
		return session.Tokens{}, fmt.Errorf("unknown user %q", email)
	}
	return b.issueLocked(u)
}

// ExpireAccessTokens makes every access token issued so far answer 401.
func (b *Backend) ExpireAccessTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tok := range b.issued {
		b.revoked[tok] = true
	}
}

// RevokeRefreshTokens makes every refresh token issued so far invalid.
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refresh = make(map[string]string)
}

// FailNext makes the next request to method+path answer status with detail.
// Path is relative to /api/v1.
func (b *Backend) FailNext(method, path string, status int, detail string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := method + " " + path
	b.failures[key] = append(b.failures[key], injectedFailure{status: status, detail: detail})
}

// Hold parks the next request to method+path until release is called. The
// request is counted in Calls as soon as it arrives.
func (b *Backend) Hold(method, path string) (release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	key := method + " " + path
	b.holds[key] = append(b.holds[key], ch)
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Calls returns every request seen so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// CallCount counts requests to method+path.
func (b *Backend) CallCount(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Unauthorized counts protected requests rejected with 401.
func (b *Backend) Unauthorized() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unauthorized
}

// RefreshCalls counts POST /auth/refresh requests.
func (b *Backend) RefreshCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshCalls
}

// Events returns the analytics events accepted so far, keyed by event_id.
func (b *Backend) Events() map[string]map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]map[string]any, len(b.events))
	for k, v := range b.events {
		out[k] = v
	}
	return out
}

// CartQuantity returns the server-side quantity for a variant.
func (b *Backend) CartQuantity(variantID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range b.cart {
		if line.VariantID == variantID {
			return line.Quantity
		}
	}
	return 0
}

// OrderCount returns how many distinct orders were created.
func (b *Backend) OrderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

func (b *Backend) issueLocked(u *user) (session.Tokens, error) {
	access, err := b.tokens.access(u)
	if err != nil {
		return session.Tokens{}, err
	}
	refresh, err := b.tokens.refresh(u)
	if err != nil {
		return session.Tokens{}, err
	}
	b.issued = append(b.issued, access)
	b.refresh[refresh] = u.Email
	return session.Tokens{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"}, nil
}

func (b *Backend) router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{"status": "healthy"})
	})

	// Auth
	mux.HandleFunc("POST /auth/login", b.handleLogin)
	mux.HandleFunc("POST /auth/register", b.handleRegister)
	mux.HandleFunc("POST /auth/refresh", b.handleRefresh)
	mux.Handle("GET /auth/me", b.requireAuth(http.HandlerFunc(b.handleMe)))

	// Catalog
	mux.HandleFunc("GET /products", b.handleListProducts)
	mux.HandleFunc("GET /products/featured", b.handleFeatured)
	mux.HandleFunc("GET /products/slug/{slug}", b.handleProductBySlug)
	mux.HandleFunc("GET /products/{id}", b.handleProduct)
	mux.HandleFunc("GET /categories", b.handleCategories)
	mux.HandleFunc("GET /categories/slug/{slug}", b.handleCategoryBySlug)
	mux.HandleFunc("GET /categories/{id}", b.handleCategory)

	// Cart
	mux.Handle("GET /cart", b.requireAuth(http.HandlerFunc(b.handleGetCart)))
	mux.Handle("DELETE /cart", b.requireAuth(http.HandlerFunc(b.handleClearCart)))
	mux.Handle("POST /cart/items", b.requireAuth(http.HandlerFunc(b.handleAddItem)))
	mux.Handle("PATCH /cart/items/{variant}", b.requireAuth(http.HandlerFunc(b.handleUpdateItem)))
	mux.Handle("DELETE /cart/items/{variant}", b.requireAuth(http.HandlerFunc(b.handleRemoveItem)))

	// Orders
	mux.Handle("POST /orders", b.requireAuth(http.HandlerFunc(b.handleCreateOrder)))

	// Analytics
	mux.HandleFunc("POST /events/batch", b.handleEvents)

	return b.withRecording(mux)
}

// withRecording logs the call, applies injected failures and holds.
func (b *Backend) withRecording(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := readBody(r)
		key := r.Method + " " + r.URL.Path

		b.mu.Lock()
		b.calls = append(b.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		if r.URL.Path == "/auth/refresh" {
			b.refreshCalls++
		}
		var hold chan struct{}
		if hs := b.holds[key]; len(hs) > 0 {
			hold, b.holds[key] = hs[0], hs[1:]
		}
		var fail *injectedFailure
		if fs := b.failures[key]; len(fs) > 0 {
			fail = &fs[0]
			b.failures[key] = fs[1:]
		}
		b.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if fail != nil {
			respondError(w, fail.detail, fail.status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type contextKey string

const userContextKey contextKey = "user"

// extractToken reads the bearer token from the Authorization header.
func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

func (b *Backend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		c, err := b.tokens.validateAccess(token)

		b.mu.Lock()
		revoked := b.revoked[token]
		var u *user
		if err == nil && !revoked {
			u = b.users[c.Email]
		}
		if u == nil {
			b.unauthorized++
		}
		b.mu.Unlock()

		if u == nil {
			respondError(w, "Could not validate credentials", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) *user {
	u, _ := ctx.Value(userContextKey).(*user)
	return u
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes the {"detail": ...} body the real backend uses.
func respondError(w http.ResponseWriter, detail string, status int) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
