package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/example/ec-storefront-client/internal/analytics"
	"github.com/example/ec-storefront-client/internal/config"
	"github.com/example/ec-storefront-client/internal/storage"
	"github.com/example/ec-storefront-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type cliFixture struct {
	backend *testutil.Backend
	storage *storage.MemoryStorage
	cfg     *config.Config
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	backend := testutil.NewBackend(t)
	backend.AddUser("fan@example.com", "goal-keeper", "Fan", "customer")
	return &cliFixture{
		backend: backend,
		storage: storage.NewMemoryStorage(),
		cfg: &config.Config{
			APIBaseURL:     backend.URL(),
			StorageBackend: storage.BackendMemory,
			AnalyticsSink:  config.SinkHTTP,
			UserAgent:      "storefront-test",
		},
	}
}

// run executes one command the way a fresh process would: new stores over
// the same storage.
func (f *cliFixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a, err := newApp(context.Background(), f.cfg, zap.NewNop(), f.storage, &out)
	require.NoError(t, err)
	runErr := a.run(context.Background(), args)
	a.close()
	return out.String(), runErr
}

func TestCLI_ShoppingFlow(t *testing.T) {
	f := newCLIFixture(t)

	out, err := f.run(t, "login", "fan@example.com", "goal-keeper")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as fan@example.com")

	out, err = f.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Fan <fan@example.com>")

	out, err = f.run(t, "add", "prod-predator", "var-predator-9")
	require.NoError(t, err)
	assert.Contains(t, out, "$249.99")
	assert.Equal(t, 1, f.backend.CartQuantity("var-predator-9"))

	out, err = f.run(t, "cart")
	require.NoError(t, err)
	assert.Contains(t, out, "var-predator-9")

	out, err = f.run(t, "checkout", "Fan", "1 Stadium Way", "Leeds", "WY", "LS1 1AA", "GB", "+440000000")
	require.NoError(t, err)
	assert.Contains(t, out, "order FB-000001 placed")
	assert.Contains(t, out, "total $269.99")
	assert.Equal(t, 1, f.backend.OrderCount())

	out, err = f.run(t, "cart")
	require.NoError(t, err)
	assert.Contains(t, out, "cart is empty")

	names := map[string]bool{}
	for _, e := range f.backend.Events() {
		names[e["event_name"].(string)] = true
	}
	for _, want := range []string{analytics.EventSignIn, analytics.EventAddToCart, analytics.EventBeginCheckout, analytics.EventPurchase} {
		assert.True(t, names[want], "missing %s event", want)
	}
}

func TestCLI_LoginFailure(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t, "login", "fan@example.com", "wrong-password")
	require.Error(t, err)
	assert.Equal(t, "Incorrect email or password", err.Error())

	out, err := f.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "not signed in")
}

func TestCLI_StockErrorShowsBackendDetail(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "login", "fan@example.com", "goal-keeper")
	require.NoError(t, err)

	_, err = f.run(t, "add", "prod-predator", "var-predator-10", "9")
	require.Error(t, err)
	assert.Equal(t, "Only 3 items available", err.Error())
	assert.Zero(t, f.backend.CartQuantity("var-predator-10"))
}

func TestCLI_Logout(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "login", "fan@example.com", "goal-keeper")
	require.NoError(t, err)

	out, err := f.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	_, found, err := f.storage.Get(context.Background(), "footy_access_token")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCLI_Usage(t *testing.T) {
	f := newCLIFixture(t)

	_, err := f.run(t)
	assert.ErrorIs(t, err, errUsage)

	_, err = f.run(t, "dance")
	assert.ErrorIs(t, err, errUsage)

	_, err = f.run(t, "update", "var-ball-5", "lots")
	assert.ErrorIs(t, err, errUsage)
}

func TestCLI_RevokedSessionSignsOut(t *testing.T) {
	f := newCLIFixture(t)
	_, err := f.run(t, "login", "fan@example.com", "goal-keeper")
	require.NoError(t, err)

	_, found, err := f.storage.Get(context.Background(), "footy-auth")
	require.NoError(t, err)
	require.True(t, found)

	f.backend.ExpireAccessTokens()
	f.backend.RevokeRefreshTokens()

	out, err := f.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "not signed in")

	// The remembered profile is only dropped by the auth store's Logout,
	// which runs as the API client's logout hook.
	_, found, err = f.storage.Get(context.Background(), "footy-auth")
	require.NoError(t, err)
	assert.False(t, found)
}
