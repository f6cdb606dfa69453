package checkout

import (
	"context"
	"net/http"
	"testing"

	"github.com/example/ec-storefront-client/internal/apiclient"
	"github.com/example/ec-storefront-client/internal/session"
	"github.com/example/ec-storefront-client/internal/storage"
	"github.com/example/ec-storefront-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = ShippingAddress{
	Name:       "Alex Morgan",
	Line1:      "1 Stadium Way",
	City:       "Portland",
	State:      "OR",
	PostalCode: "97201",
	Country:    "US",
	Phone:      "+1-503-555-0100",
}

func newTestStore(t *testing.T) (*Store, *apiclient.Client, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t)
	backend.AddUser("buyer@example.com", "season-ticket", "Buyer", "user")
	pair, err := backend.Login("buyer@example.com")
	require.NoError(t, err)

	tokens := session.NewTokenStore(storage.NewMemoryStorage())
	require.NoError(t, tokens.SetTokens(context.Background(), pair))
	client := apiclient.New(backend.URL(), tokens)
	return NewStore(client), client, backend
}

func addToCart(t *testing.T, client *apiclient.Client, productID, variantID string, qty int) {
	t.Helper()
	err := client.Post(context.Background(), "/cart/items", map[string]any{
		"product_id": productID, "variant_id": variantID, "quantity": qty,
	}, nil)
	require.NoError(t, err)
}

func TestStore_InitialState(t *testing.T) {
	s := NewStore(nil)
	st := s.State()
	assert.Equal(t, StepShipping, st.Step)
	assert.NotEmpty(t, st.IdempotencyKey)
	assert.Nil(t, st.Order)
}

func TestStore_SetShippingAddress(t *testing.T) {
	s := NewStore(nil)

	incomplete := testAddress
	incomplete.PostalCode = ""
	assert.ErrorIs(t, s.SetShippingAddress(incomplete), ErrIncompleteAddress)
	assert.Equal(t, StepShipping, s.Step())

	require.NoError(t, s.SetShippingAddress(testAddress))
	assert.Equal(t, StepReview, s.Step())
	assert.Equal(t, testAddress, *s.State().ShippingAddress)
}

func TestStore_SetStep(t *testing.T) {
	s := NewStore(nil)

	assert.ErrorIs(t, s.SetStep(StepReview), ErrAddressRequired)
	assert.ErrorIs(t, s.SetStep(StepComplete), ErrInvalidStep)

	require.NoError(t, s.SetShippingAddress(testAddress))
	require.NoError(t, s.SetStep(StepShipping))
	require.NoError(t, s.SetStep(StepReview))
	require.NoError(t, s.SetStep(StepReview))
	assert.ErrorIs(t, s.SetStep(StepComplete), ErrInvalidStep)
}

func TestStore_SubmitRequiresAddress(t *testing.T) {
	s, _, backend := newTestStore(t)

	_, err := s.SubmitOrder(context.Background(), "")
	assert.ErrorIs(t, err, ErrAddressRequired)
	assert.Zero(t, backend.CallCount(http.MethodPost, "/orders"))
}

func TestStore_SubmitOrder(t *testing.T) {
	s, client, backend := newTestStore(t)
	addToCart(t, client, "prod-predator", "var-predator-9", 1)
	require.NoError(t, s.SetShippingAddress(testAddress))

	order, err := s.SubmitOrder(context.Background(), "Leave at the gate")
	require.NoError(t, err)

	assert.Equal(t, StepComplete, s.Step())
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, int64(24999), order.Subtotal)
	assert.Equal(t, int64(0), order.ShippingCost)
	assert.Equal(t, int64(2000), order.Tax)
	assert.Equal(t, int64(26999), order.Total)
	require.Len(t, order.Items, 1)
	assert.Equal(t, int64(24999), order.Items[0].UnitPrice)
	assert.Equal(t, "Leave at the gate", order.Notes)
	assert.Equal(t, testAddress, order.ShippingAddress)
	assert.Equal(t, 1, backend.OrderCount())
	assert.Zero(t, backend.CartQuantity("var-predator-9"))
}

func TestStore_SubmitShippingCharged(t *testing.T) {
	s, client, _ := newTestStore(t)
	addToCart(t, client, "prod-ball", "var-ball-5", 2)
	require.NoError(t, s.SetShippingAddress(testAddress))

	order, err := s.SubmitOrder(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, int64(3998), order.Subtotal)
	assert.Equal(t, int64(999), order.ShippingCost)
	assert.Equal(t, int64(320), order.Tax)
	assert.Equal(t, int64(3998+999+320), order.Total)
}

func TestStore_RetryAfterFailureIsIdempotent(t *testing.T) {
	s, client, backend := newTestStore(t)
	addToCart(t, client, "prod-copa", "var-copa-8", 1)
	require.NoError(t, s.SetShippingAddress(testAddress))
	key := s.State().IdempotencyKey

	backend.FailNext(http.MethodPost, "/orders", http.StatusServiceUnavailable, "Payment provider unavailable")
	_, err := s.SubmitOrder(context.Background(), "")
	require.Error(t, err)

	st := s.State()
	assert.Equal(t, "Payment provider unavailable", st.Error)
	assert.Equal(t, key, st.IdempotencyKey)
	assert.Equal(t, StepReview, st.Step)
	assert.False(t, st.IsSubmitting)

	first, err := s.SubmitOrder(context.Background(), "")
	require.NoError(t, err)
	again, err := s.SubmitOrder(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, backend.OrderCount())
	assert.Empty(t, s.State().Error)
}

func TestStore_SubmitEmptyCart(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.SetShippingAddress(testAddress))

	_, err := s.SubmitOrder(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, "Cart is empty", s.State().Error)

	s.ClearError()
	assert.Empty(t, s.State().Error)
}

func TestStore_Reset(t *testing.T) {
	s, client, _ := newTestStore(t)
	addToCart(t, client, "prod-ball", "var-ball-5", 1)
	require.NoError(t, s.SetShippingAddress(testAddress))
	_, err := s.SubmitOrder(context.Background(), "")
	require.NoError(t, err)
	key := s.State().IdempotencyKey

	s.Reset()

	st := s.State()
	assert.Equal(t, StepShipping, st.Step)
	assert.Nil(t, st.Order)
	assert.Nil(t, st.ShippingAddress)
	assert.NotEqual(t, key, st.IdempotencyKey)
}

func TestStore_NewIdempotencyKey(t *testing.T) {
	s := NewStore(nil)
	key := s.State().IdempotencyKey
	s.NewIdempotencyKey()
	assert.NotEqual(t, key, s.State().IdempotencyKey)
}
