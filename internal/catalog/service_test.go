package catalog

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/example/ec-storefront-client/internal/apiclient"
	"github.com/example/ec-storefront-client/internal/session"
	"github.com/example/ec-storefront-client/internal/storage"
	"github.com/example/ec-storefront-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *testutil.Backend) {
	t.Helper()
	backend := testutil.NewBackend(t)
	client := apiclient.New(backend.URL(), session.NewTokenStore(storage.NewMemoryStorage()))
	return NewService(client, opts...), backend
}

func cents(v int64) *int64 { return &v }

func TestService_ListProducts(t *testing.T) {
	svc, _ := newTestService(t)

	list, err := svc.ListProducts(context.Background(), Filters{}, Page{})
	require.NoError(t, err)

	assert.Equal(t, 3, list.Total, "total is a count and stays unconverted")
	assert.Equal(t, 1, list.Page)
	require.Len(t, list.Items, 3)
	assert.Equal(t, int64(24999), list.Items[0].Price)
	assert.Equal(t, int64(1999), list.Items[2].Price)
	assert.Equal(t, 5, list.Items[0].Variants[0].Stock)
}

func TestService_ListProductsPriceFilterSentInDollars(t *testing.T) {
	svc, backend := newTestService(t)

	list, err := svc.ListProducts(context.Background(), Filters{MinPrice: cents(10000), MaxPrice: cents(20000)}, Page{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "Copa Mundial", list.Items[0].Name)

	calls := backend.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/products", calls[0].Path)
}

func TestService_ListProductsCached(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()
	filters := Filters{Search: "copa"}

	first, err := svc.ListProducts(ctx, filters, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)
	second, err := svc.ListProducts(ctx, filters, Page{Page: 1, PageSize: 10})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.CallCount(http.MethodGet, "/products"))

	_, err = svc.ListProducts(ctx, Filters{Search: "ball"}, Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.CallCount(http.MethodGet, "/products"))
}

func TestService_CacheExpires(t *testing.T) {
	svc, backend := newTestService(t, WithTTLs(10*time.Millisecond, 10*time.Millisecond, 10*time.Millisecond))
	ctx := context.Background()

	_, err := svc.Categories(ctx)
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = svc.Categories(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, backend.CallCount(http.MethodGet, "/categories"))
}

func TestService_Invalidate(t *testing.T) {
	svc, backend := newTestService(t)
	ctx := context.Background()

	_, err := svc.Product(ctx, "prod-ball")
	require.NoError(t, err)
	svc.Invalidate()
	_, err = svc.Product(ctx, "prod-ball")
	require.NoError(t, err)

	assert.Equal(t, 2, backend.CallCount(http.MethodGet, "/products/prod-ball"))
}

func TestService_ProductLookups(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	byID, err := svc.Product(ctx, "prod-predator")
	require.NoError(t, err)
	assert.Equal(t, int64(24999), byID.Price)
	require.NotNil(t, byID.Category)
	assert.Equal(t, "football-boots", byID.Category.Slug)

	v, ok := byID.Variant("var-predator-10")
	require.True(t, ok)
	assert.Equal(t, "10", v.Size)

	bySlug, err := svc.ProductBySlug(ctx, "predator-elite-fg")
	require.NoError(t, err)
	assert.Equal(t, byID.ID, bySlug.ID)

	_, err = svc.Product(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apiclient.StatusCode(err))
}

func TestService_Featured(t *testing.T) {
	svc, _ := newTestService(t)

	featured, err := svc.Featured(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, featured, 2)
	for _, p := range featured {
		assert.True(t, p.IsFeatured)
	}
	assert.Equal(t, int64(1999), featured[1].Price)

	one, err := svc.Featured(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestService_Categories(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	all, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	c, err := svc.Category(ctx, "cat-balls")
	require.NoError(t, err)
	assert.Equal(t, "Balls", c.Name)

	c, err = svc.CategoryBySlug(ctx, "football-boots")
	require.NoError(t, err)
	assert.Equal(t, "cat-boots", c.ID)
}

func TestFilters_Query(t *testing.T) {
	inStock := true
	q := Filters{
		Brand:    "adidas",
		MinPrice: cents(1999),
		MaxPrice: cents(25000),
		Sizes:    []string{"9", "10"},
		InStock:  &inStock,
	}.Query(Page{Page: 2, PageSize: 12})

	assert.Equal(t, "19.99", q.Get("min_price"))
	assert.Equal(t, "250", q.Get("max_price"))
	assert.Equal(t, "9,10", q.Get("sizes"))
	assert.Equal(t, "true", q.Get("in_stock"))
	assert.Equal(t, "2", q.Get("page"))
	assert.Equal(t, "12", q.Get("page_size"))
	assert.False(t, q.Has("search"))
}
