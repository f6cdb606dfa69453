// Package catalog provides read-only product and category queries with
// short-lived caching.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/example/ec-storefront-client/internal/apiclient"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	ProductTTL  = 5 * time.Minute
	FeaturedTTL = 10 * time.Minute
	CategoryTTL = 30 * time.Minute

	defaultCacheSize     = 256
	defaultFeaturedLimit = 8
)

// listMoneyPaths are the monetary fields of a product list. The top-level
// total is a count and must not be converted.
var listMoneyPaths = []string{
	"items[].price",
	"items[].compare_at_price",
}

// API is the subset of the API client the catalog needs.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
}

// Service answers catalog queries, serving repeated ones from cache until
// they go stale.
type Service struct {
	api    API
	logger *zap.Logger

	lists      *expirable.LRU[string, ProductList]
	products   *expirable.LRU[string, Product]
	featured   *expirable.LRU[int, []Product]
	categories *expirable.LRU[string, []Category]
	category   *expirable.LRU[string, Category]
}

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	logger      *zap.Logger
	size        int
	productTTL  time.Duration
	featuredTTL time.Duration
	categoryTTL time.Duration
}

func WithLogger(l *zap.Logger) Option {
	return func(c *serviceConfig) { c.logger = l }
}

// WithCacheSize bounds each cache to n entries.
func WithCacheSize(n int) Option {
	return func(c *serviceConfig) { c.size = n }
}

// WithTTLs overrides the staleness windows.
func WithTTLs(products, featured, categories time.Duration) Option {
	return func(c *serviceConfig) {
		c.productTTL = products
		c.featuredTTL = featured
		c.categoryTTL = categories
	}
}

func NewService(api API, opts ...Option) *Service {
	cfg := serviceConfig{
		logger:      zap.NewNop(),
		size:        defaultCacheSize,
		productTTL:  ProductTTL,
		featuredTTL: FeaturedTTL,
		categoryTTL: CategoryTTL,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Service{
		api:        api,
		logger:     cfg.logger.Named("catalog"),
		lists:      expirable.NewLRU[string, ProductList](cfg.size, nil, cfg.productTTL),
		products:   expirable.NewLRU[string, Product](cfg.size, nil, cfg.productTTL),
		featured:   expirable.NewLRU[int, []Product](cfg.size, nil, cfg.featuredTTL),
		categories: expirable.NewLRU[string, []Category](1, nil, cfg.categoryTTL),
		category:   expirable.NewLRU[string, Category](cfg.size, nil, cfg.categoryTTL),
	}
}

// ListProducts returns one page of products matching filters.
func (s *Service) ListProducts(ctx context.Context, filters Filters, page Page) (ProductList, error) {
	q := filters.Query(page)
	key := q.Encode()
	if list, ok := s.lists.Get(key); ok {
		return list, nil
	}

	var list ProductList
	err := s.api.Get(ctx, "/products", &list,
		apiclient.WithQuery(q),
		apiclient.WithMoneySchema(listMoneyPaths...),
	)
	if err != nil {
		return ProductList{}, fmt.Errorf("list products: %w", err)
	}

	s.lists.Add(key, list)
	s.logger.Debug("products loaded", zap.String("query", key), zap.Int("total", list.Total))
	return list, nil
}

// Product returns a product by id.
func (s *Service) Product(ctx context.Context, id string) (Product, error) {
	return s.product(ctx, "id:"+id, "/products/"+url.PathEscape(id))
}

// ProductBySlug returns a product by its URL slug.
func (s *Service) ProductBySlug(ctx context.Context, slug string) (Product, error) {
	return s.product(ctx, "slug:"+slug, "/products/slug/"+url.PathEscape(slug))
}

func (s *Service) product(ctx context.Context, key, path string) (Product, error) {
	if p, ok := s.products.Get(key); ok {
		return p, nil
	}
	var p Product
	if err := s.api.Get(ctx, path, &p); err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	s.products.Add(key, p)
	return p, nil
}

// Featured returns up to limit featured products.
func (s *Service) Featured(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = defaultFeaturedLimit
	}
	if ps, ok := s.featured.Get(limit); ok {
		return ps, nil
	}

	var ps []Product
	q := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if err := s.api.Get(ctx, "/products/featured", &ps, apiclient.WithQuery(q)); err != nil {
		return nil, fmt.Errorf("featured products: %w", err)
	}
	s.featured.Add(limit, ps)
	return ps, nil
}

// Categories returns every category.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	if cs, ok := s.categories.Get("all"); ok {
		return cs, nil
	}
	var cs []Category
	if err := s.api.Get(ctx, "/categories", &cs); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	s.categories.Add("all", cs)
	return cs, nil
}

// Category returns a category by id.
func (s *Service) Category(ctx context.Context, id string) (Category, error) {
	return s.fetchCategory(ctx, "id:"+id, "/categories/"+url.PathEscape(id))
}

// CategoryBySlug returns a category by slug.
func (s *Service) CategoryBySlug(ctx context.Context, slug string) (Category, error) {
	return s.fetchCategory(ctx, "slug:"+slug, "/categories/slug/"+url.PathEscape(slug))
}

func (s *Service) fetchCategory(ctx context.Context, key, path string) (Category, error) {
	if c, ok := s.category.Get(key); ok {
		return c, nil
	}
	var c Category
	if err := s.api.Get(ctx, path, &c); err != nil {
		return Category{}, fmt.Errorf("get category: %w", err)
	}
	s.category.Add(key, c)
	return c, nil
}

// Invalidate drops every cached result.
func (s *Service) Invalidate() {
	s.lists.Purge()
	s.products.Purge()
	s.featured.Purge()
	s.categories.Purge()
	s.category.Purge()
}
