package catalog

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Filters narrows a product listing. Prices are in cents and are sent to the
// backend in dollars.
type Filters struct {
	CategoryID   string
	CategorySlug string
	Brand        string
	Color        string
	Gender       string
	MinPrice     *int64
	MaxPrice     *int64
	Sizes        []string
	InStock      *bool
	IsFeatured   *bool
	Search       string
}

// Page selects a page of results; zero values use the backend defaults.
type Page struct {
	Page     int
	PageSize int
}

// Query encodes filters and page as URL query parameters.
func (f Filters) Query(p Page) url.Values {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(p.PageSize))
	}

	setIf := func(key, v string) {
		if v != "" {
			q.Set(key, v)
		}
	}
	setIf("category_id", f.CategoryID)
	setIf("category_slug", f.CategorySlug)
	setIf("brand", f.Brand)
	setIf("color", f.Color)
	setIf("gender", f.Gender)
	setIf("search", f.Search)

	if f.MinPrice != nil {
		q.Set("min_price", centsParam(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		q.Set("max_price", centsParam(*f.MaxPrice))
	}
	if len(f.Sizes) > 0 {
		q.Set("sizes", strings.Join(f.Sizes, ","))
	}
	if f.InStock != nil {
		q.Set("in_stock", strconv.FormatBool(*f.InStock))
	}
	if f.IsFeatured != nil {
		q.Set("is_featured", strconv.FormatBool(*f.IsFeatured))
	}
	return q
}

func centsParam(cents int64) string {
	return decimal.New(cents, -2).String()
}
