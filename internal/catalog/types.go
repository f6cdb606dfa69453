package catalog

import "time"

// Category is a product category.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Variant is a purchasable size of a product.
type Variant struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Size      string    `json:"size"`
	SKU       string    `json:"sku,omitempty"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product prices are in cents.
type Product struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Slug            string    `json:"slug"`
	Description     string    `json:"description,omitempty"`
	Price           int64     `json:"price"`
	CompareAtPrice  *int64    `json:"compare_at_price,omitempty"`
	Images          []string  `json:"images"`
	Brand           string    `json:"brand,omitempty"`
	Material        string    `json:"material,omitempty"`
	Color           string    `json:"color,omitempty"`
	Gender          string    `json:"gender,omitempty"`
	IsActive        bool      `json:"is_active"`
	IsFeatured      bool      `json:"is_featured"`
	CategoryID      string    `json:"category_id,omitempty"`
	Category        *Category `json:"category,omitempty"`
	MetaTitle       string    `json:"meta_title,omitempty"`
	MetaDescription string    `json:"meta_description,omitempty"`
	Variants        []Variant `json:"variants"`
	InStock         bool      `json:"in_stock"`
	AvailableSizes  []string  `json:"available_sizes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Variant returns the variant with the given id.
func (p *Product) Variant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// ProductList is one page of products. Total is a count of products, not
// an amount of money.
type ProductList struct {
	Items    []Product `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Pages    int       `json:"pages"`
}
