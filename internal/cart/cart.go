package cart

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/ec-storefront-client/internal/catalog"
)

var ErrInvariant = errors.New("cart invariant violated")

// CartItem is one line of the cart. Money is in cents.
type CartItem struct {
	ID        string           `json:"id"`
	ProductID string           `json:"product_id"`
	VariantID string           `json:"variant_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice int64            `json:"unit_price"`
	Subtotal  int64            `json:"subtotal"`
	Product   *catalog.Product `json:"product,omitempty"`
	Variant   *catalog.Variant `json:"variant,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Cart is the client view of the server cart. Money is in cents.
type Cart struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	Items     []CartItem `json:"items"`
	Total     int64      `json:"total"`
	ItemCount int        `json:"item_count"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Clone copies the cart and its item list. Product and variant data are
// shared; they are never modified in place.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Items != nil {
		out.Items = make([]CartItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	return &out
}

// Find returns the index of the line for variantID.
func (c *Cart) Find(variantID string) (int, bool) {
	if c == nil {
		return -1, false
	}
	for i, item := range c.Items {
		if item.VariantID == variantID {
			return i, true
		}
	}
	return -1, false
}

// CheckInvariants validates a settled cart: aggregates match the lines,
// every line has a positive quantity and variants are unique.
func (c *Cart) CheckInvariants() error {
	if c == nil {
		return nil
	}

	seen := make(map[string]bool, len(c.Items))
	count := 0
	var total int64
	for _, item := range c.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("%w: variant %s has quantity %d", ErrInvariant, item.VariantID, item.Quantity)
		}
		if seen[item.VariantID] {
			return fmt.Errorf("%w: duplicate variant %s", ErrInvariant, item.VariantID)
		}
		seen[item.VariantID] = true
		if want := item.UnitPrice * int64(item.Quantity); item.Subtotal != want {
			return fmt.Errorf("%w: variant %s subtotal %d, want %d", ErrInvariant, item.VariantID, item.Subtotal, want)
		}
		count += item.Quantity
		total += item.Subtotal
	}

	if c.ItemCount != count {
		return fmt.Errorf("%w: item_count %d, want %d", ErrInvariant, c.ItemCount, count)
	}
	if c.Total != total {
		return fmt.Errorf("%w: total %d, want %d", ErrInvariant, c.Total, total)
	}
	return nil
}

// Optimistic transitions. Each returns a new cart and leaves prev untouched.

func optimisticAdd(prev *Cart, variantID string, quantity int) *Cart {
	if prev == nil {
		return nil
	}
	next := prev.Clone()
	if i, ok := next.Find(variantID); ok {
		item := &next.Items[i]
		item.Quantity += quantity
		item.Subtotal = item.UnitPrice * int64(item.Quantity)
		next.Total += item.UnitPrice * int64(quantity)
	}
	// A new line's unit price is unknown until the server answers, so only
	// the count moves.
	next.ItemCount += quantity
	return next
}

func optimisticRemove(prev *Cart, variantID string) *Cart {
	i, ok := prev.Find(variantID)
	if !ok {
		return prev
	}
	next := prev.Clone()
	removed := next.Items[i]
	next.Items = append(next.Items[:i], next.Items[i+1:]...)
	next.ItemCount -= removed.Quantity
	next.Total -= removed.Subtotal
	return next
}

func optimisticUpdate(prev *Cart, variantID string, quantity int) *Cart {
	i, ok := prev.Find(variantID)
	if !ok {
		return prev
	}
	next := prev.Clone()
	item := &next.Items[i]
	delta := quantity - item.Quantity
	item.Quantity = quantity
	item.Subtotal = item.UnitPrice * int64(quantity)
	next.ItemCount += delta
	next.Total += item.UnitPrice * int64(delta)
	return next
}

func optimisticClear(prev *Cart) *Cart {
	if prev == nil {
		return nil
	}
	next := prev.Clone()
	next.Items = []CartItem{}
	next.ItemCount = 0
	next.Total = 0
	return next
}
