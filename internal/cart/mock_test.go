package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/example/ec-storefront-client/internal/apiclient"
)

// apiCall records one call made to fakeAPI.
type apiCall struct {
	Method string
	Path   string
	Body   any
}

// fakeAPI is an in-memory cart backend working in cents. Responses are
// computed when a call arrives; a held call returns that response only
// after release.
type fakeAPI struct {
	mu     sync.Mutex
	prices map[string]int64
	items  []CartItem
	calls  []apiCall
	fail   []error
	holds  []chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		prices: map[string]int64{
			"var-a": 1999,
			"var-b": 4550,
			"var-c": 12000,
		},
	}
}

// seed puts quantity units of variantID in the server cart.
func (f *fakeAPI) seed(variantID string, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setLocked(variantID, quantity)
}

// failNext makes the next call return err.
func (f *fakeAPI) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = append(f.fail, err)
}

// holdNext parks the next call until the returned func is called.
func (f *fakeAPI) holdNext() func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.holds = append(f.holds, ch)
	return func() { close(ch) }
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]apiCall, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAPI) Get(ctx context.Context, path string, out any, _ ...apiclient.RequestOption) error {
	return f.do(ctx, http.MethodGet, path, nil, out)
}

func (f *fakeAPI) Post(ctx context.Context, path string, body, out any, _ ...apiclient.RequestOption) error {
	return f.do(ctx, http.MethodPost, path, body, out)
}

func (f *fakeAPI) Patch(ctx context.Context, path string, body, out any, _ ...apiclient.RequestOption) error {
	return f.do(ctx, http.MethodPatch, path, body, out)
}

func (f *fakeAPI) Delete(ctx context.Context, path string, out any, _ ...apiclient.RequestOption) error {
	return f.do(ctx, http.MethodDelete, path, nil, out)
}

func (f *fakeAPI) do(ctx context.Context, method, path string, body, out any) error {
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Path: path, Body: body})

	var hold chan struct{}
	if len(f.holds) > 0 {
		hold, f.holds = f.holds[0], f.holds[1:]
	}
	var err error
	if len(f.fail) > 0 {
		err, f.fail = f.fail[0], f.fail[1:]
	}
	var resp []byte
	if err == nil {
		resp, err = f.applyLocked(method, path, body)
	}
	f.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	return json.Unmarshal(resp, out)
}

func (f *fakeAPI) applyLocked(method, path string, body any) ([]byte, error) {
	switch {
	case method == http.MethodGet && path == "/cart":
	case method == http.MethodPost && path == "/cart/items":
		req := body.(addItemRequest)
		qty := req.Quantity
		for _, item := range f.items {
			if item.VariantID == req.VariantID {
				qty += item.Quantity
			}
		}
		f.setLocked(req.VariantID, qty)
	case method == http.MethodPatch && strings.HasPrefix(path, "/cart/items/"):
		variantID := strings.TrimPrefix(path, "/cart/items/")
		f.setLocked(variantID, body.(updateItemRequest).Quantity)
	case method == http.MethodDelete && strings.HasPrefix(path, "/cart/items/"):
		f.setLocked(strings.TrimPrefix(path, "/cart/items/"), 0)
	case method == http.MethodDelete && path == "/cart":
		f.items = nil
		return nil, nil
	default:
		return nil, &apiclient.APIError{StatusCode: http.StatusNotFound, Detail: "Not Found"}
	}
	return json.Marshal(f.cartLocked())
}

func (f *fakeAPI) setLocked(variantID string, quantity int) {
	for i, item := range f.items {
		if item.VariantID != variantID {
			continue
		}
		if quantity <= 0 {
			f.items = append(f.items[:i:i], f.items[i+1:]...)
			return
		}
		f.items[i].Quantity = quantity
		f.items[i].Subtotal = item.UnitPrice * int64(quantity)
		return
	}
	if quantity <= 0 {
		return
	}
	price := f.prices[variantID]
	f.items = append(f.items, CartItem{
		ID:        "item-" + variantID,
		ProductID: "prod-" + strings.TrimPrefix(variantID, "var-"),
		VariantID: variantID,
		Quantity:  quantity,
		UnitPrice: price,
		Subtotal:  price * int64(quantity),
	})
}

func (f *fakeAPI) cartLocked() *Cart {
	c := &Cart{ID: "cart-1", UserID: "user-1", Items: []CartItem{}}
	for _, item := range f.items {
		c.Items = append(c.Items, item)
		c.ItemCount += item.Quantity
		c.Total += item.Subtotal
	}
	return c
}

func apiError(status int, detail string) error {
	return fmt.Errorf("request failed: %w", &apiclient.APIError{StatusCode: status, Detail: detail})
}
