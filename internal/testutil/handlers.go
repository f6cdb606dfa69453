package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	freeShippingCents = 10000
	shippingCents     = 999
	taxRate           = 0.08
)

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func dollars(cents int64) float64 {
	return float64(cents) / 100
}

func parseDollars(s string) (int64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * 100)), true
}

// Auth

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[req.Email]
	if !ok || u.Password != req.Password {
		respondError(w, "Incorrect email or password", http.StatusUnauthorized)
		return
	}
	b.respondAuthLocked(w, http.StatusOK, u)
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": []map[string]any{{
				"loc":  []string{"body", "password"},
				"msg":  "String should have at least 8 characters",
				"type": "string_too_short",
			}},
		})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[req.Email]; exists {
		respondError(w, "Email already registered", http.StatusBadRequest)
		return
	}
	u := &user{
		ID:       uuid.NewString(),
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     "user",
		Created:  time.Now().UTC(),
	}
	b.users[u.Email] = u
	b.respondAuthLocked(w, http.StatusCreated, u)
}

func (b *Backend) respondAuthLocked(w http.ResponseWriter, status int, u *user) {
	tokens, err := b.issueLocked(u)
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, status, map[string]any{
		"user": renderUser(u),
		"tokens": map[string]any{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"token_type":    tokens.TokenType,
		},
	})
}

func (b *Backend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	email, ok := b.refresh[req.RefreshToken]
	if !ok {
		respondError(w, "Invalid refresh token", http.StatusUnauthorized)
		return
	}
	delete(b.refresh, req.RefreshToken)

	tokens, err := b.issueLocked(b.users[email])
	if err != nil {
		respondError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, tokens)
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, renderUser(userFromContext(r.Context())))
}

func renderUser(u *user) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"name":        u.Name,
		"role":        u.Role,
		"is_active":   true,
		"is_verified": true,
		"created_at":  u.Created,
		"updated_at":  u.Created,
	}
}

// Catalog

func (b *Backend) handleListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	if pageSize < 1 {
		pageSize = 20
	}
	minPrice, hasMin := parseDollars(q.Get("min_price"))
	maxPrice, hasMax := parseDollars(q.Get("max_price"))
	search := strings.ToLower(q.Get("search"))

	b.mu.Lock()
	var matched []product
	for _, p := range b.products {
		switch {
		case search != "" && !strings.Contains(strings.ToLower(p.Name), search):
			continue
		case q.Get("category_id") != "" && p.CategoryID != q.Get("category_id"):
			continue
		case q.Get("brand") != "" && p.Brand != q.Get("brand"):
			continue
		case q.Get("is_featured") == "true" && !p.Featured:
			continue
		case hasMin && p.PriceCents < minPrice:
			continue
		case hasMax && p.PriceCents > maxPrice:
			continue
		}
		matched = append(matched, p)
	}
	categories := b.categories
	b.mu.Unlock()

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}
	items := make([]map[string]any, 0, end-start)
	for _, p := range matched[start:end] {
		items = append(items, renderProduct(p, categories))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"items":     items,
		"total":     len(matched),
		"page":      page,
		"page_size": pageSize,
		"pages":     (len(matched) + pageSize - 1) / pageSize,
	})
}

func (b *Backend) handleFeatured(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 8
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	items := []map[string]any{}
	for _, p := range b.products {
		if p.Featured && len(items) < limit {
			items = append(items, renderProduct(p, b.categories))
		}
	}
	respondJSON(w, http.StatusOK, items)
}

func (b *Backend) handleProduct(w http.ResponseWriter, r *http.Request) {
	b.respondProduct(w, func(p product) bool { return p.ID == r.PathValue("id") })
}

func (b *Backend) handleProductBySlug(w http.ResponseWriter, r *http.Request) {
	b.respondProduct(w, func(p product) bool { return p.Slug == r.PathValue("slug") })
}

func (b *Backend) respondProduct(w http.ResponseWriter, match func(product) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.products {
		if match(p) {
			respondJSON(w, http.StatusOK, renderProduct(p, b.categories))
			return
		}
	}
	respondError(w, "Product not found", http.StatusNotFound)
}

func (b *Backend) handleCategories(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, 0, len(b.categories))
	for _, c := range b.categories {
		out = append(out, renderCategory(c))
	}
	respondJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCategory(w http.ResponseWriter, r *http.Request) {
	b.respondCategory(w, func(c category) bool { return c.ID == r.PathValue("id") })
}

func (b *Backend) handleCategoryBySlug(w http.ResponseWriter, r *http.Request) {
	b.respondCategory(w, func(c category) bool { return c.Slug == r.PathValue("slug") })
}

func (b *Backend) respondCategory(w http.ResponseWriter, match func(category) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.categories {
		if match(c) {
			respondJSON(w, http.StatusOK, renderCategory(c))
			return
		}
	}
	respondError(w, "Category not found", http.StatusNotFound)
}

func renderCategory(c category) map[string]any {
	return map[string]any{
		"id":         c.ID,
		"name":       c.Name,
		"slug":       c.Slug,
		"created_at": fixtureTime,
		"updated_at": fixtureTime,
	}
}

func renderVariant(productID string, v variant) map[string]any {
	return map[string]any{
		"id":         v.ID,
		"product_id": productID,
		"size":       v.Size,
		"sku":        v.SKU,
		"stock":      v.Stock,
		"created_at": fixtureTime,
		"updated_at": fixtureTime,
	}
}

func renderProduct(p product, categories []category) map[string]any {
	variants := make([]map[string]any, 0, len(p.Variants))
	sizes := make([]string, 0, len(p.Variants))
	inStock := false
	for _, v := range p.Variants {
		variants = append(variants, renderVariant(p.ID, v))
		if v.Stock > 0 {
			sizes = append(sizes, v.Size)
			inStock = true
		}
	}
	out := map[string]any{
		"id":              p.ID,
		"name":            p.Name,
		"slug":            p.Slug,
		"price":           dollars(p.PriceCents),
		"images":          []string{},
		"brand":           p.Brand,
		"is_active":       true,
		"is_featured":     p.Featured,
		"category_id":     p.CategoryID,
		"variants":        variants,
		"in_stock":        inStock,
		"available_sizes": sizes,
		"created_at":      fixtureTime,
		"updated_at":      fixtureTime,
	}
	for _, c := range categories {
		if c.ID == p.CategoryID {
			out["category"] = renderCategory(c)
		}
	}
	return out
}

// Cart

func (b *Backend) findVariantLocked(variantID string) (product, variant, bool) {
	for _, p := range b.products {
		for _, v := range p.Variants {
			if v.ID == variantID {
				return p, v, true
			}
		}
	}
	return product{}, variant{}, false
}

func (b *Backend) renderCartLocked(u *user) map[string]any {
	items := make([]map[string]any, 0, len(b.cart))
	var total int64
	count := 0
	for _, line := range b.cart {
		p, v, _ := b.findVariantLocked(line.VariantID)
		subtotal := p.PriceCents * int64(line.Quantity)
		total += subtotal
		count += line.Quantity
		items = append(items, map[string]any{
			"id":         line.ID,
			"product_id": line.ProductID,
			"variant_id": line.VariantID,
			"quantity":   line.Quantity,
			"unit_price": dollars(p.PriceCents),
			"subtotal":   dollars(subtotal),
			"product":    renderProduct(p, b.categories),
			"variant":    renderVariant(p.ID, v),
			"created_at": fixtureTime,
			"updated_at": fixtureTime,
		})
	}
	return map[string]any{
		"id":         b.cartID,
		"user_id":    u.ID,
		"items":      items,
		"total":      dollars(total),
		"item_count": count,
		"created_at": fixtureTime,
		"updated_at": time.Now().UTC(),
	}
}

func (b *Backend) handleGetCart(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	respondJSON(w, http.StatusOK, b.renderCartLocked(userFromContext(r.Context())))
}

func (b *Backend) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID string `json:"product_id"`
		VariantID string `json:"variant_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Quantity < 1 {
		req.Quantity = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	p, v, ok := b.findVariantLocked(req.VariantID)
	if !ok || p.ID != req.ProductID {
		respondError(w, "Product variant not found", http.StatusNotFound)
		return
	}

	for i := range b.cart {
		if b.cart[i].VariantID == req.VariantID {
			if b.cart[i].Quantity+req.Quantity > v.Stock {
				respondError(w, fmt.Sprintf("Only %d items available", v.Stock), http.StatusBadRequest)
				return
			}
			b.cart[i].Quantity += req.Quantity
			respondJSON(w, http.StatusOK, b.renderCartLocked(userFromContext(r.Context())))
			return
		}
	}
	if req.Quantity > v.Stock {
		respondError(w, fmt.Sprintf("Only %d items available", v.Stock), http.StatusBadRequest)
		return
	}
	b.cart = append(b.cart, cartLine{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		VariantID: v.ID,
		Quantity:  req.Quantity,
	})
	respondJSON(w, http.StatusOK, b.renderCartLocked(userFromContext(r.Context())))
}

func (b *Backend) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	variantID := r.PathValue("variant")
	for i := range b.cart {
		if b.cart[i].VariantID == variantID {
			b.cart[i].Quantity = req.Quantity
			respondJSON(w, http.StatusOK, b.renderCartLocked(userFromContext(r.Context())))
			return
		}
	}
	respondError(w, "Item not in cart", http.StatusNotFound)
}

func (b *Backend) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	variantID := r.PathValue("variant")
	for i := range b.cart {
		if b.cart[i].VariantID == variantID {
			b.cart = append(b.cart[:i], b.cart[i+1:]...)
			respondJSON(w, http.StatusOK, b.renderCartLocked(userFromContext(r.Context())))
			return
		}
	}
	respondError(w, "Item not in cart", http.StatusNotFound)
}

func (b *Backend) handleClearCart(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.cart = nil
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// Orders

func (b *Backend) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IdempotencyKey  string         `json:"idempotency_key"`
		ShippingAddress map[string]any `json:"shipping_address"`
		Notes           string         `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		respondError(w, "idempotency_key is required", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.orders[req.IdempotencyKey]; ok {
		respondJSON(w, http.StatusOK, existing)
		return
	}
	if len(b.cart) == 0 {
		respondError(w, "Cart is empty", http.StatusBadRequest)
		return
	}

	u := userFromContext(r.Context())
	now := time.Now().UTC()
	var subtotal int64
	items := make([]map[string]any, 0, len(b.cart))
	for _, line := range b.cart {
		p, v, _ := b.findVariantLocked(line.VariantID)
		lineTotal := p.PriceCents * int64(line.Quantity)
		subtotal += lineTotal
		items = append(items, map[string]any{
			"id":           uuid.NewString(),
			"product_id":   p.ID,
			"variant_id":   v.ID,
			"product_name": p.Name,
			"size":         v.Size,
			"quantity":     line.Quantity,
			"unit_price":   dollars(p.PriceCents),
			"subtotal":     dollars(lineTotal),
			"created_at":   now,
			"updated_at":   now,
		})
	}
	shipping := int64(shippingCents)
	if subtotal >= freeShippingCents {
		shipping = 0
	}
	tax := int64(math.Round(float64(subtotal) * taxRate))

	b.orderSeq++
	order := map[string]any{
		"id":               uuid.NewString(),
		"order_number":     fmt.Sprintf("FB-%06d", b.orderSeq),
		"user_id":          u.ID,
		"status":           "pending",
		"subtotal":         dollars(subtotal),
		"shipping_cost":    dollars(shipping),
		"tax":              dollars(tax),
		"total":            dollars(subtotal + shipping + tax),
		"shipping_address": req.ShippingAddress,
		"notes":            req.Notes,
		"items":            items,
		"created_at":       now,
		"updated_at":       now,
	}
	b.orders[req.IdempotencyKey] = order
	b.cart = nil
	respondJSON(w, http.StatusCreated, order)
}

// Analytics

func (b *Backend) handleEvents(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	created, duplicates, errs := 0, 0, 0
	for _, e := range req.Events {
		id, _ := e["event_id"].(string)
		switch {
		case id == "":
			errs++
		case b.events[id] != nil:
			duplicates++
		default:
			b.events[id] = e
			created++
		}
	}
	respondJSON(w, http.StatusCreated, map[string]int{
		"created":    created,
		"duplicates": duplicates,
		"errors":     errs,
	})
}
