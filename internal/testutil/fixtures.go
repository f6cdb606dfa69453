package testutil

import "time"

type user struct {
	ID       string
	Email    string
	Name     string
	Password string
	Role     string
	Created  time.Time
}

type variant struct {
	ID    string
	Size  string
	SKU   string
	Stock int
}

type product struct {
	ID         string
	Name       string
	Slug       string
	Brand      string
	CategoryID string
	PriceCents int64
	Featured   bool
	Variants   []variant
}

type category struct {
	ID   string
	Name string
	Slug string
}

type cartLine struct {
	ID        string
	ProductID string
	VariantID string
	Quantity  int
}

var fixtureTime = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

// Seeded catalog. Prices are chosen so dollar/cent conversion is exercised
// at non-trivial values.
func seedCategories() []category {
	return []category{
		{ID: "cat-boots", Name: "Football Boots", Slug: "football-boots"},
		{ID: "cat-balls", Name: "Balls", Slug: "balls"},
	}
}

func seedProducts() []product {
	return []product{
		{
			ID: "prod-predator", Name: "Predator Elite FG", Slug: "predator-elite-fg",
			Brand: "adidas", CategoryID: "cat-boots", PriceCents: 24999, Featured: true,
			Variants: []variant{
				{ID: "var-predator-9", Size: "9", SKU: "PRED-9", Stock: 5},
				{ID: "var-predator-10", Size: "10", SKU: "PRED-10", Stock: 3},
			},
		},
		{
			ID: "prod-copa", Name: "Copa Mundial", Slug: "copa-mundial",
			Brand: "adidas", CategoryID: "cat-boots", PriceCents: 14999,
			Variants: []variant{
				{ID: "var-copa-8", Size: "8", SKU: "COPA-8", Stock: 10},
			},
		},
		{
			ID: "prod-ball", Name: "Match Ball", Slug: "match-ball",
			Brand: "nike", CategoryID: "cat-balls", PriceCents: 1999, Featured: true,
			Variants: []variant{
				{ID: "var-ball-5", Size: "5", SKU: "BALL-5", Stock: 50},
			},
		},
	}
}
