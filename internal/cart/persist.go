package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/example/ec-storefront-client/internal/storage"
)

// PersistKey is the storage key of the saved cart.
const PersistKey = "footy-cart"

// persistedCart is the stored envelope. Version counts saves.
type persistedCart struct {
	Cart    *Cart     `json:"cart"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
}

// Persister keeps the last settled cart in durable storage so a restarted
// client can show it before the first fetch.
type Persister struct {
	storage storage.Storage
	key     string

	mu      sync.Mutex
	version int
}

func NewPersister(s storage.Storage) *Persister {
	return &Persister{storage: s, key: PersistKey}
}

// Save stores c; a nil cart is stored as null.
func (p *Persister) Save(ctx context.Context, c *Cart) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.version++
	data, err := json.Marshal(persistedCart{
		Cart:    c,
		Version: p.version,
		SavedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	return p.storage.Set(ctx, p.key, string(data))
}

// Load returns the saved cart, or nil when nothing was saved.
func (p *Persister) Load(ctx context.Context) (*Cart, error) {
	raw, found, err := p.storage.Get(ctx, p.key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	var saved persistedCart
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		return nil, fmt.Errorf("decode saved cart: %w", err)
	}

	p.mu.Lock()
	if saved.Version > p.version {
		p.version = saved.Version
	}
	p.mu.Unlock()
	return saved.Cart, nil
}
