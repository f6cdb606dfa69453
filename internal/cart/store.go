// Package cart keeps the client's view of the shopping cart. Mutations are
// applied locally first and then reconciled with the server's answer, or
// rolled back when the server refuses.
package cart

import (
	"context"
	"net/url"
	"sync"

	"github.com/example/ec-storefront-client/internal/apiclient"
	"go.uber.org/zap"
)

// Messages shown when the backend gives no detail.
const (
	MsgFetchFailed  = "Failed to fetch cart"
	MsgAddFailed    = "Failed to add item to cart"
	MsgRemoveFailed = "Failed to remove item from cart"
	MsgUpdateFailed = "Failed to update item quantity"
	MsgClearFailed  = "Failed to clear cart"
)

// API is the subset of the API client the cart store needs.
type API interface {
	Get(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	Patch(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
	Delete(ctx context.Context, path string, out any, opts ...apiclient.RequestOption) error
}

// State is what subscribers observe. Cart is nil until the first fetch.
type State struct {
	Cart       *Cart
	IsLoading  bool
	IsUpdating bool
	Error      string
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

// Store is safe for concurrent use. Each Store is independent; tests and
// callers construct their own.
type Store struct {
	api       API
	logger    *zap.Logger
	persister *Persister
	guard     bool

	mu        sync.Mutex
	state     State
	seq       uint64
	listeners map[int]func(State)
	nextID    int
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPersister saves every settled cart.
func WithPersister(p *Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithStaleResponseGuard numbers every request and drops responses and
// rollbacks from requests that a newer one has superseded. Without it the
// last response to arrive wins.
func WithStaleResponseGuard() Option {
	return func(s *Store) { s.guard = true }
}

func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:       api,
		logger:    zap.NewNop(),
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("cart")
	return s
}

// Subscribe registers fn to receive every state change, optimistic ones
// included. fn runs on the goroutine that caused the change and must not
// modify the state it is given.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Cart = st.Cart.Clone()
	return st
}

// Snapshot returns a copy of the current cart, or nil.
func (s *Store) Snapshot() *Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Cart.Clone()
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Cart == nil {
		return 0
	}
	return s.state.Cart.ItemCount
}

// Total returns the cart total in cents.
func (s *Store) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Cart == nil {
		return 0
	}
	return s.state.Cart.Total
}

func (s *Store) IsInCart(variantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.Cart.Find(variantID)
	return ok
}

// Error returns the message of the last failure, or "".
func (s *Store) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Error
}

func (s *Store) ClearError() {
	s.update(func(st *State) { st.Error = "" })
}

// Fetch loads the server cart.
func (s *Store) Fetch(ctx context.Context) error {
	seq := s.begin(func(st *State) {
		st.IsLoading = true
		st.Error = ""
	})

	var c Cart
	err := s.api.Get(ctx, "/cart", &c)

	s.settle(seq, "fetch", func(st *State) {
		st.IsLoading = false
		if err != nil {
			st.Error = apiclient.Message(err, MsgFetchFailed)
			return
		}
		st.Cart = &c
	})
	return err
}

// AddItem adds quantity units of a variant. Quantities below one add one.
func (s *Store) AddItem(ctx context.Context, productID, variantID string, quantity int) error {
	if quantity < 1 {
		quantity = 1
	}
	return s.mutate(ctx, "add", MsgAddFailed,
		func(prev *Cart) *Cart { return optimisticAdd(prev, variantID, quantity) },
		func(ctx context.Context) (*Cart, error) {
			var c Cart
			req := addItemRequest{ProductID: productID, VariantID: variantID, Quantity: quantity}
			if err := s.api.Post(ctx, "/cart/items", req, &c); err != nil {
				return nil, err
			}
			return &c, nil
		},
	)
}

// RemoveItem drops the line for variantID.
func (s *Store) RemoveItem(ctx context.Context, variantID string) error {
	return s.mutate(ctx, "remove", MsgRemoveFailed,
		func(prev *Cart) *Cart { return optimisticRemove(prev, variantID) },
		func(ctx context.Context) (*Cart, error) {
			var c Cart
			if err := s.api.Delete(ctx, itemPath(variantID), &c); err != nil {
				return nil, err
			}
			return &c, nil
		},
	)
}

// UpdateQuantity sets the quantity of a line. Zero or less removes it.
func (s *Store) UpdateQuantity(ctx context.Context, variantID string, quantity int) error {
	if quantity <= 0 {
		return s.RemoveItem(ctx, variantID)
	}
	return s.mutate(ctx, "update", MsgUpdateFailed,
		func(prev *Cart) *Cart { return optimisticUpdate(prev, variantID, quantity) },
		func(ctx context.Context) (*Cart, error) {
			var c Cart
			if err := s.api.Patch(ctx, itemPath(variantID), updateItemRequest{Quantity: quantity}, &c); err != nil {
				return nil, err
			}
			return &c, nil
		},
	)
}

// Clear empties the server cart. On success the local cart is nil.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clear", MsgClearFailed,
		optimisticClear,
		func(ctx context.Context) (*Cart, error) {
			if err := s.api.Delete(ctx, "/cart", nil); err != nil {
				return nil, err
			}
			return nil, nil
		},
	)
}

// Restore loads the persisted cart, if any, without touching the network.
func (s *Store) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	c, err := s.persister.Load(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return nil
	}
	s.update(func(st *State) { st.Cart = c })
	return nil
}

func itemPath(variantID string) string {
	return "/cart/items/" + url.PathEscape(variantID)
}

// mutate runs one optimistic mutation: snapshot, apply locally, call the
// server, then adopt its cart or restore the snapshot.
func (s *Store) mutate(
	ctx context.Context,
	op, fallback string,
	optimistic func(prev *Cart) *Cart,
	call func(ctx context.Context) (*Cart, error),
) error {
	var previous *Cart
	seq := s.begin(func(st *State) {
		previous = st.Cart
		st.IsUpdating = true
		st.Error = ""
		st.Cart = optimistic(previous)
	})

	c, err := call(ctx)

	s.settle(seq, op, func(st *State) {
		st.IsUpdating = false
		if err != nil {
			st.Cart = previous
			st.Error = apiclient.Message(err, fallback)
			return
		}
		st.Cart = c
	})
	if err != nil {
		s.logger.Debug("cart mutation rolled back", zap.String("op", op), zap.Error(err))
	}
	return err
}

// begin applies fn and returns the sequence number of the new request.
func (s *Store) begin(fn func(st *State)) uint64 {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	fn(&s.state)
	snapshot, listeners := s.publishLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
	return seq
}

// settle applies fn unless the guard is on and seq has been superseded.
func (s *Store) settle(seq uint64, op string, fn func(st *State)) {
	s.mu.Lock()
	if s.guard && seq != s.seq {
		s.mu.Unlock()
		s.logger.Debug("dropping stale cart response", zap.String("op", op), zap.Uint64("seq", seq))
		return
	}
	fn(&s.state)
	snapshot, listeners := s.publishLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
	s.persist(snapshot.Cart)
}

func (s *Store) update(fn func(st *State)) {
	s.mu.Lock()
	fn(&s.state)
	snapshot, listeners := s.publishLocked()
	s.mu.Unlock()

	notify(listeners, snapshot)
}

func (s *Store) publishLocked() (State, []func(State)) {
	snapshot := s.state
	snapshot.Cart = snapshot.Cart.Clone()
	listeners := make([]func(State), 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	return snapshot, listeners
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}

func (s *Store) persist(c *Cart) {
	if s.persister == nil {
		return
	}
	// Persisting is best effort; the server cart stays authoritative.
	if err := s.persister.Save(context.Background(), c); err != nil {
		s.logger.Warn("failed to persist cart", zap.Error(err))
	}
}
