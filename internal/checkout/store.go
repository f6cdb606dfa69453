// Package checkout drives the checkout flow from shipping address to a
// placed order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/ec-storefront-client/internal/apiclient"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Step string

const (
	StepShipping Step = "shipping"
	StepReview   Step = "review"
	StepComplete Step = "complete"
)

const MsgOrderFailed = "Failed to create order"

var (
	ErrAddressRequired = errors.New("shipping address is required")
	ErrInvalidStep     = errors.New("invalid checkout step transition")
	ErrSubmitting      = errors.New("order is already being submitted")
)

// validTransitions lists the steps a user can move to by navigation.
// Complete is only reached by submitting an order.
var validTransitions = map[Step][]Step{
	StepShipping: {StepReview},
	StepReview:   {StepShipping},
	StepComplete: {StepShipping},
}

type API interface {
	Post(ctx context.Context, path string, body, out any, opts ...apiclient.RequestOption) error
}

type State struct {
	Step            Step
	ShippingAddress *ShippingAddress
	Order           *Order
	IsSubmitting    bool
	Error           string
	IdempotencyKey  string
}

type Store struct {
	api    API
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

type Option func(*Store)

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:    api,
		logger: zap.NewNop(),
		state: State{
			Step:           StepShipping,
			IdempotencyKey: uuid.NewString(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("checkout")
	return s
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Step
}

// SetStep navigates between steps.
func (s *Store) SetStep(step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if step == s.state.Step {
		return nil
	}
	if !canTransition(s.state.Step, step) {
		return fmt.Errorf("%w: cannot go from %s to %s", ErrInvalidStep, s.state.Step, step)
	}
	if step == StepReview && s.state.ShippingAddress == nil {
		return ErrAddressRequired
	}
	s.state.Step = step
	return nil
}

func canTransition(from, to Step) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetShippingAddress records the address and moves to review.
func (s *Store) SetShippingAddress(addr ShippingAddress) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.ShippingAddress = &addr
	s.state.Step = StepReview
	return nil
}

// SubmitOrder places the order for the current cart. A failed submit keeps
// the idempotency key, so retrying cannot create a second order.
func (s *Store) SubmitOrder(ctx context.Context, notes string) (*Order, error) {
	s.mu.Lock()
	if s.state.ShippingAddress == nil {
		s.mu.Unlock()
		return nil, ErrAddressRequired
	}
	if s.state.IsSubmitting {
		s.mu.Unlock()
		return nil, ErrSubmitting
	}
	req := orderRequest{
		IdempotencyKey:  s.state.IdempotencyKey,
		ShippingAddress: *s.state.ShippingAddress,
		Notes:           notes,
	}
	s.state.IsSubmitting = true
	s.state.Error = ""
	s.mu.Unlock()

	var order Order
	err := s.api.Post(ctx, "/orders", req, &order)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsSubmitting = false
	if err != nil {
		msg := apiclient.Message(err, MsgOrderFailed)
		s.state.Error = msg
		s.logger.Warn("order submission failed",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	s.state.Order = &order
	s.state.Step = StepComplete
	s.logger.Info("order placed",
		zap.String("order_number", order.OrderNumber),
		zap.Int64("total_cents", order.Total),
	)
	return &order, nil
}

// Reset starts a fresh checkout with a new idempotency key.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{
		Step:           StepShipping,
		IdempotencyKey: uuid.NewString(),
	}
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Error = ""
}

// NewIdempotencyKey replaces the key. Only call it when the previous attempt
// is known not to have created an order.
func (s *Store) NewIdempotencyKey() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IdempotencyKey = uuid.NewString()
}
