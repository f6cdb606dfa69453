// Package analytics batches clickstream events and ships them to a sink.
// Delivery is best effort: failures are logged and never reach callers.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/ec-storefront-client/internal/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second

	// SessionKey stores the analytics session id.
	SessionKey = "footy_analytics_session"

	sendTimeout = 10 * time.Second
)

type Tracker struct {
	sink          Sink
	logger        *zap.Logger
	sessionID     string
	trafficSource string
	batchSize     int
	interval      time.Duration
	now           func() time.Time

	mu       sync.Mutex
	queue    []Event
	timer    *time.Timer
	closed   bool
	inflight sync.WaitGroup
}

type Option func(*Tracker)

func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) { t.logger = l }
}

func WithBatchSize(n int) Option {
	return func(t *Tracker) { t.batchSize = n }
}

func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracker) { t.interval = d }
}

// WithUserAgent sets the traffic source from a user agent string.
func WithUserAgent(ua string) Option {
	return func(t *Tracker) { t.trafficSource = TrafficSource(ua) }
}

func withClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker loads the session id from st, creating one on first use.
func NewTracker(ctx context.Context, sink Sink, st storage.Storage, opts ...Option) (*Tracker, error) {
	t := &Tracker{
		sink:          sink,
		logger:        zap.NewNop(),
		trafficSource: TrafficDesktop,
		batchSize:     DefaultBatchSize,
		interval:      DefaultFlushInterval,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.Named("analytics")

	id, err := sessionID(ctx, st)
	if err != nil {
		return nil, err
	}
	t.sessionID = id
	return t, nil
}

func sessionID(ctx context.Context, st storage.Storage) (string, error) {
	id, found, err := st.Get(ctx, SessionKey)
	if err != nil {
		return "", fmt.Errorf("load analytics session: %w", err)
	}
	if found && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	if err := st.Set(ctx, SessionKey, id); err != nil {
		return "", fmt.Errorf("store analytics session: %w", err)
	}
	return id, nil
}

func (t *Tracker) SessionID() string {
	return t.sessionID
}

// Track queues an event. A full batch is sent right away; otherwise a flush
// is scheduled for the end of the interval.
func (t *Tracker) Track(name string, metadata map[string]any) {
	t.TrackPage(name, "", "", metadata)
}

// TrackPage is Track with the page and referrer recorded.
func (t *Tracker) TrackPage(name, page, referrer string, metadata map[string]any) {
	e := Event{
		EventID:       uuid.NewString(),
		EventName:     name,
		SessionID:     t.sessionID,
		EventTime:     t.now().UTC(),
		TrafficSource: t.trafficSource,
		Page:          page,
		Referrer:      referrer,
		Metadata:      metadata,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		t.logger.Debug("tracker closed, dropping event", zap.String("event", name))
		return
	}

	t.queue = append(t.queue, e)
	if len(t.queue) >= t.batchSize {
		batch := t.takeLocked()
		t.inflight.Add(1)
		go func() {
			defer t.inflight.Done()
			t.send(batch)
		}()
		return
	}
	if t.timer == nil {
		t.inflight.Add(1)
		t.timer = time.AfterFunc(t.interval, func() {
			defer t.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			t.Flush(ctx)
		})
	}
}

// Pending returns the number of queued events.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Flush sends queued events now and waits for the send.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	batch := t.takeLocked()
	t.mu.Unlock()

	t.sendCtx(ctx, batch)
}

// Close flushes what is queued, waits for in-flight batches and closes the
// sink. Events tracked afterwards are dropped.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	batch := t.takeLocked()
	t.mu.Unlock()

	t.sendCtx(ctx, batch)
	t.inflight.Wait()
	return t.sink.Close()
}

// takeLocked empties the queue and cancels any scheduled flush.
func (t *Tracker) takeLocked() []Event {
	if t.timer != nil {
		if t.timer.Stop() {
			t.inflight.Done()
		}
		t.timer = nil
	}
	batch := t.queue
	t.queue = nil
	return batch
}

func (t *Tracker) send(batch []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	t.sendCtx(ctx, batch)
}

func (t *Tracker) sendCtx(ctx context.Context, batch []Event) {
	if len(batch) == 0 {
		return
	}
	if err := t.sink.Send(ctx, batch); err != nil {
		t.logger.Warn("failed to send analytics events", zap.Int("count", len(batch)), zap.Error(err))
		return
	}
	t.logger.Debug("analytics events sent", zap.Int("count", len(batch)))
}

// Named events. Money arguments are in cents.

func (t *Tracker) PageView(page string) {
	t.TrackPage(EventPageView, page, "", map[string]any{"page_name": page})
}

func (t *Tracker) ViewHomepage() { t.Track(EventViewHomepage, nil) }

func (t *Tracker) ViewCategory(categoryID, categorySlug string) {
	t.Track(EventViewCategory, map[string]any{"category_id": categoryID, "category_slug": categorySlug})
}

func (t *Tracker) Search(query string, results int) {
	t.Track(EventSearch, map[string]any{"query": query, "results_count": results})
}

func (t *Tracker) ViewItem(productID, productSlug string, price int64) {
	t.Track(EventViewItem, map[string]any{"product_id": productID, "product_slug": productSlug, "price": price})
}

func (t *Tracker) AddToCart(productID, variantID string, quantity int, price int64) {
	t.Track(EventAddToCart, map[string]any{
		"product_id": productID,
		"variant_id": variantID,
		"quantity":   quantity,
		"price":      price,
	})
}

func (t *Tracker) RemoveFromCart(productID, variantID string, quantity int) {
	t.Track(EventRemoveFromCart, map[string]any{"product_id": productID, "variant_id": variantID, "quantity": quantity})
}

func (t *Tracker) ViewCart(itemCount int, total int64) {
	t.Track(EventViewCart, map[string]any{"item_count": itemCount, "total": total})
}

func (t *Tracker) BeginCheckout(itemCount int, total int64) {
	t.Track(EventBeginCheckout, map[string]any{"item_count": itemCount, "total": total})
}

func (t *Tracker) CheckoutStep(step string, number int) {
	t.Track(EventCheckoutStep, map[string]any{"step": step, "step_number": number})
}

func (t *Tracker) Purchase(orderID, orderNumber string, total int64, itemCount int) {
	t.Track(EventPurchase, map[string]any{
		"order_id":     orderID,
		"order_number": orderNumber,
		"total":        total,
		"item_count":   itemCount,
	})
}

func (t *Tracker) CheckoutDropoff(step, reason string) {
	t.Track(EventCheckoutDropoff, map[string]any{"step": step, "reason": reason})
}

func (t *Tracker) SignUp()  { t.Track(EventSignUp, nil) }
func (t *Tracker) SignIn()  { t.Track(EventSignIn, nil) }
func (t *Tracker) SignOut() { t.Track(EventSignOut, nil) }
