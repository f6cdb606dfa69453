package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ec-storefront-client/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSink records every batch it is given.
type fakeSink struct {
	mu      sync.Mutex
	batches [][]Event
	err     error
	closed  bool
}

func (s *fakeSink) Send(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, events)
	return s.err
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func (s *fakeSink) sent() int {
	n := 0
	for _, b := range s.Batches() {
		n += len(b)
	}
	return n
}

func newTestTracker(t *testing.T, sink Sink, opts ...Option) *Tracker {
	t.Helper()
	tr, err := NewTracker(context.Background(), sink, storage.NewMemoryStorage(), opts...)
	require.NoError(t, err)
	return tr
}

func TestTracker_SessionIDPersisted(t *testing.T) {
	mem := storage.NewMemoryStorage()
	ctx := context.Background()

	first, err := NewTracker(ctx, &fakeSink{}, mem)
	require.NoError(t, err)
	second, err := NewTracker(ctx, &fakeSink{}, mem)
	require.NoError(t, err)

	assert.NotEmpty(t, first.SessionID())
	assert.Equal(t, first.SessionID(), second.SessionID())

	stored, found, err := mem.Get(ctx, SessionKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, first.SessionID(), stored)
}

func TestTracker_FlushesFullBatch(t *testing.T) {
	sink := &fakeSink{}
	tr := newTestTracker(t, sink, WithFlushInterval(time.Hour))

	for i := 0; i < DefaultBatchSize-1; i++ {
		tr.Track(EventViewHomepage, nil)
	}
	assert.Empty(t, sink.Batches())
	assert.Equal(t, DefaultBatchSize-1, tr.Pending())

	tr.Track(EventViewHomepage, nil)
	require.Eventually(t, func() bool { return len(sink.Batches()) == 1 }, time.Second, time.Millisecond)
	assert.Len(t, sink.Batches()[0], DefaultBatchSize)
	assert.Zero(t, tr.Pending())
}

func TestTracker_FlushesOnInterval(t *testing.T) {
	sink := &fakeSink{}
	tr := newTestTracker(t, sink, WithFlushInterval(20*time.Millisecond))

	tr.SignIn()
	tr.ViewCart(2, 4998)

	require.Eventually(t, func() bool { return sink.sent() == 2 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sink.Batches(), 1)
}

func TestTracker_CloseFlushesAndClosesSink(t *testing.T) {
	sink := &fakeSink{}
	tr := newTestTracker(t, sink, WithFlushInterval(time.Hour), WithBatchSize(3))

	for i := 0; i < 7; i++ {
		tr.Search("boots", i)
	}
	require.NoError(t, tr.Close(context.Background()))

	assert.Equal(t, 7, sink.sent())
	assert.True(t, sink.closed)

	tr.SignOut()
	assert.Zero(t, tr.Pending())
	assert.Equal(t, 7, sink.sent())
}

func TestTracker_SinkErrorsAreSwallowed(t *testing.T) {
	sink := &fakeSink{err: errors.New("backend down")}
	tr := newTestTracker(t, sink)

	tr.SignUp()
	tr.Flush(context.Background())

	assert.Len(t, sink.Batches(), 1)
	assert.Zero(t, tr.Pending())
}

func TestTracker_EventFields(t *testing.T) {
	sink := &fakeSink{}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := newTestTracker(t, sink,
		withClock(func() time.Time { return at }),
		WithUserAgent("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)"),
	)

	tr.AddToCart("prod-ball", "var-ball-5", 2, 1999)
	tr.PageView("/products/match-ball")
	tr.Flush(context.Background())

	batches := sink.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0], 2)

	add := batches[0][0]
	assert.Equal(t, EventAddToCart, add.EventName)
	assert.Equal(t, tr.SessionID(), add.SessionID)
	assert.Equal(t, TrafficMobile, add.TrafficSource)
	assert.Equal(t, at, add.EventTime)
	assert.NotEmpty(t, add.EventID)
	assert.Equal(t, int64(1999), add.Metadata["price"])

	view := batches[0][1]
	assert.Equal(t, "/products/match-ball", view.Page)
	assert.NotEqual(t, add.EventID, view.EventID)
}

func TestTrafficSource(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Linux; Android 14)", TrafficMobile},
		{"Mozilla/5.0 (iPad; CPU OS 17_0)", TrafficMobile},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64)", TrafficDesktop},
		{"", TrafficDesktop},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TrafficSource(tt.ua), tt.ua)
	}
}
