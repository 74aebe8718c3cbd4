package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotelops/internal/adapters/memory"
	"hotelops/internal/domain"
)

type recorder struct {
	mu    sync.Mutex
	snaps [][]domain.Document
	ch    chan struct{}
}

func newRecorder() *recorder { return &recorder{ch: make(chan struct{}, 64)} }

func (r *recorder) on(docs []domain.Document) {
	r.mu.Lock()
	r.snaps = append(r.snaps, docs)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) last() []domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
	}
}

func TestSubscribe_InitialAndChanges(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	s.Put("rooms", "r1", map[string]any{"number": "101"})

	rec := newRecorder()
	cancel, err := s.Subscribe(ctx, "rooms", rec.on, nil)
	require.NoError(t, err)
	defer cancel()

	rec.wait(t)
	require.Len(t, rec.last(), 1)
	assert.Equal(t, "r1", rec.last()[0].ID)

	id, err := s.AddDocument(ctx, "rooms", map[string]any{"number": "102"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rec.wait(t)
	docs := rec.last()
	require.Len(t, docs, 2)
	assert.Equal(t, "r1", docs[0].ID, "insertion order is kept")
	assert.Equal(t, id, docs[1].ID)
}

func TestUpdateDocument_MergesAndReportsMissing(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	s.Put("rooms", "r1", map[string]any{"number": "101", "status": "available"})

	require.NoError(t, s.UpdateDocument(ctx, "rooms", "r1", map[string]any{"status": "occupied"}))
	docs, err := s.Query(ctx, "rooms", domain.Filter{IDs: []string{"r1"}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "101", docs[0].Fields["number"])
	assert.Equal(t, "occupied", docs[0].Fields["status"])

	err = s.UpdateDocument(ctx, "rooms", "nope", map[string]any{"status": "occupied"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestQuery_ReturnsCopies(t *testing.T) {
	s := memory.New()
	s.Put("bookings", "b1", map[string]any{"customer": map[string]any{"name": "Ann"}})

	docs, err := s.Query(context.Background(), "bookings", domain.Filter{})
	require.NoError(t, err)
	docs[0].Fields["customer"].(map[string]any)["name"] = "Bob"

	again, _ := s.Query(context.Background(), "bookings", domain.Filter{})
	assert.Equal(t, "Ann", again[0].Fields["customer"].(map[string]any)["name"])
}

func TestCancel_IsIdempotentAndStopsDelivery(t *testing.T) {
	s := memory.New()
	rec := newRecorder()
	cancel, err := s.Subscribe(context.Background(), "rooms", rec.on, nil)
	require.NoError(t, err)
	rec.wait(t)

	cancel()
	cancel()
	assert.Equal(t, 0, s.Subscribers("rooms"))

	s.Put("rooms", "r1", map[string]any{})
	select {
	case <-rec.ch:
		t.Fatal("delivered after cancel")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHold_CoalescesUntilRelease(t *testing.T) {
	s := memory.New()
	rec := newRecorder()
	cancel, err := s.Subscribe(context.Background(), "rooms", rec.on, nil)
	require.NoError(t, err)
	defer cancel()
	rec.wait(t)

	s.Hold("rooms", true)
	s.Put("rooms", "r1", map[string]any{})
	s.Put("rooms", "r2", map[string]any{})
	select {
	case <-rec.ch:
		t.Fatal("delivered while held")
	case <-time.After(50 * time.Millisecond):
	}

	s.Hold("rooms", false)
	rec.wait(t)
	assert.Len(t, rec.last(), 2)
}

func TestFaults(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	boom := errors.New("boom")

	s.FailSubscribe("rooms", boom)
	_, err := s.Subscribe(ctx, "rooms", func([]domain.Document) {}, nil)
	assert.ErrorIs(t, err, boom)

	s.FailWrites(boom)
	_, err = s.AddDocument(ctx, "rooms", map[string]any{})
	assert.ErrorIs(t, err, boom)
	s.FailWrites(nil)

	s.FailQueries(boom)
	_, err = s.Query(ctx, "rooms", domain.Filter{})
	assert.ErrorIs(t, err, boom)
	s.FailQueries(nil)
	_, err = s.Query(ctx, "rooms", domain.Filter{})
	assert.NoError(t, err)

	s.DelayWrites(time.Second)
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = s.AddDocument(short, "rooms", map[string]any{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBreak_ReachesOnError(t *testing.T) {
	s := memory.New()
	got := make(chan error, 1)
	cancel, err := s.Subscribe(context.Background(), "rooms", func([]domain.Document) {}, func(err error) { got <- err })
	require.NoError(t, err)
	defer cancel()

	s.Break("rooms", errors.New("connection reset"))
	select {
	case err := <-got:
		assert.EqualError(t, err, "connection reset")
	case <-time.After(time.Second):
		t.Fatal("onError not called")
	}
}
