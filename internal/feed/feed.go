// Package feed turns a backend store subscription into a typed stream of
// full-collection snapshots.
package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/domain"
)

// Result is the outcome of decoding one document. Value is always usable:
// malformed fields are replaced by defaults and reported in Issues.
type Result[T any] struct {
	Value  T
	Issues []*domain.FeedDecodeError
}

func (r Result[T]) OK() bool { return len(r.Issues) == 0 }

type Decoder[T any] func(domain.Document) Result[T]

// Snapshot is the complete decoded state of one collection.
type Snapshot[T any] struct {
	Collection string
	Items      []T
	Issues     []*domain.FeedDecodeError
	Seq        uint64
	ReceivedAt time.Time
}

// Unsubscribe stops a subscription. It may be called any number of times.
type Unsubscribe func()

type ChangeFeed[T any] struct {
	store      domain.DocumentStore
	collection string
	decode     Decoder[T]
	onError    func(error)
	now        func() time.Time
}

func New[T any](store domain.DocumentStore, collection string, decode Decoder[T]) *ChangeFeed[T] {
	return &ChangeFeed[T]{store: store, collection: collection, decode: decode, now: time.Now}
}

// HandleErrors sets the receiver of *domain.FeedSubscriptionError values
// raised after the subscription was established.
func (f *ChangeFeed[T]) HandleErrors(fn func(error)) *ChangeFeed[T] {
	f.onError = fn
	return f
}

func (f *ChangeFeed[T]) Collection() string { return f.collection }

// Subscribe starts delivering snapshots to onSnapshot. Deliveries never
// overlap. Once the returned Unsubscribe returns, onSnapshot is not invoked
// again; it must not be called from inside onSnapshot since it waits for the
// in-flight delivery.
func (f *ChangeFeed[T]) Subscribe(ctx context.Context, onSnapshot func(Snapshot[T])) (Unsubscribe, error) {
	sub := &subscription{}

	cancel, err := f.store.Subscribe(ctx, f.collection,
		func(docs []domain.Document) {
			sub.deliver(func(seq uint64) {
				onSnapshot(f.decodeAll(docs, seq))
			})
		},
		func(err error) {
			if sub.stopped.Load() {
				return
			}
			observability.ObserveFeedError(f.collection)
			ferr := &domain.FeedSubscriptionError{Collection: f.collection, Err: err}
			log.Error().Err(err).Str("collection", f.collection).Msg("feed subscription error")
			if f.onError != nil {
				f.onError(ferr)
			}
		},
	)
	if err != nil {
		observability.ObserveFeedError(f.collection)
		sub.stopped.Store(true)
		return func() {}, &domain.FeedSubscriptionError{Collection: f.collection, Err: err}
	}
	sub.setCancel(cancel)
	return sub.unsubscribe, nil
}

func (f *ChangeFeed[T]) decodeAll(docs []domain.Document, seq uint64) Snapshot[T] {
	snap := Snapshot[T]{
		Collection: f.collection,
		Items:      make([]T, 0, len(docs)),
		Seq:        seq,
		ReceivedAt: f.now(),
	}
	for _, d := range docs {
		r := f.decode(d)
		for _, issue := range r.Issues {
			if issue.Collection == "" {
				issue.Collection = f.collection
			}
		}
		snap.Items = append(snap.Items, r.Value)
		snap.Issues = append(snap.Issues, r.Issues...)
	}
	observability.ObserveSnapshot(f.collection, len(snap.Issues))
	if len(snap.Issues) > 0 {
		log.Warn().
			Str("collection", f.collection).
			Int("documents", len(docs)).
			Int("issues", len(snap.Issues)).
			Str("first", snap.Issues[0].Error()).
			Msg("healed malformed documents")
	}
	return snap
}

type subscription struct {
	mu      sync.Mutex // serializes deliveries
	seq     uint64
	stopped atomic.Bool

	cancelMu sync.Mutex
	cancel   func()
	once     sync.Once
}

func (s *subscription) deliver(fn func(seq uint64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() {
		return
	}
	s.seq++
	fn(s.seq)
}

func (s *subscription) setCancel(c func()) {
	s.cancelMu.Lock()
	s.cancel = c
	s.cancelMu.Unlock()
}

func (s *subscription) unsubscribe() {
	s.once.Do(func() {
		s.stopped.Store(true)
		s.cancelMu.Lock()
		c := s.cancel
		s.cancelMu.Unlock()
		if c != nil {
			c()
		}
		// wait for an in-flight delivery to finish
		s.mu.Lock()
		defer s.mu.Unlock()
	})
}
