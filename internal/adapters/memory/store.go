// Package memory is an in-process DocumentStore for tests, local runs and
// demos. Every subscriber gets its own delivery goroutine and pending
// notifications are coalesced, so a slow consumer only ever sees the latest
// state.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

type collection struct {
	order []string
	docs  map[string]map[string]any
}

type subscriber struct {
	kick       chan struct{}
	stop       chan struct{}
	once       sync.Once
	onSnapshot func([]domain.Document)
	onError    func(error)
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	subs        map[string]map[int64]*subscriber
	nextSub     int64

	// fault injection, used by tests
	subscribeErr map[string]error
	writeErr     error
	queryErr     error
	writeDelay   time.Duration
	held         map[string]bool
}

func New() *Store {
	return &Store{
		collections:  make(map[string]*collection),
		subs:         make(map[string]map[int64]*subscriber),
		subscribeErr: make(map[string]error),
		held:         make(map[string]bool),
	}
}

func (s *Store) coll(name string) *collection {
	c, ok := s.collections[name]
	if !ok {
		c = &collection{docs: make(map[string]map[string]any)}
		s.collections[name] = c
	}
	return c
}

func (s *Store) Subscribe(ctx context.Context, name string, onSnapshot func([]domain.Document), onError func(error)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if err := s.subscribeErr[name]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.nextSub++
	id := s.nextSub
	sub := &subscriber{
		kick:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		onSnapshot: onSnapshot,
		onError:    onError,
	}
	if s.subs[name] == nil {
		s.subs[name] = make(map[int64]*subscriber)
	}
	s.subs[name][id] = sub
	s.mu.Unlock()

	go s.deliver(name, sub)
	select {
	case sub.kick <- struct{}{}:
	default:
	}

	cancel := func() {
		sub.once.Do(func() {
			close(sub.stop)
			s.mu.Lock()
			delete(s.subs[name], id)
			s.mu.Unlock()
		})
	}
	return cancel, nil
}

func (s *Store) deliver(name string, sub *subscriber) {
	for {
		select {
		case <-sub.stop:
			return
		case <-sub.kick:
		}
		select {
		case <-sub.stop:
			return
		default:
		}
		s.mu.RLock()
		docs := s.snapshot(name, domain.Filter{})
		s.mu.RUnlock()
		sub.onSnapshot(docs)
	}
}

// notify must be called with s.mu held.
func (s *Store) notify(name string) {
	if s.held[name] {
		return
	}
	for _, sub := range s.subs[name] {
		select {
		case sub.kick <- struct{}{}:
		default:
		}
	}
}

// snapshot must be called with s.mu held.
func (s *Store) snapshot(name string, f domain.Filter) []domain.Document {
	c, ok := s.collections[name]
	if !ok {
		return []domain.Document{}
	}
	out := make([]domain.Document, 0, len(c.order))
	for _, id := range c.order {
		d := domain.Document{ID: id, Fields: copyMap(c.docs[id])}
		if f.Match(d) {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) Query(ctx context.Context, name string, f domain.Filter) ([]domain.Document, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if err := s.queryErr; err != nil {
		s.mu.RUnlock()
		observability.ObserveStore("memory", "query", err, time.Since(start))
		return nil, err
	}
	docs := s.snapshot(name, f)
	s.mu.RUnlock()
	observability.ObserveStore("memory", "query", nil, time.Since(start))
	return docs, nil
}

func (s *Store) AddDocument(ctx context.Context, name string, fields map[string]any) (id string, err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("memory", "add", err, time.Since(start)) }()

	if err := s.pause(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return "", s.writeErr
	}
	id = uuid.NewString()
	c := s.coll(name)
	c.order = append(c.order, id)
	c.docs[id] = copyMap(fields)
	s.notify(name)
	return id, nil
}

func (s *Store) UpdateDocument(ctx context.Context, name, id string, fields map[string]any) (err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("memory", "update", err, time.Since(start)) }()

	if err := s.pause(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	c := s.coll(name)
	doc, ok := c.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	for k, v := range copyMap(fields) {
		doc[k] = v
	}
	s.notify(name)
	return nil
}

func (s *Store) pause(ctx context.Context) error {
	s.mu.RLock()
	d := s.writeDelay
	s.mu.RUnlock()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put stores fields under a caller-chosen id, replacing any previous value.
// Handy for fixtures that need stable ids or malformed documents.
func (s *Store) Put(name, id string, fields map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coll(name)
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = copyMap(fields)
	s.notify(name)
}

// FailSubscribe makes future Subscribe calls on name fail with err; nil clears it.
func (s *Store) FailSubscribe(name string, err error) {
	s.mu.Lock()
	s.subscribeErr[name] = err
	s.mu.Unlock()
}

// FailWrites makes Add and Update fail with err; nil clears it.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// FailQueries makes Query fail with err; nil clears it.
func (s *Store) FailQueries(err error) {
	s.mu.Lock()
	s.queryErr = err
	s.mu.Unlock()
}

// DelayWrites makes every write wait d before touching state.
func (s *Store) DelayWrites(d time.Duration) {
	s.mu.Lock()
	s.writeDelay = d
	s.mu.Unlock()
}

// Hold suppresses change notifications on name. Writes still land and are
// visible to Query. Releasing delivers the current state.
func (s *Store) Hold(name string, held bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held[name] = held
	if !held {
		s.notify(name)
	}
}

// Break reports err to every live subscriber of name, as a dropped
// connection would.
func (s *Store) Break(name string, err error) {
	s.mu.RLock()
	subs := make([]*subscriber, 0, len(s.subs[name]))
	for _, sub := range s.subs[name] {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()
	for _, sub := range subs {
		if sub.onError != nil {
			sub.onError(err)
		}
	}
}

// Subscribers reports how many live subscriptions name has.
func (s *Store) Subscribers(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[name])
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
