// Package redisad keeps documents in redis hashes and announces every write
// on a pub/sub channel per collection. Subscribers reload the whole
// collection on each announcement.
//
// Layout, for prefix p and collection c:
//
//	p:docs:c     hash  id -> JSON fields
//	p:order:c    zset  id scored by insertion sequence
//	p:seq:c      int   insertion sequence
//	p:changes:c  channel, payload is the written id
package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

const maxTxRetries = 5

type Store struct {
	c      *redis.Client
	prefix string
}

func New(addr, pass string, db int, prefix string) *Store {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}), prefix)
}

func NewFromClient(c *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "hotelops"
	}
	return &Store{c: c, prefix: prefix}
}

func (s *Store) Ping(ctx context.Context) error { return s.c.Ping(ctx).Err() }

func (s *Store) Close() error { return s.c.Close() }

func (s *Store) docsKey(c string) string    { return s.prefix + ":docs:" + c }
func (s *Store) orderKey(c string) string   { return s.prefix + ":order:" + c }
func (s *Store) seqKey(c string) string     { return s.prefix + ":seq:" + c }
func (s *Store) changesKey(c string) string { return s.prefix + ":changes:" + c }

// load reads the collection in insertion order inside one MULTI block.
func (s *Store) load(ctx context.Context, collection string) (docs []domain.Document, err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("redis", "load", err, time.Since(start)) }()

	var (
		order *redis.StringSliceCmd
		all   *redis.MapStringStringCmd
	)
	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		order = p.ZRange(ctx, s.orderKey(collection), 0, -1)
		all = p.HGetAll(ctx, s.docsKey(collection))
		return nil
	})
	if err != nil {
		return nil, err
	}
	raw := all.Val()
	docs = make([]domain.Document, 0, len(raw))
	for _, id := range order.Val() {
		body, ok := raw[id]
		if !ok {
			continue
		}
		fields := map[string]any{}
		if err := json.Unmarshal([]byte(body), &fields); err != nil {
			// surfaced by the decoder as missing fields
			log.Warn().Str("collection", collection).Str("id", id).Err(err).Msg("unreadable document")
		}
		docs = append(docs, domain.Document{ID: id, Fields: fields})
	}
	return docs, nil
}

func (s *Store) Query(ctx context.Context, collection string, f domain.Filter) ([]domain.Document, error) {
	docs, err := s.load(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, d := range docs {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) AddDocument(ctx context.Context, collection string, fields map[string]any) (id string, err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("redis", "add", err, time.Since(start)) }()

	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	seq, err := s.c.Incr(ctx, s.seqKey(collection)).Result()
	if err != nil {
		return "", err
	}
	id = uuid.NewString()
	_, err = s.c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.docsKey(collection), id, body)
		p.ZAdd(ctx, s.orderKey(collection), redis.Z{Score: float64(seq), Member: id})
		p.Publish(ctx, s.changesKey(collection), id)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateDocument merges fields into an existing document. Concurrent writers
// are detected with WATCH and retried.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("redis", "update", err, time.Since(start)) }()

	key := s.docsKey(collection)
	txf := func(tx *redis.Tx) error {
		body, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		doc := map[string]any{}
		if err := json.Unmarshal([]byte(body), &doc); err != nil {
			doc = map[string]any{}
		}
		for k, v := range fields {
			doc[k] = v
		}
		merged, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, id, merged)
			p.Publish(ctx, s.changesKey(collection), id)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = s.c.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update %s/%s: gave up after %d conflicts: %w", collection, id, maxTxRetries, err)
}

// Subscribe confirms the channel subscription before returning, then
// delivers the current collection and a fresh load after every change.
// Bursts of changes collapse into one reload.
func (s *Store) Subscribe(ctx context.Context, collection string, onSnapshot func([]domain.Document), onError func(error)) (func(), error) {
	ps := s.c.Subscribe(ctx, s.changesKey(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			_ = ps.Close()
		})
	}

	report := func(err error) {
		select {
		case <-stop:
			return
		default:
		}
		if onError != nil {
			onError(err)
		}
	}

	msgs := ps.Channel()
	go func() {
		bg := context.Background()
		deliver := func() {
			docs, err := s.load(bg, collection)
			if err != nil {
				report(err)
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			onSnapshot(docs)
		}

		deliver()
		for {
			select {
			case <-stop:
				return
			case _, ok := <-msgs:
				if !ok {
					report(fmt.Errorf("redis subscription to %s closed", collection))
					return
				}
			}
		drain:
			for {
				select {
				case _, ok := <-msgs:
					if !ok {
						break drain
					}
				default:
					break drain
				}
			}
			deliver()
		}
	}()
	return cancel, nil
}
