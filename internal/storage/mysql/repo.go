// Package mysql stores documents as JSON rows and emulates change
// subscriptions by polling a per-collection fingerprint.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"hotelops/internal/adapters/observability"
	"hotelops/internal/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

type Store struct {
	db           *sql.DB
	pollInterval time.Duration
}

func New(db *sql.DB, pollInterval time.Duration) *Store {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Store{db: db, pollInterval: pollInterval}
}

// Migrate creates the documents table if it is missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) AddDocument(ctx context.Context, collection string, fields map[string]any) (id string, err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("mysql", "add", err, time.Since(start)) }()

	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	id = uuid.NewString()
	if _, err := s.db.ExecContext(ctx, insertDocumentSQL, collection, id, string(body)); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateDocument merges fields into the stored document under a row lock.
func (s *Store) UpdateDocument(ctx context.Context, collection, id string, fields map[string]any) (err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("mysql", "update", err, time.Since(start)) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var raw []byte
	if err = tx.QueryRowContext(ctx, lockDocumentSQL, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	doc := map[string]any{}
	_ = json.Unmarshal(raw, &doc)
	for k, v := range fields {
		doc[k] = v
	}
	merged, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if _, err = tx.ExecContext(ctx, updateDocumentSQL, string(merged), collection, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Query(ctx context.Context, collection string, f domain.Filter) (docs []domain.Document, err error) {
	start := time.Now()
	defer func() { observability.ObserveStore("mysql", "query", err, time.Since(start)) }()

	q, args := listDocumentsSQL, []any{collection}
	if len(f.IDs) > 0 {
		q = listDocumentsByIDPrefix + "(" + strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",") + ") ORDER BY seq"
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		fields := map[string]any{}
		if err := json.Unmarshal(raw, &fields); err != nil {
			log.Warn().Str("collection", collection).Str("id", id).Err(err).Msg("unreadable document")
		}
		d := domain.Document{ID: id, Fields: fields}
		if f.Match(d) {
			docs = append(docs, d)
		}
	}
	return docs, rows.Err()
}

type fingerprint struct {
	count, versions, maxSeq int64
}

func (s *Store) fingerprint(ctx context.Context, collection string) (fingerprint, error) {
	var fp fingerprint
	err := s.db.QueryRowContext(ctx, fingerprintSQL, collection).Scan(&fp.count, &fp.versions, &fp.maxSeq)
	return fp, err
}

// Subscribe delivers the collection now and again whenever its fingerprint
// moves. Poll failures go to onError and polling continues.
func (s *Store) Subscribe(ctx context.Context, collection string, onSnapshot func([]domain.Document), onError func(error)) (func(), error) {
	fp, err := s.fingerprint(ctx, collection)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }

	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		bg := context.Background()

		deliver := func() bool {
			docs, err := s.Query(bg, collection, domain.Filter{})
			if err != nil {
				if onError != nil {
					onError(err)
				}
				return false
			}
			select {
			case <-stop:
				return false
			default:
			}
			onSnapshot(docs)
			return true
		}

		pending := !deliver()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
			next, err := s.fingerprint(bg, collection)
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if next == fp && !pending {
				continue
			}
			fp = next
			pending = !deliver()
		}
	}()
	return cancel, nil
}
