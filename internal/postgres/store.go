// Package postgres implements the document store contract on pgx. Documents
// live in a single table keyed by (ns, collection, id) with a version column;
// transactions buffer writes and validate the read-set under FOR UPDATE at
// commit time, so concurrent transactional writers to the same document abort
// with store.ErrConflict instead of overselling.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

type Store struct {
	Pool   *pgxpool.Pool
	Notify store.Notifier
}

var _ store.Store = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, notify store.Notifier) *Store {
	return &Store{Pool: pool, Notify: notify}
}

func (s *Store) Create(ctx context.Context, namespace, collection string, data []byte) (store.Doc, error) {
	doc := store.Doc{ID: uuid.NewString(), Version: 1, Data: data, UpdatedAt: time.Now().UTC()}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO documents(ns, collection, id, version, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		namespace, collection, doc.ID, doc.Version, data, doc.UpdatedAt)
	if err != nil {
		return store.Doc{}, err
	}
	s.publish(ctx, namespace, collection)
	return doc, nil
}

func (s *Store) Get(ctx context.Context, namespace, collection, id string) (store.Doc, error) {
	doc := store.Doc{ID: id}
	err := s.Pool.QueryRow(ctx, `
		SELECT version, body, updated_at FROM documents
		WHERE ns=$1 AND collection=$2 AND id=$3`,
		namespace, collection, id).Scan(&doc.Version, &doc.Data, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Doc{}, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return store.Doc{}, err
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, namespace, collection, id string, data []byte) (store.Doc, error) {
	doc := store.Doc{ID: id, Data: data}
	err := s.Pool.QueryRow(ctx, `
		UPDATE documents SET version = version + 1, body = $4, updated_at = now()
		WHERE ns=$1 AND collection=$2 AND id=$3
		RETURNING version, updated_at`,
		namespace, collection, id, data).Scan(&doc.Version, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Doc{}, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	if err != nil {
		return store.Doc{}, err
	}
	s.publish(ctx, namespace, collection)
	return doc, nil
}

func (s *Store) Delete(ctx context.Context, namespace, collection, id string) error {
	ct, err := s.Pool.Exec(ctx, `
		DELETE FROM documents WHERE ns=$1 AND collection=$2 AND id=$3`,
		namespace, collection, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	s.publish(ctx, namespace, collection)
	return nil
}

func (s *Store) List(ctx context.Context, namespace, collection string) ([]store.Doc, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, version, body, updated_at FROM documents
		WHERE ns=$1 AND collection=$2 ORDER BY id`,
		namespace, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Doc
	for rows.Next() {
		var d store.Doc
		if err := rows.Scan(&d.ID, &d.Version, &d.Data, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type pgWrite struct {
	op         string
	collection string
	id         string
	data       []byte
}

type pgTx struct {
	ctx       context.Context
	store     *Store
	namespace string
	reads     map[string]int64
	writes    []pgWrite
}

func (t *pgTx) Get(collection, id string) (store.Doc, error) {
	doc, err := t.store.Get(t.ctx, t.namespace, collection, id)
	key := collection + "/" + id
	if errors.Is(err, store.ErrNotFound) {
		t.reads[key] = 0
		return store.Doc{}, err
	}
	if err != nil {
		return store.Doc{}, err
	}
	t.reads[key] = doc.Version
	return doc, nil
}

func (t *pgTx) Create(collection string, data []byte) string {
	id := uuid.NewString()
	t.writes = append(t.writes, pgWrite{op: "create", collection: collection, id: id, data: data})
	return id
}

func (t *pgTx) Update(collection, id string, data []byte) {
	t.writes = append(t.writes, pgWrite{op: "update", collection: collection, id: id, data: data})
}

func (t *pgTx) Delete(collection, id string) {
	t.writes = append(t.writes, pgWrite{op: "delete", collection: collection, id: id})
}

func (s *Store) RunTransaction(ctx context.Context, namespace string, fn func(tx store.Tx) error) error {
	t := &pgTx{ctx: ctx, store: s, namespace: namespace, reads: make(map[string]int64)}
	if err := fn(t); err != nil {
		return err
	}

	touched, err := s.commit(ctx, namespace, t)
	if err != nil {
		return err
	}
	for collection := range touched {
		s.publish(ctx, namespace, collection)
	}
	return nil
}

func (s *Store) commit(ctx context.Context, namespace string, t *pgTx) (map[string]bool, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Revalidate every read under row locks. A version moved by a concurrent
	// commit, a vanished document, or a document that appeared where the
	// transaction read an absence all abort as a conflict.
	for key, version := range t.reads {
		collection, id := splitKey(key)
		var cur int64
		err := tx.QueryRow(ctx, `
			SELECT version FROM documents
			WHERE ns=$1 AND collection=$2 AND id=$3 FOR UPDATE`,
			namespace, collection, id).Scan(&cur)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			if version != 0 {
				return nil, fmt.Errorf("%s: %w", key, store.ErrConflict)
			}
		case err != nil:
			return nil, err
		case cur != version:
			return nil, fmt.Errorf("%s: %w", key, store.ErrConflict)
		}
	}

	touched := make(map[string]bool)
	for _, w := range t.writes {
		switch w.op {
		case "create":
			if _, err := tx.Exec(ctx, `
				INSERT INTO documents(ns, collection, id, version, body, updated_at)
				VALUES ($1, $2, $3, 1, $4, now())`,
				namespace, w.collection, w.id, w.data); err != nil {
				return nil, err
			}
		case "update":
			ct, err := tx.Exec(ctx, `
				UPDATE documents SET version = version + 1, body = $4, updated_at = now()
				WHERE ns=$1 AND collection=$2 AND id=$3`,
				namespace, w.collection, w.id, w.data)
			if err != nil {
				return nil, err
			}
			if ct.RowsAffected() != 1 {
				return nil, fmt.Errorf("%s/%s: %w", w.collection, w.id, store.ErrConflict)
			}
		case "delete":
			if _, err := tx.Exec(ctx, `
				DELETE FROM documents WHERE ns=$1 AND collection=$2 AND id=$3`,
				namespace, w.collection, w.id); err != nil {
				return nil, err
			}
		}
		touched[w.collection] = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return touched, nil
}

func (s *Store) publish(ctx context.Context, namespace, collection string) {
	if s.Notify == nil {
		return
	}
	snap, err := s.List(ctx, namespace, collection)
	if err != nil {
		// The change is committed; a failed snapshot read only delays the
		// feed until the next mutation.
		slog.ErrorContext(ctx, "snapshot read for feed failed", "collection", collection, "error", err)
		return
	}
	s.Notify(ctx, namespace, collection, snap)
}

func splitKey(key string) (collection, id string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
