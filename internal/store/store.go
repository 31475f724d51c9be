// Package store defines the transactional document store contract the
// inventory engine runs against, and provides an in-memory implementation.
// Documents live in named collections scoped by a principal namespace; ids
// are assigned by the store. Transactions are optimistic: reads join the
// read-set and are validated against current versions at commit time.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the referenced document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a transaction's read-set was modified by a
	// concurrent writer before commit. Callers are expected to retry.
	ErrConflict = errors.New("transaction conflict")
)

// Doc is a versioned document. Data holds the JSON body; the id lives on the
// record, not inside the body.
type Doc struct {
	ID        string          `json:"id"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Notifier receives the full snapshot of a collection after every committed
// mutation to it. Implementations must not block the caller for long; the
// Kafka feed enqueues and returns.
type Notifier func(ctx context.Context, namespace, collection string, docs []Doc)

// Store is the durable document store. Plain single-document writes are
// last-write-wins; RunTransaction gives all-or-nothing semantics with
// optimistic conflict detection across documents.
type Store interface {
	Create(ctx context.Context, namespace, collection string, data []byte) (Doc, error)
	Get(ctx context.Context, namespace, collection, id string) (Doc, error)
	Update(ctx context.Context, namespace, collection, id string, data []byte) (Doc, error)
	Delete(ctx context.Context, namespace, collection, id string) error
	List(ctx context.Context, namespace, collection string) ([]Doc, error)

	// RunTransaction executes fn against a transaction scoped to one
	// namespace. Writes are buffered until fn returns nil; the commit
	// validates every read version and applies all writes atomically, or
	// fails with ErrConflict and applies nothing. An error from fn aborts
	// with no side effects.
	RunTransaction(ctx context.Context, namespace string, fn func(tx Tx) error) error
}

// Tx is the view of a store transaction handed to RunTransaction callbacks.
type Tx interface {
	// Get reads a document and records its version in the read-set. A read
	// of a missing document returns ErrNotFound and records the absence.
	Get(collection, id string) (Doc, error)
	// Create buffers a document creation and returns the assigned id.
	Create(collection string, data []byte) string
	Update(collection, id string, data []byte)
	Delete(collection, id string)
}
