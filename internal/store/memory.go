package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. It backs unit tests and the standalone mode;
// semantics (versioning, conflict detection, snapshot notification) match the
// Postgres implementation.
type Memory struct {
	mu     sync.RWMutex
	cols   map[string]map[string]Doc // ns/collection -> id -> doc
	notify Notifier
}

func NewMemory(notify Notifier) *Memory {
	return &Memory{cols: make(map[string]map[string]Doc), notify: notify}
}

func colKey(namespace, collection string) string { return namespace + "/" + collection }

func (m *Memory) col(namespace, collection string) map[string]Doc {
	k := colKey(namespace, collection)
	c, ok := m.cols[k]
	if !ok {
		c = make(map[string]Doc)
		m.cols[k] = c
	}
	return c
}

func (m *Memory) Create(ctx context.Context, namespace, collection string, data []byte) (Doc, error) {
	m.mu.Lock()
	doc := Doc{ID: uuid.NewString(), Version: 1, Data: data, UpdatedAt: time.Now().UTC()}
	m.col(namespace, collection)[doc.ID] = doc
	m.mu.Unlock()

	m.publish(ctx, namespace, collection)
	return doc, nil
}

func (m *Memory) Get(ctx context.Context, namespace, collection, id string) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.cols[colKey(namespace, collection)][id]
	if !ok {
		return Doc{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return doc, nil
}

func (m *Memory) Update(ctx context.Context, namespace, collection, id string, data []byte) (Doc, error) {
	m.mu.Lock()
	cur, ok := m.col(namespace, collection)[id]
	if !ok {
		m.mu.Unlock()
		return Doc{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	cur.Version++
	cur.Data = data
	cur.UpdatedAt = time.Now().UTC()
	m.col(namespace, collection)[id] = cur
	m.mu.Unlock()

	m.publish(ctx, namespace, collection)
	return cur, nil
}

func (m *Memory) Delete(ctx context.Context, namespace, collection, id string) error {
	m.mu.Lock()
	if _, ok := m.col(namespace, collection)[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.col(namespace, collection), id)
	m.mu.Unlock()

	m.publish(ctx, namespace, collection)
	return nil
}

func (m *Memory) List(ctx context.Context, namespace, collection string) ([]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(namespace, collection), nil
}

// snapshotLocked returns collection contents ordered by id. Callers hold m.mu.
func (m *Memory) snapshotLocked(namespace, collection string) []Doc {
	c := m.cols[colKey(namespace, collection)]
	out := make([]Doc, 0, len(c))
	for _, d := range c {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) publish(ctx context.Context, namespace, collection string) {
	if m.notify == nil {
		return
	}
	m.mu.RLock()
	snap := m.snapshotLocked(namespace, collection)
	m.mu.RUnlock()
	m.notify(ctx, namespace, collection, snap)
}

type memWrite struct {
	op         string // create | update | delete
	collection string
	id         string
	data       []byte
}

type memTx struct {
	store     *Memory
	namespace string
	reads     map[string]int64 // collection/id -> version read (0 = absent)
	writes    []memWrite
}

func (t *memTx) Get(collection, id string) (Doc, error) {
	t.store.mu.RLock()
	doc, ok := t.store.cols[colKey(t.namespace, collection)][id]
	t.store.mu.RUnlock()

	key := collection + "/" + id
	if !ok {
		t.reads[key] = 0
		return Doc{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	t.reads[key] = doc.Version
	return doc, nil
}

func (t *memTx) Create(collection string, data []byte) string {
	id := uuid.NewString()
	t.writes = append(t.writes, memWrite{op: "create", collection: collection, id: id, data: data})
	return id
}

func (t *memTx) Update(collection, id string, data []byte) {
	t.writes = append(t.writes, memWrite{op: "update", collection: collection, id: id, data: data})
}

func (t *memTx) Delete(collection, id string) {
	t.writes = append(t.writes, memWrite{op: "delete", collection: collection, id: id})
}

func (m *Memory) RunTransaction(ctx context.Context, namespace string, fn func(tx Tx) error) error {
	tx := &memTx{store: m, namespace: namespace, reads: make(map[string]int64)}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	for key, version := range tx.reads {
		collection, id, _ := cutKey(key)
		cur, ok := m.cols[colKey(namespace, collection)][id]
		if !ok && version != 0 || ok && cur.Version != version {
			m.mu.Unlock()
			return fmt.Errorf("%s: %w", key, ErrConflict)
		}
	}
	// Validate update targets before touching anything so a failed commit
	// applies no writes at all.
	created := make(map[string]bool)
	for _, w := range tx.writes {
		key := w.collection + "/" + w.id
		if w.op == "create" {
			created[key] = true
			continue
		}
		if w.op == "update" && !created[key] {
			if _, ok := m.cols[colKey(namespace, w.collection)][w.id]; !ok {
				m.mu.Unlock()
				return fmt.Errorf("%s: %w", key, ErrConflict)
			}
		}
	}
	now := time.Now().UTC()
	touched := make(map[string]bool)
	for _, w := range tx.writes {
		c := m.col(namespace, w.collection)
		switch w.op {
		case "create":
			c[w.id] = Doc{ID: w.id, Version: 1, Data: w.data, UpdatedAt: now}
		case "update":
			cur, ok := c[w.id]
			if !ok {
				cur = Doc{ID: w.id}
			}
			cur.Version++
			cur.Data = w.data
			cur.UpdatedAt = now
			c[w.id] = cur
		case "delete":
			delete(c, w.id)
		}
		touched[w.collection] = true
	}
	m.mu.Unlock()

	for collection := range touched {
		m.publish(ctx, namespace, collection)
	}
	return nil
}

func cutKey(key string) (collection, id string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return key[:i], key[i+1:], true
		}
	}
	return key, "", false
}
