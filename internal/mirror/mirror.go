// Package mirror keeps local replicas of the remote collections in sync with
// the change feed and republishes derived metrics on every change. Mirrors
// are written only by the synchronizer; everyone else reads snapshots.
package mirror

import (
	"sync"
	"time"
)

// Mirror is the local replica of one collection, keyed by document id. Each
// feed delivery replaces the contents wholesale.
type Mirror[T any] struct {
	mu   sync.RWMutex
	docs map[string]T
	asOf time.Time
}

func NewMirror[T any]() *Mirror[T] {
	return &Mirror[T]{docs: make(map[string]T)}
}

// Replace swaps in a new snapshot. Snapshots older than the one already
// applied are dropped so a replayed feed message cannot roll the mirror back.
func (m *Mirror[T]) Replace(docs map[string]T, asOf time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if asOf.Before(m.asOf) {
		return false
	}
	m.docs = docs
	m.asOf = asOf
	return true
}

func (m *Mirror[T]) Get(id string) (T, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.docs[id]
	return v, ok
}

// All returns the current contents in unspecified order.
func (m *Mirror[T]) All() []T {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]T, 0, len(m.docs))
	for _, v := range m.docs {
		out = append(out, v)
	}
	return out
}

func (m *Mirror[T]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *Mirror[T]) AsOf() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.asOf
}
