package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/kafka"
	"github.com/pyoush/e-commerce-hooks-store/internal/metrics"
	"github.com/pyoush/e-commerce-hooks-store/internal/redisx"
	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

// State holds one principal's mirrors and the metrics derived from them.
type State struct {
	Products *Mirror[catalog.Product]
	Orders   *Mirror[catalog.Order]

	mu      sync.RWMutex
	summary metrics.Summary
}

func newState() *State {
	return &State{
		Products: NewMirror[catalog.Product](),
		Orders:   NewMirror[catalog.Order](),
	}
}

func (st *State) Summary() metrics.Summary {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.summary
}

func (st *State) setSummary(s metrics.Summary) {
	st.mu.Lock()
	st.summary = s
	st.mu.Unlock()
}

// Observer runs after a snapshot lands and metrics are recomputed.
type Observer func(namespace string, summary metrics.Summary)

// Synchronizer applies change-feed snapshots to per-principal mirrors. A
// failed delivery (bad envelope, undecodable documents) is surfaced to the
// consumer and the mirror stays at its last good value.
type Synchronizer struct {
	mu        sync.RWMutex
	states    map[string]*State
	observers []Observer

	// Redis is optional; when set it dedups feed events per group and caches
	// the latest metrics per principal.
	Redis *redis.Client
	Group string
}

func NewSynchronizer(rdb *redis.Client, group string) *Synchronizer {
	return &Synchronizer{states: make(map[string]*State), Redis: rdb, Group: group}
}

// Subscribe registers an observer. Not safe to call after feed consumption
// has started.
func (s *Synchronizer) Subscribe(fn Observer) {
	s.observers = append(s.observers, fn)
}

func (s *Synchronizer) state(namespace string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[namespace]
	if !ok {
		st = newState()
		s.states[namespace] = st
	}
	return st
}

// State returns the mirrors for a namespace, if any feed delivery has
// created them yet.
func (s *Synchronizer) State(namespace string) (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[namespace]
	return st, ok
}

func (s *Synchronizer) Products(namespace string) []catalog.Product {
	st, ok := s.State(namespace)
	if !ok {
		return nil
	}
	out := st.Products.All()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Synchronizer) Orders(namespace string) []catalog.Order {
	st, ok := s.State(namespace)
	if !ok {
		return nil
	}
	out := st.Orders.All()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OrderedAt.Equal(out[j].OrderedAt) {
			return out[i].OrderedAt.After(out[j].OrderedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Metrics returns the latest derived metrics for a namespace, falling back
// to the Redis cache when this process has not seen a feed delivery yet.
func (s *Synchronizer) Metrics(ctx context.Context, namespace string) (metrics.Summary, bool) {
	if st, ok := s.State(namespace); ok {
		return st.Summary(), true
	}
	if s.Redis != nil {
		raw, err := s.Redis.Get(ctx, fmt.Sprintf(redisx.KeyMetrics, namespace)).Result()
		if err == nil {
			var sum metrics.Summary
			if json.Unmarshal([]byte(raw), &sum) == nil {
				return sum, true
			}
		}
	}
	return metrics.Summary{}, false
}

// HandleFeed is mounted as the Kafka consumer handler for both feed topics.
func (s *Synchronizer) HandleFeed(ctx context.Context, m kafkago.Message) error {
	var env catalog.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return fmt.Errorf("decode feed envelope: %w", err)
	}
	return s.Apply(ctx, env)
}

// Apply replaces the addressed mirror with the delivered snapshot and
// republishes metrics.
func (s *Synchronizer) Apply(ctx context.Context, env catalog.Envelope) error {
	dkey := fmt.Sprintf(redisx.KeyFeedDedup, s.Group, env.EventID)
	if s.Redis != nil {
		if seen, _ := redisx.Exists(ctx, s.Redis, dkey); seen {
			return nil
		}
	}

	payload, err := kafka.UnwrapPayload[catalog.SnapshotPayload](env.Payload)
	if err != nil {
		return err
	}

	st := s.state(env.Namespace)
	switch env.EventType {
	case catalog.EventProductsSnapshot:
		docs, err := catalog.DecodeProducts(payload.Documents)
		if err != nil {
			return err
		}
		if !st.Products.Replace(docs, env.OccurredAt) {
			return nil
		}
	case catalog.EventOrdersSnapshot:
		docs, err := catalog.DecodeOrders(payload.Documents)
		if err != nil {
			return err
		}
		if !st.Orders.Replace(docs, env.OccurredAt) {
			return nil
		}
	default:
		return nil // ignore
	}

	summary := metrics.Compute(st.Products.All(), st.Orders.All())
	st.setSummary(summary)

	if s.Redis != nil {
		// Marked only after the mirror took the snapshot. A failed apply leaves
		// the event unmarked and its offset uncommitted, so the group's
		// redelivery can still land it.
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		key := fmt.Sprintf(redisx.KeyMetrics, env.Namespace)
		_ = s.Redis.Set(ctx, key, catalog.MustMarshal(summary), redisx.TTLMetrics).Err()
	}
	for _, fn := range s.observers {
		fn(env.Namespace, summary)
	}
	return nil
}

// Loopback wires the synchronizer directly to a store as its change feed,
// bypassing the broker. Used by the in-process mode and tests.
func (s *Synchronizer) Loopback(producer string) store.Notifier {
	return func(ctx context.Context, namespace, collection string, docs []store.Doc) {
		env := catalog.NewSnapshotEnvelope(producer, namespace, collection, docs)
		if err := s.Apply(ctx, env); err != nil {
			slog.ErrorContext(ctx, "loopback feed apply failed", "collection", collection, "error", err)
		}
	}
}
