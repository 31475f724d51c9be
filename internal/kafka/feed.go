package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

// Feed adapts the producers into a store.Notifier: every committed mutation
// publishes the affected collection's full snapshot, keyed by namespace so
// one principal's events stay in order.
type Feed struct {
	Products *Producer
	Orders   *Producer
	Service  string
}

func (f *Feed) producerFor(collection string) *Producer {
	if collection == catalog.CollectionOrders {
		return f.Orders
	}
	return f.Products
}

// Notify implements store.Notifier.
func (f *Feed) Notify(ctx context.Context, namespace, collection string, docs []store.Doc) {
	env := catalog.NewSnapshotEnvelope(f.Service, namespace, collection, docs)
	f.producerFor(collection).Publish(catalog.PartitionKey(namespace), MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnwrapPayload decodes an envelope's typed payload.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
