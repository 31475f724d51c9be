package catalog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

const (
	EventProductsSnapshot = "ProductsSnapshot"
	EventOrdersSnapshot   = "OrdersSnapshot"
)

// Envelope wraps every change-feed event. OccurredAt orders snapshots within
// one namespace partition; consumers drop anything older than the snapshot
// they last applied.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"` // 1
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Namespace    string          `json:"namespace"`
	Payload      json.RawMessage `json:"payload"`
}

// SnapshotPayload carries the full state of one collection after a committed
// mutation. The mirror replaces its contents wholesale; there is no
// incremental diffing.
type SnapshotPayload struct {
	Namespace  string      `json:"namespace"`
	Collection string      `json:"collection"`
	Documents  []store.Doc `json:"documents"`
}

// NewSnapshotEnvelope builds the feed event for a committed change to one
// namespace's collection.
func NewSnapshotEnvelope(producer, namespace, collection string, docs []store.Doc) Envelope {
	eventType := EventProductsSnapshot
	if collection == CollectionOrders {
		eventType = EventOrdersSnapshot
	}
	return Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     producer,
		Namespace:    namespace,
		Payload: MustMarshal(SnapshotPayload{
			Namespace:  namespace,
			Collection: collection,
			Documents:  docs,
		}),
	}
}
