package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

func TestUnwrapPayload(t *testing.T) {
	raw := json.RawMessage(`{"namespace":"alice","collection":"products","documents":[]}`)
	p, err := UnwrapPayload[catalog.SnapshotPayload](raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Namespace)
	assert.Equal(t, "products", p.Collection)

	_, err = UnwrapPayload[catalog.SnapshotPayload](json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

// Notify routes each collection to its topic's producer and keys messages by
// namespace. Producers are not started, so the messages sit in the inbox
// where the test can inspect them.
func TestFeedNotify(t *testing.T) {
	brokers := []string{"broker:9092"}
	f := &Feed{
		Products: NewProducer(brokers, catalog.TopicProductsFeed, 8),
		Orders:   NewProducer(brokers, catalog.TopicOrdersFeed, 8),
		Service:  "test",
	}

	docs := []store.Doc{{ID: "p1", Version: 1, Data: []byte(`{"name":"Widget"}`)}}
	f.Notify(context.Background(), "alice", catalog.CollectionProducts, docs)
	f.Notify(context.Background(), "bob", catalog.CollectionOrders, nil)

	m := <-f.Products.inbox
	assert.Equal(t, []byte("alice"), m.Key)
	require.Len(t, m.Headers, 2)
	assert.Equal(t, "x-event-type", m.Headers[0].Key)
	assert.Equal(t, []byte(catalog.EventProductsSnapshot), m.Headers[0].Value)

	var env catalog.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	assert.Equal(t, catalog.EventProductsSnapshot, env.EventType)
	assert.Equal(t, "alice", env.Namespace)
	assert.Equal(t, "test", env.Producer)
	payload, err := UnwrapPayload[catalog.SnapshotPayload](env.Payload)
	require.NoError(t, err)
	require.Len(t, payload.Documents, 1)
	assert.Equal(t, "p1", payload.Documents[0].ID)

	m = <-f.Orders.inbox
	assert.Equal(t, []byte("bob"), m.Key)
	var orderEnv catalog.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &orderEnv))
	assert.Equal(t, catalog.EventOrdersSnapshot, orderEnv.EventType)

	assert.Empty(t, f.Products.inbox)
	assert.Empty(t, f.Orders.inbox)
}
