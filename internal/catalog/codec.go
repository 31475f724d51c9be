package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

// MustMarshal is for values that are always marshalable (our own structs).
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodeProduct decodes a document body and stamps the store-assigned id.
func DecodeProduct(doc store.Doc) (Product, error) {
	var p Product
	if err := json.Unmarshal(doc.Data, &p); err != nil {
		return Product{}, fmt.Errorf("decode product %s: %w", doc.ID, err)
	}
	p.ID = doc.ID
	return p, nil
}

func DecodeOrder(doc store.Doc) (Order, error) {
	var o Order
	if err := json.Unmarshal(doc.Data, &o); err != nil {
		return Order{}, fmt.Errorf("decode order %s: %w", doc.ID, err)
	}
	o.ID = doc.ID
	return o, nil
}

func DecodeProducts(docs []store.Doc) (map[string]Product, error) {
	out := make(map[string]Product, len(docs))
	for _, d := range docs {
		p, err := DecodeProduct(d)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, nil
}

func DecodeOrders(docs []store.Doc) (map[string]Order, error) {
	out := make(map[string]Order, len(docs))
	for _, d := range docs {
		o, err := DecodeOrder(d)
		if err != nil {
			return nil, err
		}
		out[o.ID] = o
	}
	return out, nil
}
