package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CollectionProducts = "products"
	CollectionOrders   = "orders"
)

type Product struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Stock     int             `json:"stock"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Order references its product by value only: the product may be edited or
// deleted later without invalidating the order. ProductName and TotalPrice
// are snapshotted at creation and never recomputed.
type Order struct {
	ID          string          `json:"id,omitempty"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Status      Status          `json:"status"` // see status.go
	OrderedAt   time.Time       `json:"ordered_at"`
	FulfilledAt *time.Time      `json:"fulfilled_at,omitempty"`
}
