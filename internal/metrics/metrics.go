// Package metrics derives the dashboard figures from the current mirrors.
// Everything here is a pure function of its inputs; nothing is persisted.
package metrics

import (
	"github.com/shopspring/decimal"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
)

// LowStockThreshold marks products that need restocking.
const LowStockThreshold = 5

type Summary struct {
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalStockValue  decimal.Decimal `json:"total_stock_value"`
	PendingOrders    int             `json:"pending_orders"`
	LowStockProducts int             `json:"low_stock_products"`
}

func Compute(products []catalog.Product, orders []catalog.Order) Summary {
	s := Summary{TotalRevenue: decimal.Zero, TotalStockValue: decimal.Zero}
	for _, p := range products {
		s.TotalStockValue = s.TotalStockValue.Add(p.Price.Mul(decimal.NewFromInt(int64(p.Stock))))
		if p.Stock <= LowStockThreshold {
			s.LowStockProducts++
		}
	}
	for _, o := range orders {
		switch o.Status {
		case catalog.StatusFulfilled:
			s.TotalRevenue = s.TotalRevenue.Add(o.TotalPrice)
		case catalog.StatusPending:
			s.PendingOrders++
		}
	}
	return s
}
