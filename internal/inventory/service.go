// Package inventory is the order fulfillment engine: product mutations, the
// atomic stock-decrement + order-creation transaction, and order fulfillment.
// Every store mutation goes through the retry executor; optimistic conflicts
// are retried, missing documents and stock shortages are surfaced at once.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/executor"
	"github.com/pyoush/e-commerce-hooks-store/internal/mirror"
	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

// ErrInvalidInput rejects malformed product or order input before any store
// round trip.
var ErrInvalidInput = errors.New("invalid input")

// Simulated orders draw quantity uniformly from [1, MaxSimulatedQty].
const MaxSimulatedQty = 5

type Service struct {
	Store   store.Store
	Mirrors *mirror.Synchronizer

	// RetryOpts tune the executor; tests shrink the backoff base.
	RetryOpts []executor.Option
}

type ProductInput struct {
	Name  string          `json:"name"`
	Stock int             `json:"stock"`
	Price decimal.Decimal `json:"price"`
}

func (in ProductInput) validate() error {
	if in.Name == "" {
		return fmt.Errorf("%w: product name must not be empty", ErrInvalidInput)
	}
	if in.Stock < 0 {
		return fmt.Errorf("%w: stock must not be negative", ErrInvalidInput)
	}
	if in.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	return nil
}

func (s *Service) execOpts() []executor.Option {
	opts := []executor.Option{
		executor.WithPermanent(store.ErrNotFound, catalog.ErrInsufficientStock),
	}
	return append(opts, s.RetryOpts...)
}

func (s *Service) CreateProduct(ctx context.Context, namespace string, in ProductInput) (catalog.Product, error) {
	if err := in.validate(); err != nil {
		return catalog.Product{}, err
	}
	now := time.Now().UTC()
	p := catalog.Product{Name: in.Name, Stock: in.Stock, Price: in.Price, CreatedAt: now, UpdatedAt: now}

	doc, err := executor.Execute(ctx, func(ctx context.Context) (store.Doc, error) {
		return s.Store.Create(ctx, namespace, catalog.CollectionProducts, catalog.MustMarshal(p))
	}, s.execOpts()...)
	if err != nil {
		return catalog.Product{}, err
	}
	p.ID = doc.ID
	return p, nil
}

// UpdateProduct is a plain read-modify-write, not a transaction: an edit
// racing the order transaction resolves last-write-wins at the document,
// while the order path still detects the moved version and retries.
func (s *Service) UpdateProduct(ctx context.Context, namespace, id string, in ProductInput) (catalog.Product, error) {
	if err := in.validate(); err != nil {
		return catalog.Product{}, err
	}
	return executor.Execute(ctx, func(ctx context.Context) (catalog.Product, error) {
		doc, err := s.Store.Get(ctx, namespace, catalog.CollectionProducts, id)
		if err != nil {
			return catalog.Product{}, err
		}
		p, err := catalog.DecodeProduct(doc)
		if err != nil {
			return catalog.Product{}, err
		}
		p.Name = in.Name
		p.Stock = in.Stock
		p.Price = in.Price
		p.UpdatedAt = time.Now().UTC()
		if _, err := s.Store.Update(ctx, namespace, catalog.CollectionProducts, id, catalog.MustMarshal(p)); err != nil {
			return catalog.Product{}, err
		}
		return p, nil
	}, s.execOpts()...)
}

func (s *Service) DeleteProduct(ctx context.Context, namespace, id string) error {
	_, err := executor.Execute(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.Store.Delete(ctx, namespace, catalog.CollectionProducts, id)
	}, s.execOpts()...)
	return err
}

// SimulateOrder picks a uniformly random product from the mirror and a
// quantity in [1,5], then places the order. With an empty mirror it is a
// no-op and returns (nil, nil).
func (s *Service) SimulateOrder(ctx context.Context, namespace string) (*catalog.Order, error) {
	products := s.Mirrors.Products(namespace)
	if len(products) == 0 {
		return nil, nil
	}
	pick := products[rand.IntN(len(products))]
	qty := 1 + rand.IntN(MaxSimulatedQty)
	return s.PlaceOrder(ctx, namespace, pick.ID, qty)
}

// PlaceOrder runs the core consistency transaction: the product read joins
// the read-set, the decremented stock and the new order commit together or
// not at all. Stock can never go negative; a shortage aborts with
// catalog.ErrInsufficientStock and no side effects.
func (s *Service) PlaceOrder(ctx context.Context, namespace, productID string, qty int) (*catalog.Order, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}
	return executor.Execute(ctx, func(ctx context.Context) (*catalog.Order, error) {
		var order *catalog.Order
		err := s.Store.RunTransaction(ctx, namespace, func(tx store.Tx) error {
			doc, err := tx.Get(catalog.CollectionProducts, productID)
			if err != nil {
				return err
			}
			p, err := catalog.DecodeProduct(doc)
			if err != nil {
				return err
			}
			newStock := p.Stock - qty
			if newStock < 0 {
				return fmt.Errorf("%w: product %s has %d, ordered %d",
					catalog.ErrInsufficientStock, productID, p.Stock, qty)
			}

			now := time.Now().UTC()
			p.Stock = newStock
			p.UpdatedAt = now
			tx.Update(catalog.CollectionProducts, productID, catalog.MustMarshal(p))

			o := catalog.Order{
				ProductID:   productID,
				ProductName: p.Name,
				Quantity:    qty,
				TotalPrice:  p.Price.Mul(decimal.NewFromInt(int64(qty))),
				Status:      catalog.StatusPending,
				OrderedAt:   now,
			}
			o.ID = tx.Create(catalog.CollectionOrders, catalog.MustMarshal(o))
			order = &o
			return nil
		})
		return order, err
	}, s.execOpts()...)
}

// FulfillOrder moves an order to FULFILLED. Already-fulfilled orders are left
// untouched so repeated and concurrent calls converge on the same state.
func (s *Service) FulfillOrder(ctx context.Context, namespace, orderID string) (*catalog.Order, error) {
	return executor.Execute(ctx, func(ctx context.Context) (*catalog.Order, error) {
		var order *catalog.Order
		err := s.Store.RunTransaction(ctx, namespace, func(tx store.Tx) error {
			doc, err := tx.Get(catalog.CollectionOrders, orderID)
			if err != nil {
				return err
			}
			o, err := catalog.DecodeOrder(doc)
			if err != nil {
				return err
			}
			if o.Status == catalog.StatusFulfilled {
				order = &o
				return nil
			}
			if !catalog.CanTransition(o.Status, catalog.StatusFulfilled) {
				return fmt.Errorf("%w: cannot fulfill order in status %s", ErrInvalidInput, o.Status)
			}
			now := time.Now().UTC()
			o.Status = catalog.StatusFulfilled
			o.FulfilledAt = &now
			tx.Update(catalog.CollectionOrders, orderID, catalog.MustMarshal(o))
			order = &o
			return nil
		})
		return order, err
	}, s.execOpts()...)
}
