package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/executor"
	"github.com/pyoush/e-commerce-hooks-store/internal/metrics"
	"github.com/pyoush/e-commerce-hooks-store/internal/mirror"
	"github.com/pyoush/e-commerce-hooks-store/internal/store"
)

// newRig wires the service to an in-memory store whose change feed loops
// straight back into the synchronizer, so mirrors and metrics track every
// committed mutation without a broker.
func newRig(t *testing.T, extra ...executor.Option) (*Service, *mirror.Synchronizer) {
	t.Helper()
	feed := mirror.NewSynchronizer(nil, "test")
	mem := store.NewMemory(feed.Loopback("test"))
	opts := append([]executor.Option{executor.WithBaseDelay(time.Millisecond)}, extra...)
	return &Service{Store: mem, Mirrors: feed, RetryOpts: opts}, feed
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateProduct_Validation(t *testing.T) {
	svc, _ := newRig(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "", Stock: 1, Price: price("1")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: -1, Price: price("1")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 1, Price: price("-1")})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCreateProduct_AppearsInMirror(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 10, Price: price("2.00")})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	products := feed.Products("alice")
	require.Len(t, products, 1)
	assert.Equal(t, p.ID, products[0].ID)
	assert.Equal(t, 10, products[0].Stock)
	assert.Empty(t, feed.Products("bob"))
}

func TestUpdateProduct(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 10, Price: price("2.00")})
	require.NoError(t, err)

	upd, err := svc.UpdateProduct(ctx, "alice", p.ID, ProductInput{Name: "Widget v2", Stock: 4, Price: price("3.50")})
	require.NoError(t, err)
	assert.Equal(t, "Widget v2", upd.Name)
	assert.Equal(t, 4, upd.Stock)

	products := feed.Products("alice")
	require.Len(t, products, 1)
	assert.Equal(t, "Widget v2", products[0].Name)

	_, err = svc.UpdateProduct(ctx, "alice", "no-such-id", ProductInput{Name: "X", Stock: 1, Price: price("1")})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteProduct(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 10, Price: price("2.00")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProduct(ctx, "alice", p.ID))
	assert.Empty(t, feed.Products("alice"))

	assert.ErrorIs(t, svc.DeleteProduct(ctx, "alice", p.ID), store.ErrNotFound)
}

func TestPlaceOrder_DecrementsStockAndCreatesOrder(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 10, Price: price("2.00")})
	require.NoError(t, err)

	o, err := svc.PlaceOrder(ctx, "alice", p.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, p.ID, o.ProductID)
	assert.Equal(t, "Widget", o.ProductName)
	assert.Equal(t, 3, o.Quantity)
	assert.Equal(t, catalog.StatusPending, o.Status)
	assert.True(t, o.TotalPrice.Equal(price("6.00")))
	assert.Nil(t, o.FulfilledAt)

	products := feed.Products("alice")
	require.Len(t, products, 1)
	assert.Equal(t, 7, products[0].Stock)

	orders := feed.Orders("alice")
	require.Len(t, orders, 1)
	assert.Equal(t, o.ID, orders[0].ID)
}

func TestPlaceOrder_InsufficientStockLeavesNoTrace(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 2, Price: price("2.00")})
	require.NoError(t, err)

	o, err := svc.PlaceOrder(ctx, "alice", p.ID, 5)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Nil(t, o)

	products := feed.Products("alice")
	require.Len(t, products, 1)
	assert.Equal(t, 2, products[0].Stock)
	assert.Empty(t, feed.Orders("alice"))
}

func TestPlaceOrder_ExactStockDrainsToZero(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 5, Price: price("1.00")})
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, "alice", p.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, feed.Products("alice")[0].Stock)

	_, err = svc.PlaceOrder(ctx, "alice", p.ID, 1)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
}

func TestPlaceOrder_UnknownProduct(t *testing.T) {
	svc, _ := newRig(t)

	_, err := svc.PlaceOrder(context.Background(), "alice", "no-such-id", 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPlaceOrder_RejectsBadQuantity(t *testing.T) {
	svc, _ := newRig(t)

	_, err := svc.PlaceOrder(context.Background(), "alice", "whatever", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestFulfillOrder(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 10, Price: price("2.00")})
	require.NoError(t, err)
	o, err := svc.PlaceOrder(ctx, "alice", p.ID, 3)
	require.NoError(t, err)

	before, ok := feed.Metrics(ctx, "alice")
	require.True(t, ok)
	assert.True(t, before.TotalRevenue.IsZero())
	assert.Equal(t, 1, before.PendingOrders)

	f, err := svc.FulfillOrder(ctx, "alice", o.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusFulfilled, f.Status)
	require.NotNil(t, f.FulfilledAt)

	after, ok := feed.Metrics(ctx, "alice")
	require.True(t, ok)
	assert.True(t, after.TotalRevenue.Equal(price("6.00")))
	assert.Equal(t, 0, after.PendingOrders)

	_, err = svc.FulfillOrder(ctx, "alice", "no-such-id")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFulfillOrder_Idempotent(t *testing.T) {
	svc, _ := newRig(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 10, Price: price("2.00")})
	require.NoError(t, err)
	o, err := svc.PlaceOrder(ctx, "alice", p.ID, 1)
	require.NoError(t, err)

	first, err := svc.FulfillOrder(ctx, "alice", o.ID)
	require.NoError(t, err)
	second, err := svc.FulfillOrder(ctx, "alice", o.ID)
	require.NoError(t, err)

	assert.Equal(t, catalog.StatusFulfilled, second.Status)
	require.NotNil(t, second.FulfilledAt)
	assert.True(t, first.FulfilledAt.Equal(*second.FulfilledAt))
}

func TestSimulateOrder_EmptyCatalogIsNoOp(t *testing.T) {
	svc, _ := newRig(t)

	o, err := svc.SimulateOrder(context.Background(), "alice")
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestSimulateOrder_QuantityWithinBounds(t *testing.T) {
	svc, _ := newRig(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 1000, Price: price("1.00")})
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		o, err := svc.SimulateOrder(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, o)
		assert.GreaterOrEqual(t, o.Quantity, 1)
		assert.LessOrEqual(t, o.Quantity, MaxSimulatedQty)
	}
}

// Concurrent orders against one product must never oversell: every committed
// order got real stock, every shortage aborts cleanly, and the decrements add
// up exactly.
func TestPlaceOrder_ConcurrentNoOversell(t *testing.T) {
	svc, _ := newRig(t, executor.WithMaxAttempts(25), executor.WithBaseDelay(50*time.Microsecond))
	ctx := context.Background()

	const initial = 20
	p, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: initial, Price: price("1.00")})
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	var committedQty atomic.Int64
	errs := make(chan error, workers)

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		qty := 1 + i%3
		go func(qty int) {
			defer wg.Done()
			o, err := svc.PlaceOrder(ctx, "alice", p.ID, qty)
			if err != nil {
				errs <- err
				return
			}
			committedQty.Add(int64(o.Quantity))
		}(qty)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	}

	// assert against the store directly: the loopback feed delivers snapshots
	// outside the commit lock, so the mirror can trail briefly under load
	pdocs, err := svc.Store.List(ctx, "alice", catalog.CollectionProducts)
	require.NoError(t, err)
	products, err := catalog.DecodeProducts(pdocs)
	require.NoError(t, err)
	final := products[p.ID].Stock
	assert.GreaterOrEqual(t, final, 0)
	assert.Equal(t, int64(initial-final), committedQty.Load())

	odocs, err := svc.Store.List(ctx, "alice", catalog.CollectionOrders)
	require.NoError(t, err)
	orders, err := catalog.DecodeOrders(odocs)
	require.NoError(t, err)
	var ordered int64
	for _, o := range orders {
		ordered += int64(o.Quantity)
	}
	assert.Equal(t, committedQty.Load(), ordered)
}

// Metrics derived from the mirror must agree with a recompute straight off
// the store.
func TestMetrics_AgreeWithStore(t *testing.T) {
	svc, feed := newRig(t)
	ctx := context.Background()

	p1, err := svc.CreateProduct(ctx, "alice", ProductInput{Name: "Widget", Stock: 10, Price: price("2.00")})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, "alice", ProductInput{Name: "Gadget", Stock: 3, Price: price("5.00")})
	require.NoError(t, err)

	o, err := svc.PlaceOrder(ctx, "alice", p1.ID, 2)
	require.NoError(t, err)
	_, err = svc.FulfillOrder(ctx, "alice", o.ID)
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, "alice", p1.ID, 1)
	require.NoError(t, err)

	live, ok := feed.Metrics(ctx, "alice")
	require.True(t, ok)

	pdocs, err := svc.Store.List(ctx, "alice", catalog.CollectionProducts)
	require.NoError(t, err)
	odocs, err := svc.Store.List(ctx, "alice", catalog.CollectionOrders)
	require.NoError(t, err)
	products, err := catalog.DecodeProducts(pdocs)
	require.NoError(t, err)
	orders, err := catalog.DecodeOrders(odocs)
	require.NoError(t, err)

	var ps []catalog.Product
	for _, p := range products {
		ps = append(ps, p)
	}
	var os []catalog.Order
	for _, o := range orders {
		os = append(os, o)
	}
	recomputed := metrics.Compute(ps, os)

	assert.True(t, live.TotalRevenue.Equal(recomputed.TotalRevenue))
	assert.True(t, live.TotalStockValue.Equal(recomputed.TotalStockValue))
	assert.Equal(t, recomputed.PendingOrders, live.PendingOrders)
	assert.Equal(t, recomputed.LowStockProducts, live.LowStockProducts)
}
