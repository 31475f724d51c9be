// The simulator generates concurrent order load against one principal's
// catalog: it keeps its own mirror consumer group, seeds a few products when
// the catalog is empty, and then hammers SimulateOrder from several workers.
// Useful for watching contention, retries and stock rejections live.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/config"
	"github.com/pyoush/e-commerce-hooks-store/internal/inventory"
	kafkax "github.com/pyoush/e-commerce-hooks-store/internal/kafka"
	"github.com/pyoush/e-commerce-hooks-store/internal/mirror"
	"github.com/pyoush/e-commerce-hooks-store/internal/postgres"
	"github.com/pyoush/e-commerce-hooks-store/internal/redisx"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	namespace := getenv("SIM_NAMESPACE", "demo")
	workers := mustAtoi(os.Getenv("SIM_WORKERS"), "8")
	interval := time.Duration(mustAtoi(os.Getenv("SIM_INTERVAL_MS"), "500")) * time.Millisecond
	group := getenv("SIM_GROUP", cfg.ServiceName+"-simulator")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PGMaxConns)
	if err != nil {
		slog.Error("db connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pProducts := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicProductsFeed, 1024)
	pProducts.Start(ctx)
	pOrders := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicOrdersFeed, 1024)
	pOrders.Start(ctx)
	feed := &kafkax.Feed{Products: pProducts, Orders: pOrders, Service: group}

	st := postgres.NewStore(pool, feed.Notify)

	sync := mirror.NewSynchronizer(rdb, group)
	for _, topic := range []string{catalog.TopicProductsFeed, catalog.TopicOrdersFeed} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, topic, 2)
		go func(topic string) {
			if err := cons.Start(ctx, sync.HandleFeed); err != nil {
				slog.Error("feed consumer exited", "topic", topic, "error", err)
				cancel()
			}
		}(topic)
	}

	svc := &inventory.Service{Store: st, Mirrors: sync}

	if err := seed(ctx, svc, st, namespace); err != nil {
		slog.Error("seeding failed", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					order, err := svc.SimulateOrder(gctx, namespace)
					switch {
					case errors.Is(err, catalog.ErrInsufficientStock):
						slog.Info("order rejected", "reason", "insufficient stock")
					case err != nil:
						slog.Error("order failed", "error", err)
					case order == nil:
						slog.Info("catalog empty, nothing to order")
					default:
						slog.Info("order committed",
							"order_id", order.ID, "product", order.ProductName,
							"qty", order.Quantity, "total", order.TotalPrice)
					}
				}
			}
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down simulator")
	cancel()
	_ = g.Wait()
	pProducts.Close()
	pOrders.Close()
	pProducts.WaitClosed()
	pOrders.WaitClosed()
}

// seed fills an empty catalog so the simulation has something to sell.
func seed(ctx context.Context, svc *inventory.Service, st *postgres.Store, namespace string) error {
	docs, err := st.List(ctx, namespace, catalog.CollectionProducts)
	if err != nil {
		return err
	}
	if len(docs) > 0 {
		return nil
	}
	samples := []inventory.ProductInput{
		{Name: "Mechanical Keyboard", Stock: 40, Price: decimal.RequireFromString("89.90")},
		{Name: "USB-C Hub", Stock: 25, Price: decimal.RequireFromString("34.50")},
		{Name: "Webcam Cover", Stock: 12, Price: decimal.RequireFromString("3.99")},
	}
	for _, in := range samples {
		if _, err := svc.CreateProduct(ctx, namespace, in); err != nil {
			return err
		}
	}
	slog.Info("seeded catalog", "products", len(samples), "namespace", namespace)
	return nil
}
