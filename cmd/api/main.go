package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pyoush/e-commerce-hooks-store/internal/catalog"
	"github.com/pyoush/e-commerce-hooks-store/internal/config"
	"github.com/pyoush/e-commerce-hooks-store/internal/httpx"
	"github.com/pyoush/e-commerce-hooks-store/internal/identity"
	"github.com/pyoush/e-commerce-hooks-store/internal/inventory"
	kafkax "github.com/pyoush/e-commerce-hooks-store/internal/kafka"
	"github.com/pyoush/e-commerce-hooks-store/internal/mirror"
	"github.com/pyoush/e-commerce-hooks-store/internal/postgres"
	"github.com/pyoush/e-commerce-hooks-store/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
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

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis unreachable", "error", err)
		os.Exit(1)
	}

	// Change feed producers, one per collection topic.
	pProducts := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicProductsFeed, 1024)
	pProducts.Start(ctx)
	pOrders := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicOrdersFeed, 1024)
	pOrders.Start(ctx)
	feed := &kafkax.Feed{Products: pProducts, Orders: pOrders, Service: cfg.ServiceName}

	st := postgres.NewStore(pool, feed.Notify)

	// Synchronizer consumes both feed topics into per-principal mirrors.
	sync := mirror.NewSynchronizer(rdb, cfg.FeedGroup)
	for _, topic := range []string{catalog.TopicProductsFeed, catalog.TopicOrdersFeed} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.FeedGroup, topic, cfg.FeedWorkers)
		go func(topic string) {
			slog.Info("feed consumer started", "topic", topic, "group", cfg.FeedGroup)
			if err := cons.Start(ctx, sync.HandleFeed); err != nil {
				slog.Error("feed consumer exited", "topic", topic, "error", err)
				cancel()
			}
		}(topic)
	}

	svc := &inventory.Service{Store: st, Mirrors: sync}
	ident := &identity.Provider{Redis: rdb}

	router := httpx.NewRouter()
	h := &httpx.Handler{Service: svc, Mirrors: sync, Identity: ident}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		slog.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("listen failed", "error", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pProducts.Close()
	pOrders.Close()
	cancel()
	pProducts.WaitClosed()
	pOrders.WaitClosed()
}
