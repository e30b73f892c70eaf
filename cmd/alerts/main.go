package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rakhadian/go-shop-orders/internal/alerts"
	"github.com/rakhadian/go-shop-orders/internal/config"
	"github.com/rakhadian/go-shop-orders/internal/inventory"
	kafkax "github.com/rakhadian/go-shop-orders/internal/kafka"
	"github.com/rakhadian/go-shop-orders/internal/orders"
	"github.com/rakhadian/go-shop-orders/internal/redisx"
	"github.com/rakhadian/go-shop-orders/internal/repository/postgres"
)

func main() {
	_ = godotenv.Load()

	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pLow := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockLow, 1024, log)
	pLow.Start(ctx)

	inv := inventory.NewService(&postgres.ProductRepo{Pool: pool}, postgres.NewTxManager(pool), log)
	svc := &alerts.Service{
		Inventory:   inv,
		Redis:       rdb,
		Producer:    pLow,
		Threshold:   cfg.LowStockThreshold,
		ServiceName: cfg.ServiceName + "-alerts",
		Log:         log,
	}

	group := getenv("ALERTS_GROUP", "stock-alerts")
	workers := mustAtoi(os.Getenv("ALERTS_WORKERS"), 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderCreated, workers, log)

	go func() {
		log.Info("alerts consumer started",
			zap.String("group", group),
			zap.String("topic", orders.TopicOrderCreated),
			zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleOrderCreated); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down consumer")
	cancel()
	time.Sleep(500 * time.Millisecond)
	pLow.Close()
	pLow.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
