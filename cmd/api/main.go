package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/rakhadian/go-shop-orders/internal/config"
	"github.com/rakhadian/go-shop-orders/internal/httpx"
	"github.com/rakhadian/go-shop-orders/internal/inventory"
	kafkax "github.com/rakhadian/go-shop-orders/internal/kafka"
	"github.com/rakhadian/go-shop-orders/internal/orders"
	"github.com/rakhadian/go-shop-orders/internal/redisx"
	"github.com/rakhadian/go-shop-orders/internal/repository"
	"github.com/rakhadian/go-shop-orders/internal/repository/postgres"
)

func main() {
	_ = godotenv.Load()

	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		products repository.ProductRepository
		orderSt  repository.OrderRepository
		users    repository.UserRepository
		tx       repository.TxManager
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := repository.NewMemoryStore()
		products, orderSt, users, tx = mem.Products(), mem.Orders(), mem.Users(), mem
	default:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		products = &postgres.ProductRepo{Pool: pool}
		orderSt = &postgres.OrderRepo{Pool: pool}
		users = &postgres.UserRepo{Pool: pool}
		tx = postgres.NewTxManager(pool)
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	pCreated.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCancelled, 1024, log)
	pCancelled.Start(ctx)

	inv := inventory.NewService(products, tx, log)
	svc := orders.NewService(orderSt, products, users, inv, tx)

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Orders:            svc,
		Inventory:         inv,
		CreatedProducer:   pCreated,
		CancelledProducer: pCancelled,
		Redis:             rdb,
		Service:           cfg.ServiceName,
		Log:               log,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// close inboxes before cancelling so the loops flush and exit
	pCreated.Close()
	pCancelled.Close()
	pCreated.WaitClosed()
	pCancelled.WaitClosed()
}
