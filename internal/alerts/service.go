// Package alerts watches order traffic and raises low-stock events.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rakhadian/go-shop-orders/internal/inventory"
	kafkax "github.com/rakhadian/go-shop-orders/internal/kafka"
	"github.com/rakhadian/go-shop-orders/internal/orders"
	"github.com/rakhadian/go-shop-orders/internal/redisx"
)

type Service struct {
	Inventory   *inventory.Service
	Redis       *redis.Client
	Producer    *kafkax.Producer // publishes stock.low
	Threshold   int
	ServiceName string
	Log         *zap.Logger
}

// HandleOrderCreated runs as the consumer handler for order.created.
// After every order it re-evaluates the low-stock projection and alerts
// once per product per alert window.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCreated {
		return nil
	}

	// dedup on event_id so redelivery does not re-alert
	dkey := fmt.Sprintf(redisx.KeyDedup, "alerts", env.EventID)
	if exists, _ := redisx.Exists(ctx, s.Redis, dkey); exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	low, err := s.Inventory.LowStock(ctx, s.Threshold)
	if err != nil {
		return err
	}
	for _, p := range low {
		akey := fmt.Sprintf(redisx.KeyLowStockAlert, p.ID)
		if exists, _ := redisx.Exists(ctx, s.Redis, akey); exists {
			continue
		}
		_ = s.Redis.Set(ctx, akey, "1", redisx.TTLLowStockAlert).Err()

		s.Log.Info("low stock",
			zap.String("product_id", p.ID),
			zap.Int("stock", p.StockQuantity),
			zap.Int("threshold", s.Threshold))
		s.publishStockLow(p.ID, p.Name, p.StockQuantity, env.TraceID)
	}
	return nil
}

func (s *Service) publishStockLow(productID, name string, stock int, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockLow,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: productID,
		Payload: kafkax.MustMarshal(orders.StockLowPayload{
			ProductID: productID, Name: name, Stock: stock, Threshold: s.Threshold,
		}),
	}
	s.Producer.Publish([]byte(productID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockLow)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
