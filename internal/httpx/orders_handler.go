package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rakhadian/go-shop-orders/internal/domain"
	"github.com/rakhadian/go-shop-orders/internal/inventory"
	kafkax "github.com/rakhadian/go-shop-orders/internal/kafka"
	"github.com/rakhadian/go-shop-orders/internal/orders"
	"github.com/rakhadian/go-shop-orders/internal/redisx"
	"github.com/rakhadian/go-shop-orders/internal/repository"
)

type OrdersHandler struct {
	Orders    *orders.Service
	Inventory *inventory.Service

	// Optional collaborators; nil in tests.
	CreatedProducer   *kafkax.Producer
	CancelledProducer *kafkax.Producer
	Redis             *redis.Client
	Service           string
	Log               *zap.Logger
}

type createOrderReq struct {
	UserID          string               `json:"user_id"`
	ShippingAddress string               `json:"shipping_address,omitempty"`
	Items           []domain.ItemRequest `json:"items"`
}

type updateStatusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrdersByStatus)
	r.Get("/orders/report", h.ordersBetweenDates)
	r.Get("/orders/{id}", h.getOrder)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/users/{id}/orders", h.listOrdersByUser)
	r.Get("/users/{id}/orders/count", h.orderCountByUser)
	r.Get("/products", h.listProducts)
	r.Get("/products/low-stock", h.lowStock)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the domain error taxonomy onto transport codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		nf *domain.NotFoundError
		is *domain.InsufficientStockError
		it *domain.InvalidTransitionError
		cv *domain.ConstraintError
	)
	switch {
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": nf.Error()})
	case errors.As(err, &is):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      is.Error(),
			"product_id": is.ProductID,
			"requested":  is.Requested,
			"available":  is.Available,
		})
	case errors.As(err, &it):
		writeJSON(w, http.StatusConflict, map[string]string{"error": it.Error()})
	case errors.As(err, &cv):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": cv.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func pageFrom(r *http.Request) repository.Page {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return repository.Page{Limit: limit, Offset: offset}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CreateOrder(ctx, req.UserID, req.ShippingAddress, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cacheOrder(ctx, o)
	h.publishOrderEvent(h.CreatedProducer, orders.EventOrderCreated, o,
		r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first, DB is the source of truth
	if h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.Orders.GetOrderByID(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheOrder(ctx, o)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req updateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateOrderStatus(ctx, orderID, domain.Status(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}
	h.dropOrderCache(ctx, orderID)
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CancelOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}

	h.dropOrderCache(ctx, orderID)
	h.publishOrderEvent(h.CancelledProducer, orders.EventOrderCancelled, o,
		r.Header.Get("X-Request-Id"))

	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) listOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	out, err := h.Orders.GetOrdersByUser(r.Context(), userID, pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) orderCountByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	n, err := h.Orders.GetOrderCountByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *OrdersHandler) listOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status query parameter is required"})
		return
	}

	out, err := h.Orders.GetOrdersByStatus(r.Context(), domain.Status(status), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) ordersBetweenDates(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid from date, want RFC3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid to date, want RFC3339"})
		return
	}

	out, err := h.Orders.GetOrdersBetweenDates(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	out, err := h.Inventory.Products.ListActive(r.Context(), pageFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	threshold, err := strconv.Atoi(r.URL.Query().Get("threshold"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid threshold"})
		return
	}

	out, err := h.Inventory.LowStock(r.Context(), threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) cacheOrder(ctx context.Context, o *domain.Order) {
	if h.Redis == nil {
		return
	}
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) dropOrderCache(ctx context.Context, orderID string) {
	if h.Redis == nil {
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
}

func (h *OrdersHandler) publishOrderEvent(p *kafkax.Producer, eventType string, o *domain.Order, traceID string) {
	if p == nil {
		return
	}
	items := make([]orders.EventItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orders.EventItem{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	var payload []byte
	switch eventType {
	case orders.EventOrderCreated:
		payload = kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID: o.ID, UserID: o.UserID, Items: items, TotalAmount: o.TotalAmount,
		})
	case orders.EventOrderCancelled:
		payload = kafkax.MustMarshal(orders.OrderCancelledPayload{
			OrderID: o.ID, UserID: o.UserID, Items: items,
		})
	default:
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       traceID,
		CorrelationID: o.ID,
		Payload:       payload,
	}
	p.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
