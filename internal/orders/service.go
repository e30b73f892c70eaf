// Package orders implements the order lifecycle: creation with price
// snapshots and stock reservation, status transitions, cancellation with
// stock release, and the read projections.
package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rakhadian/go-shop-orders/internal/domain"
	"github.com/rakhadian/go-shop-orders/internal/inventory"
	"github.com/rakhadian/go-shop-orders/internal/repository"
)

type Service struct {
	Orders    repository.OrderRepository
	Products  repository.ProductRepository
	Users     repository.UserRepository
	Inventory *inventory.Service
	Tx        repository.TxManager
}

func NewService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	users repository.UserRepository,
	inv *inventory.Service,
	tx repository.TxManager,
) *Service {
	return &Service{Orders: orders, Products: products, Users: users, Inventory: inv, Tx: tx}
}

// CreateOrder places an order: it resolves the user, snapshots each
// product's current price into a line item, computes the total, reserves
// stock and persists the order as PENDING. One transaction covers all of
// it; any failure leaves no order and no stock change behind.
//
// Repeated product ids stay independent line items with cumulative stock
// consumption. Malformed input is rejected before any store access.
func (s *Service) CreateOrder(ctx context.Context, userID, shippingAddress string, items []domain.ItemRequest) (*domain.Order, error) {
	if userID == "" {
		return nil, &domain.ConstraintError{Reason: "user_id is required"}
	}
	if len(items) == 0 {
		return nil, &domain.ConstraintError{Reason: "at least one item is required"}
	}
	for _, it := range items {
		if it.ProductID == "" {
			return nil, &domain.ConstraintError{Reason: "item product_id is required"}
		}
		if it.Quantity <= 0 {
			return nil, &domain.ConstraintError{Reason: fmt.Sprintf("invalid quantity %d for product %s", it.Quantity, it.ProductID)}
		}
	}
	if len(shippingAddress) > domain.MaxShippingAddressLen {
		return nil, &domain.ConstraintError{Reason: fmt.Sprintf("shipping address exceeds %d characters", domain.MaxShippingAddressLen)}
	}

	var order *domain.Order
	err := s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Users.GetByID(ctx, userID); err != nil {
			return err
		}

		lineItems := make([]domain.OrderItem, 0, len(items))
		total := decimal.Zero
		for _, it := range items {
			p, err := s.Products.GetByID(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if !p.IsActive {
				return &domain.NotFoundError{Kind: "product", ID: it.ProductID}
			}
			lineItems = append(lineItems, domain.OrderItem{
				ProductID: p.ID,
				Quantity:  it.Quantity,
				Price:     p.Price, // snapshot, never re-read
			})
			total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		}

		if err := s.Inventory.Reserve(ctx, items); err != nil {
			return err
		}

		o := &domain.Order{
			UserID:          userID,
			Status:          domain.StatusPending,
			TotalAmount:     total,
			ShippingAddress: shippingAddress,
			Items:           lineItems,
		}
		if err := s.Orders.Create(ctx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// UpdateOrderStatus overwrites the status with no transition table and no
// stock side effects. Cancellation must go through CancelOrder.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error) {
	if !status.Valid() {
		return nil, &domain.ConstraintError{Reason: fmt.Sprintf("unknown status %q", status)}
	}
	if err := s.Orders.UpdateStatus(ctx, orderID, status); err != nil {
		return nil, err
	}
	return s.Orders.GetByID(ctx, orderID)
}

// CancelOrder releases every line item's stock and marks the order
// CANCELLED, atomically. Only PENDING and CONFIRMED orders qualify; the
// total amount is left untouched.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var cancelled *domain.Order
	err := s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.Orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.Cancellable() {
			return &domain.InvalidTransitionError{OrderID: orderID, From: o.Status}
		}

		release := make([]domain.ItemRequest, 0, len(o.Items))
		for _, it := range o.Items {
			release = append(release, domain.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		if err := s.Inventory.Release(ctx, release); err != nil {
			return err
		}
		if err := s.Orders.UpdateStatus(ctx, orderID, domain.StatusCancelled); err != nil {
			return err
		}
		o.Status = domain.StatusCancelled
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (s *Service) GetOrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.Orders.GetByID(ctx, orderID)
}

func (s *Service) GetOrdersByUser(ctx context.Context, userID string, page repository.Page) ([]domain.Order, error) {
	return s.Orders.ListByUser(ctx, userID, page)
}

func (s *Service) GetOrdersByStatus(ctx context.Context, status domain.Status, page repository.Page) ([]domain.Order, error) {
	if !status.Valid() {
		return nil, &domain.ConstraintError{Reason: fmt.Sprintf("unknown status %q", status)}
	}
	return s.Orders.ListByStatus(ctx, status, page)
}

func (s *Service) GetOrdersBetweenDates(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	if to.Before(from) {
		return nil, &domain.ConstraintError{Reason: "end date precedes start date"}
	}
	return s.Orders.ListBetween(ctx, from, to)
}

func (s *Service) GetOrderCountByUser(ctx context.Context, userID string) (int64, error) {
	return s.Orders.CountByUser(ctx, userID)
}
