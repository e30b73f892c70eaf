// Package inventory implements the stock reservation engine. All stock
// mutation in the system goes through Reserve and Release; nothing else
// writes the stock_quantity column.
package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/rakhadian/go-shop-orders/internal/domain"
	"github.com/rakhadian/go-shop-orders/internal/repository"
)

type Service struct {
	Products repository.ProductRepository
	Tx       repository.TxManager
	Log      *zap.Logger
}

func NewService(products repository.ProductRepository, tx repository.TxManager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Products: products, Tx: tx, Log: log}
}

// Reserve decrements stock for every requested item, all-or-nothing.
// The first missing/inactive product or insufficient quantity aborts the
// whole reservation with no stock changed. Runs in one transaction; when
// the caller already opened one, it joins it, so an order insert and its
// reservation commit together.
//
// Duplicate product ids are deliberately not merged: each entry gets its
// own availability check against stock already reduced by the previous
// entry, so cumulative demand is enforced at the boundary.
func (s *Service) Reserve(ctx context.Context, items []domain.ItemRequest) error {
	if err := validateItems(items); err != nil {
		return err
	}
	return s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, it := range items {
			p, err := s.Products.GetByID(ctx, it.ProductID)
			if err != nil {
				return err
			}
			if !p.IsActive {
				return &domain.NotFoundError{Kind: "product", ID: it.ProductID}
			}
			if err := s.Products.DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// Release credits every quantity back. A product deleted since the order
// was placed is skipped with a warning; restoring stock for it would be
// meaningless and must not fail the cancellation.
func (s *Service) Release(ctx context.Context, items []domain.ItemRequest) error {
	if err := validateItems(items); err != nil {
		return err
	}
	return s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		for _, it := range items {
			err := s.Products.IncrementStock(ctx, it.ProductID, it.Quantity)
			var nf *domain.NotFoundError
			if errors.As(err, &nf) {
				s.Log.Warn("skipping stock release for deleted product",
					zap.String("product_id", it.ProductID),
					zap.Int("quantity", it.Quantity))
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// LowStock lists products whose stock is below threshold. Pure read.
func (s *Service) LowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	if threshold < 0 {
		return nil, &domain.ConstraintError{Reason: "threshold must not be negative"}
	}
	return s.Products.ListBelowStock(ctx, threshold)
}

func validateItems(items []domain.ItemRequest) error {
	if len(items) == 0 {
		return &domain.ConstraintError{Reason: "at least one item is required"}
	}
	for _, it := range items {
		if it.ProductID == "" {
			return &domain.ConstraintError{Reason: "item product_id is required"}
		}
		if it.Quantity <= 0 {
			return &domain.ConstraintError{Reason: "item quantity must be positive"}
		}
	}
	return nil
}
