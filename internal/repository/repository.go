package repository

import (
	"context"
	"time"

	"github.com/rakhadian/go-shop-orders/internal/domain"
)

// Page bounds list queries. Zero limit falls back to the default.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page into valid bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ProductRepository owns product records. Stock is mutated only through
// DecrementStock/IncrementStock so the check-and-write stays serialized
// per product inside the ambient transaction.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	ListActive(ctx context.Context, p Page) ([]domain.Product, error)
	ListBelowStock(ctx context.Context, threshold int) ([]domain.Product, error)

	// DecrementStock subtracts qty from the product's stock only when
	// enough is available. Returns *domain.InsufficientStockError when
	// short, *domain.NotFoundError when the product does not exist.
	DecrementStock(ctx context.Context, id string, qty int) error

	// IncrementStock adds qty back. *domain.NotFoundError when absent.
	IncrementStock(ctx context.Context, id string, qty int) error
}

// OrderRepository owns orders and their line items. Create assigns the
// order id, item ids and server-side timestamps.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, s domain.Status) error
	ListByUser(ctx context.Context, userID string, p Page) ([]domain.Order, error)
	ListByStatus(ctx context.Context, s domain.Status, p Page) ([]domain.Order, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
}

// UserRepository is the user directory; only existence is consumed here.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// TxManager runs fn inside one transaction. Any error from fn rolls back
// every store write made through the ctx it passes down.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
