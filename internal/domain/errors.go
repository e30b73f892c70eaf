package domain

import "fmt"

// NotFoundError reports a missing user, product or order.
type NotFoundError struct {
	Kind string // "user" | "product" | "order"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InsufficientStockError is the normal business outcome when a
// reservation cannot be satisfied. It names the first offending product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// InvalidTransitionError is returned when cancellation is attempted on
// an order that is no longer cancellable.
type InvalidTransitionError struct {
	OrderID string
	From    Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot be cancelled from status %s", e.OrderID, e.From)
}

// ConstraintError rejects malformed input before any store access.
type ConstraintError struct {
	Reason string
}

func (e *ConstraintError) Error() string { return e.Reason }
