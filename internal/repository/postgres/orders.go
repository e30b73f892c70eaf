package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rakhadian/go-shop-orders/internal/domain"
	"github.com/rakhadian/go-shop-orders/internal/repository"
)

type OrderRepo struct {
	Pool *pgxpool.Pool
}

var _ repository.OrderRepository = (*OrderRepo)(nil)

const orderCols = `id, user_id, status, total_amount, shipping_address, created_at, updated_at`

func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	db := q(ctx, r.Pool)
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	err := db.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, status, total_amount, shipping_address)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		o.ID, o.UserID, o.Status, o.TotalAmount, o.ShippingAddress,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return err
	}
	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		_, err = db.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4, $5)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.Price)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	db := q(ctx, r.Pool)
	var o domain.Order
	err := db.QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}
	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return &o, nil
}

func (r *OrderRepo) UpdateStatus(ctx context.Context, id string, s domain.Status) error {
	ct, err := q(ctx, r.Pool).Exec(ctx,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, s)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: "order", ID: id}
	}
	return nil
}

func (r *OrderRepo) ListByUser(ctx context.Context, userID string, page repository.Page) ([]domain.Order, error) {
	page = page.Normalize()
	rows, err := q(ctx, r.Pool).Query(ctx,
		`SELECT `+orderCols+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *OrderRepo) ListByStatus(ctx context.Context, s domain.Status, page repository.Page) ([]domain.Order, error) {
	page = page.Normalize()
	rows, err := q(ctx, r.Pool).Query(ctx,
		`SELECT `+orderCols+` FROM orders WHERE status=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		s, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *OrderRepo) ListBetween(ctx context.Context, from, to time.Time) ([]domain.Order, error) {
	rows, err := q(ctx, r.Pool).Query(ctx,
		`SELECT `+orderCols+` FROM orders WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC`,
		from, to)
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *OrderRepo) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q(ctx, r.Pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id=$1`, userID).Scan(&n)
	return n, err
}

func (r *OrderRepo) collect(ctx context.Context, rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var out []domain.Order
	var ids []string
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmount, &o.ShippingAddress,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = items[out[i].ID]
	}
	return out, nil
}

func (r *OrderRepo) loadItems(ctx context.Context, orderIDs []string) (map[string][]domain.OrderItem, error) {
	rows, err := q(ctx, r.Pool).Query(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items WHERE order_id = ANY($1)`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byOrder := make(map[string][]domain.OrderItem, len(orderIDs))
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	return byOrder, rows.Err()
}
