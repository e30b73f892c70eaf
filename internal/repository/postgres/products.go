package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rakhadian/go-shop-orders/internal/domain"
	"github.com/rakhadian/go-shop-orders/internal/repository"
)

type ProductRepo struct {
	Pool *pgxpool.Pool
}

var _ repository.ProductRepository = (*ProductRepo)(nil)

const productCols = `id, name, price, stock_quantity, is_active, created_at, updated_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(q(ctx, r.Pool).QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "product", ID: id}
	}
	return p, err
}

func (r *ProductRepo) ListActive(ctx context.Context, page repository.Page) ([]domain.Product, error) {
	page = page.Normalize()
	rows, err := q(ctx, r.Pool).Query(ctx,
		`SELECT `+productCols+` FROM products WHERE is_active ORDER BY name LIMIT $1 OFFSET $2`,
		page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *ProductRepo) ListBelowStock(ctx context.Context, threshold int) ([]domain.Product, error) {
	rows, err := q(ctx, r.Pool).Query(ctx,
		`SELECT `+productCols+` FROM products WHERE stock_quantity < $1 ORDER BY stock_quantity`,
		threshold)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// DecrementStock locks the product row, verifies availability, then
// subtracts. Ambient transaction required for the all-or-nothing
// guarantee across a multi-item reservation.
func (r *ProductRepo) DecrementStock(ctx context.Context, id string, qty int) error {
	db := q(ctx, r.Pool)
	var stock int
	err := db.QueryRow(ctx,
		`SELECT stock_quantity FROM products WHERE id=$1 FOR UPDATE`, id).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.NotFoundError{Kind: "product", ID: id}
	}
	if err != nil {
		return err
	}
	if stock < qty {
		return &domain.InsufficientStockError{ProductID: id, Requested: qty, Available: stock}
	}
	_, err = db.Exec(ctx,
		`UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = now() WHERE id=$1`,
		id, qty)
	return err
}

func (r *ProductRepo) IncrementStock(ctx context.Context, id string, qty int) error {
	ct, err := q(ctx, r.Pool).Exec(ctx,
		`UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = now() WHERE id=$1`,
		id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return &domain.NotFoundError{Kind: "product", ID: id}
	}
	return nil
}
