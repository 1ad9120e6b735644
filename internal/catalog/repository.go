package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/pharmacy-orders/internal/database"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

var ErrInsufficientStock = errors.New("insufficient stock")

const productColumns = `id, name, price, discount, stock, requires_prescription, updated_at`

type ProductRepository struct {
	db database.DBTX
}

func NewProductRepository(db database.DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) WithTx(tx *sql.Tx) *ProductRepository {
	return &ProductRepository{db: tx}
}

func (r *ProductRepository) ListAll(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// FindProduct returns nil, nil when the product does not exist.
func (r *ProductRepository) FindProduct(ctx context.Context, id string) (*domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	p, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// LockProducts row-locks the given products for the rest of the transaction. Rows are
// locked in id order so concurrent multi-product checkouts cannot deadlock. Missing ids
// are simply absent from the result.
func (r *ProductRepository) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	// Malformed ids cannot match a row; dropping them keeps the uuid cast from failing.
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			sorted = append(sorted, id)
		}
	}
	sort.Strings(sorted)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, pq.Array(sorted))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	products := make(map[string]domain.Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[p.ID] = *p
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// DecrementStock subtracts quantity only while enough stock remains. The check and
// the write are one statement, so concurrent callers can never drive stock negative.
func (r *ProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
	`, productID, quantity)
	if err != nil {
		return fmt.Errorf("decrement stock for %s: %w", productID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrInsufficientStock
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*domain.Product, error) {
	var p domain.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Discount, &p.Stock, &p.RequiresPrescription, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
