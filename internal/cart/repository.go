package cart

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joao-fontenele/pharmacy-orders/internal/database"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

type CartRepository struct {
	db database.DBTX
}

func NewCartRepository(db database.DBTX) *CartRepository {
	return &CartRepository{db: db}
}

func (r *CartRepository) WithTx(tx *sql.Tx) *CartRepository {
	return &CartRepository{db: tx}
}

// EnsureOpenCart creates the customer's OPEN cart unless one already exists. Concurrent
// callers race on the partial unique index and all but one insert become no-ops.
func (r *CartRepository) EnsureOpenCart(ctx context.Context, customerID string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO carts (id, customer_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (customer_id) WHERE status = 'OPEN' DO NOTHING
	`, uuid.New().String(), customerID, domain.CartStatusOpen, now)
	return err
}

// FindOpenCart returns nil, nil when the customer has no OPEN cart.
func (r *CartRepository) FindOpenCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	return r.openCart(ctx, customerID, "")
}

// LockOpenCart is FindOpenCart holding a row lock until the transaction ends.
func (r *CartRepository) LockOpenCart(ctx context.Context, customerID string) (*domain.Cart, error) {
	return r.openCart(ctx, customerID, "FOR UPDATE")
}

func (r *CartRepository) openCart(ctx context.Context, customerID, lock string) (*domain.Cart, error) {
	c := &domain.Cart{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status, created_at, updated_at
		FROM carts
		WHERE customer_id = $1 AND status = 'OPEN'
		`+lock, customerID).Scan(&c.ID, &c.CustomerID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	lines, err := r.ListLines(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Lines = lines

	return c, nil
}

func (r *CartRepository) ListLines(ctx context.Context, cartID string) ([]domain.CartLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.id, l.cart_id, l.product_id, p.name, l.quantity, l.unit_price, l.unit_discount,
		       l.line_total, l.created_at, l.updated_at
		FROM cart_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.cart_id = $1
		ORDER BY l.created_at, l.id
	`, cartID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lines := []domain.CartLine{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *l)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// FindLine returns nil, nil when the line does not exist.
func (r *CartRepository) FindLine(ctx context.Context, lineID string) (*domain.CartLine, error) {
	if _, err := uuid.Parse(lineID); err != nil {
		return nil, nil
	}

	l, err := scanLine(r.db.QueryRowContext(ctx, `
		SELECT l.id, l.cart_id, l.product_id, p.name, l.quantity, l.unit_price, l.unit_discount,
		       l.line_total, l.created_at, l.updated_at
		FROM cart_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.id = $1
	`, lineID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (r *CartRepository) InsertLine(ctx context.Context, line *domain.CartLine) error {
	now := time.Now().UTC()
	line.ID = uuid.New().String()
	line.CreatedAt = now
	line.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_lines (id, cart_id, product_id, quantity, unit_price, unit_discount, line_total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, line.ID, line.CartID, line.ProductID, line.Quantity, line.UnitPrice, line.UnitDiscount, line.LineTotal, now)
	return err
}

func (r *CartRepository) UpdateLine(ctx context.Context, line *domain.CartLine) error {
	line.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		UPDATE cart_lines
		SET quantity = $2, unit_price = $3, unit_discount = $4, line_total = $5, updated_at = $6
		WHERE id = $1
	`, line.ID, line.Quantity, line.UnitPrice, line.UnitDiscount, line.LineTotal, line.UpdatedAt)
	return err
}

func (r *CartRepository) DeleteLine(ctx context.Context, lineID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE id = $1`, lineID)
	return err
}

func (r *CartRepository) Touch(ctx context.Context, cartID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID)
	return err
}

// MarkCheckedOut consumes the cart: its lines are deleted and it leaves the OPEN state
// for good, which frees the customer's slot for a new lazy cart.
func (r *CartRepository) MarkCheckedOut(ctx context.Context, cartID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE cart_id = $1`, cartID); err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE carts SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'OPEN'
	`, cartID, domain.CartStatusCheckedOut)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.InvalidState("cart %s is not open", cartID)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLine(row rowScanner) (*domain.CartLine, error) {
	var l domain.CartLine
	if err := row.Scan(&l.ID, &l.CartID, &l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice,
		&l.UnitDiscount, &l.LineTotal, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return &l, nil
}
