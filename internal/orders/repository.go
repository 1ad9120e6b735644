package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/pharmacy-orders/internal/database"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

const orderColumns = `
	o.id, o.customer_id, c.email, o.cart_id, o.total, o.status, o.payment_status, o.shipping_status,
	o.full_name, o.delivery_email, o.delivery_phone, o.delivery_street, o.delivery_city, o.delivery_zip,
	o.delivery_method, o.payment_method, o.payment_provider, o.payment_reference,
	o.paid_at, o.total_paid, o.created_at, o.updated_at`

type OrderRepository struct {
	db database.DBTX
}

func NewOrderRepository(db database.DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithTx(tx *sql.Tx) *OrderRepository {
	return &OrderRepository{db: tx}
}

// Insert persists the order header and assigns its id. Lines are written separately
// with InsertLine.
func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	now := time.Now().UTC()
	o.ID = uuid.New().String()
	o.CreatedAt = now
	o.UpdatedAt = now

	var cartID sql.NullString
	if o.CartID != "" {
		cartID = sql.NullString{String: o.CartID, Valid: true}
	}

	d := o.Delivery
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (
			id, customer_id, cart_id, total, status, payment_status,
			full_name, delivery_email, delivery_phone, delivery_street, delivery_city, delivery_zip,
			delivery_method, payment_method, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15)
	`, o.ID, o.CustomerID, cartID, o.Total, o.Status, o.PaymentStatus,
		d.FullName, d.Email, d.Phone, d.Address.Street, d.Address.City, d.Address.Zip,
		d.Method, d.PaymentMethod, now)
	return err
}

func (r *OrderRepository) InsertLine(ctx context.Context, orderID string, l *domain.OrderLine) error {
	l.ID = uuid.New().String()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO order_lines (id, order_id, product_id, product_name, quantity, unit_price, unit_discount, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, l.ID, orderID, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice, l.UnitDiscount, l.LineTotal)
	return err
}

// Get returns nil, nil when the order does not exist.
func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, "")
}

// Lock is Get holding the order row lock until the transaction ends.
func (r *OrderRepository) Lock(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, "FOR UPDATE OF o")
}

func (r *OrderRepository) get(ctx context.Context, id, lock string) (*domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	o, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		WHERE o.id = $1
		`+lock, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := r.attachLines(ctx, map[string]*domain.Order{o.ID: o}, []string{o.ID}); err != nil {
		return nil, err
	}

	return o, nil
}

// UpdateState writes the mutable part of an order. Total and lines never change.
func (r *OrderRepository) UpdateState(ctx context.Context, o *domain.Order) error {
	o.UpdatedAt = time.Now().UTC()

	var shipping sql.NullString
	if o.ShippingStatus != "" {
		shipping = sql.NullString{String: string(o.ShippingStatus), Valid: true}
	}
	totalPaid := decimal.NullDecimal{}
	if o.TotalPaid != nil {
		totalPaid = decimal.NewNullDecimal(*o.TotalPaid)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, payment_status = $3, shipping_status = $4, payment_method = $5,
		    payment_provider = $6, payment_reference = $7, paid_at = $8, total_paid = $9, updated_at = $10
		WHERE id = $1
	`, o.ID, o.Status, o.PaymentStatus, shipping, o.Delivery.PaymentMethod,
		o.PaymentProvider, o.PaymentReference, o.PaidAt, totalPaid, o.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return domain.Errorf(domain.ErrPaymentVerificationFailed, "payment %s is already recorded on another order", o.PaymentReference)
		}
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.NotFound("order %s not found", o.ID)
	}
	return nil
}

// ReferenceUsed reports whether an order other than orderID carries the payment reference.
func (r *OrderRepository) ReferenceUsed(ctx context.Context, provider, reference, orderID string) (bool, error) {
	var used bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE payment_provider = $1 AND payment_reference = $2 AND id <> $3
		)
	`, provider, reference, orderID).Scan(&used)
	return used, err
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE o.customer_id = $1`, customerID)
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, "")
}

// list loads headers first and then every line in one query, newest orders first.
func (r *OrderRepository) list(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders o
		JOIN customers c ON c.id = o.customer_id
		`+where+`
		ORDER BY o.created_at DESC, o.id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orderMap[o.ID] = o
		orderIDs = append(orderIDs, o.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	if err := r.attachLines(ctx, orderMap, orderIDs); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

func (r *OrderRepository) attachLines(ctx context.Context, orderMap map[string]*domain.Order, orderIDs []string) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, id, product_id, product_name, quantity, unit_price, unit_discount, line_total
		FROM order_lines
		WHERE order_id = ANY($1::uuid[])
		ORDER BY product_name, id
	`, pq.Array(orderIDs))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for _, o := range orderMap {
		o.Lines = []domain.OrderLine{}
	}

	for rows.Next() {
		var orderID string
		var l domain.OrderLine
		if err := rows.Scan(&orderID, &l.ID, &l.ProductID, &l.ProductName, &l.Quantity,
			&l.UnitPrice, &l.UnitDiscount, &l.LineTotal); err != nil {
			return err
		}
		o := orderMap[orderID]
		o.Lines = append(o.Lines, l)
	}

	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o         domain.Order
		cartID    sql.NullString
		shipping  sql.NullString
		paidAt    sql.NullTime
		totalPaid decimal.NullDecimal
	)

	err := row.Scan(
		&o.ID, &o.CustomerID, &o.CustomerEmail, &cartID, &o.Total, &o.Status, &o.PaymentStatus, &shipping,
		&o.Delivery.FullName, &o.Delivery.Email, &o.Delivery.Phone,
		&o.Delivery.Address.Street, &o.Delivery.Address.City, &o.Delivery.Address.Zip,
		&o.Delivery.Method, &o.Delivery.PaymentMethod, &o.PaymentProvider, &o.PaymentReference,
		&paidAt, &totalPaid, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.CartID = cartID.String
	o.ShippingStatus = domain.ShippingStatus(shipping.String)
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	if totalPaid.Valid {
		d := totalPaid.Decimal
		o.TotalPaid = &d
	}

	return &o, nil
}
