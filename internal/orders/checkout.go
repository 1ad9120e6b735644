package orders

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joao-fontenele/pharmacy-orders/internal/cart"
	"github.com/joao-fontenele/pharmacy-orders/internal/catalog"
	"github.com/joao-fontenele/pharmacy-orders/internal/customers"
	"github.com/joao-fontenele/pharmacy-orders/internal/database"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
	"github.com/joao-fontenele/pharmacy-orders/internal/outbox"
	"github.com/joao-fontenele/pharmacy-orders/internal/telemetry"
)

const (
	sourceCart   = "cart"
	sourceDirect = "direct"
)

type CreateOrderRequest struct {
	Items    []LineRequest   `json:"items"`
	Delivery domain.Delivery `json:"delivery"`
}

// CartInvalidator drops a customer's cached cart after it has been consumed.
type CartInvalidator interface {
	Invalidate(ctx context.Context, customerID string)
}

// CheckoutEngine turns either a customer's OPEN cart or an explicit line list into an
// order. Validation, stock decrement, order creation and cart closing share one
// transaction.
type CheckoutEngine struct {
	db          *sql.DB
	customers   *customers.CustomerRepository
	carts       *cart.CartRepository
	products    *catalog.ProductRepository
	orders      *OrderRepository
	invalidator CartInvalidator
	metrics     *telemetry.DomainMetrics
	logger      *slog.Logger
}

func NewCheckoutEngine(db *sql.DB, invalidator CartInvalidator, metrics *telemetry.DomainMetrics, logger *slog.Logger) *CheckoutEngine {
	if metrics == nil {
		metrics = telemetry.NoopDomainMetrics()
	}
	return &CheckoutEngine{
		db:          db,
		customers:   customers.NewCustomerRepository(db),
		carts:       cart.NewCartRepository(db),
		products:    catalog.NewProductRepository(db),
		orders:      NewOrderRepository(db),
		invalidator: invalidator,
		metrics:     metrics,
		logger:      logger,
	}
}

// Checkout converts the caller's OPEN cart. A nil delivery means in-store pickup paid
// in cash.
func (e *CheckoutEngine) Checkout(ctx context.Context, email string, delivery *domain.Delivery) (*domain.OrderSummary, error) {
	customer, err := e.customers.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	d := domain.Delivery{Method: domain.DeliveryMethodPickup, PaymentMethod: domain.PaymentMethodCash}
	if delivery != nil {
		d = *delivery
	}
	if err := prepareDelivery(&d, customer); err != nil {
		return nil, err
	}

	var order *domain.Order
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		c, err := e.carts.WithTx(tx).LockOpenCart(ctx, customer.ID)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.InvalidState("no open cart to check out")
		}
		if len(c.Lines) == 0 {
			return domain.InvalidState("cart is empty")
		}

		order, err = e.place(ctx, tx, customer, cartCandidates(c.Lines), d, c.ID)
		return err
	})
	e.record(ctx, sourceCart, err)
	if err != nil {
		return nil, err
	}

	if e.invalidator != nil {
		e.invalidator.Invalidate(ctx, customer.ID)
	}

	e.logger.Info("cart checked out", "order_id", order.ID, "customer_id", customer.ID, "cart_id", order.CartID, "total", order.Total)
	summary := order.Summary()
	return &summary, nil
}

// CreateOrder places an order from explicit lines priced at the current catalog price.
func (e *CheckoutEngine) CreateOrder(ctx context.Context, email string, req CreateOrderRequest) (*domain.OrderSummary, error) {
	customer, err := e.customers.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	if len(req.Items) == 0 {
		return nil, domain.InvalidArgument("order must contain at least one item")
	}
	items := make([]LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return nil, domain.InvalidArgument("quantity for product %s must be at least 1", it.ProductID)
		}
		items = append(items, LineRequest{ProductID: normalizeID(it.ProductID), Quantity: it.Quantity})
	}

	d := req.Delivery
	if err := prepareDelivery(&d, customer); err != nil {
		return nil, err
	}

	var order *domain.Order
	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		order, err = e.place(ctx, tx, customer, mergeRequestLines(items), d, "")
		return err
	})
	e.record(ctx, sourceDirect, err)
	if err != nil {
		return nil, err
	}

	e.logger.Info("order created", "order_id", order.ID, "customer_id", customer.ID, "total", order.Total)
	summary := order.Summary()
	return &summary, nil
}

// place is shared by both entry points. Products are locked in id order and the whole
// plan is validated before the order row is written and any stock is decremented.
func (e *CheckoutEngine) place(ctx context.Context, tx *sql.Tx, customer *domain.Customer, cands []candidate, d domain.Delivery, cartID string) (*domain.Order, error) {
	products := e.products.WithTx(tx)
	orders := e.orders.WithTx(tx)

	locked, err := products.LockProducts(ctx, productIDs(cands))
	if err != nil {
		return nil, err
	}

	p, err := buildPlan(cands, locked, d.Method)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		CustomerID:    customer.ID,
		CustomerEmail: customer.Email,
		CartID:        cartID,
		Total:         p.Total,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Delivery:      d,
	}
	if err := orders.Insert(ctx, order); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, domain.InvalidState("cart %s was already checked out", cartID)
		}
		return nil, err
	}

	for i := range p.Lines {
		line := &p.Lines[i]
		if err := products.DecrementStock(ctx, line.ProductID, line.Quantity); err != nil {
			if errors.Is(err, catalog.ErrInsufficientStock) {
				return nil, domain.Errorf(domain.ErrInsufficientStock, "insufficient stock for %s", line.ProductName)
			}
			return nil, err
		}
		if err := orders.InsertLine(ctx, order.ID, line); err != nil {
			return nil, err
		}
	}
	order.Lines = p.Lines

	if cartID != "" {
		if err := e.carts.WithTx(tx).MarkCheckedOut(ctx, cartID); err != nil {
			return nil, err
		}
	}

	event := domain.NewOrderEvent(domain.TopicOrderCreated, order, "")
	if err := outbox.Insert(ctx, tx, event.EventID, event.Type, order.ID, event); err != nil {
		return nil, err
	}

	return order, nil
}

func (e *CheckoutEngine) record(ctx context.Context, source string, err error) {
	switch {
	case err == nil:
		e.metrics.Checkout(ctx, source, "success")
	case errors.Is(err, domain.ErrInsufficientStock):
		e.metrics.StockRejected(ctx)
		e.metrics.Checkout(ctx, source, "rejected")
	case errors.As(err, new(*domain.Error)):
		e.metrics.Checkout(ctx, source, "rejected")
	default:
		e.metrics.Checkout(ctx, source, "error")
	}
}

// prepareDelivery fills contact details from the customer profile when missing and
// validates the rest.
func prepareDelivery(d *domain.Delivery, customer *domain.Customer) error {
	if d.FullName == "" {
		d.FullName = customer.FullName
	}
	if d.Email == "" {
		d.Email = customer.Email
	}
	return d.Normalize()
}

func normalizeID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}
