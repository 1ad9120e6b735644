package orders

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/joao-fontenele/pharmacy-orders/internal/customers"
	"github.com/joao-fontenele/pharmacy-orders/internal/database"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
	"github.com/joao-fontenele/pharmacy-orders/internal/outbox"
	"github.com/joao-fontenele/pharmacy-orders/internal/telemetry"
)

// Mutation changes a locked order in place and returns the topic of the event to emit.
// An empty topic means nothing changed and nothing is written.
type Mutation func(o *domain.Order) (topic string, err error)

type Service struct {
	db          *sql.DB
	orders      *OrderRepository
	customers   *customers.CustomerRepository
	transitions TransitionTable
	metrics     *telemetry.DomainMetrics
	logger      *slog.Logger
}

func NewService(db *sql.DB, transitions TransitionTable, metrics *telemetry.DomainMetrics, logger *slog.Logger) *Service {
	if transitions == nil {
		transitions = MustDefaultTransitions()
	}
	if metrics == nil {
		metrics = telemetry.NoopDomainMetrics()
	}
	return &Service{
		db:          db,
		orders:      NewOrderRepository(db),
		customers:   customers.NewCustomerRepository(db),
		transitions: transitions,
		metrics:     metrics,
		logger:      logger,
	}
}

func (s *Service) FindOrder(ctx context.Context, id string) (*domain.Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, domain.NotFound("order %s not found", id)
	}
	return o, nil
}

// GetOrder hides orders of other customers behind NotFound.
func (s *Service) GetOrder(ctx context.Context, id, email string) (*domain.Order, error) {
	customer, err := s.customers.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	o, err := s.FindOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customer.ID {
		return nil, domain.NotFound("order %s not found", id)
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, email string) ([]domain.Order, error) {
	customer, err := s.customers.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}
	return s.orders.ListByCustomer(ctx, customer.ID)
}

func (s *Service) ListAllOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListAll(ctx)
}

func (s *Service) Allows(from, to domain.OrderStatus) bool {
	return s.transitions.Allows(from, to)
}

func (s *Service) ReferenceUsed(ctx context.Context, provider, reference, orderID string) (bool, error) {
	return s.orders.ReferenceUsed(ctx, provider, reference, orderID)
}

// ChangeStatus applies a staff-requested transition checked against the table.
func (s *Service) ChangeStatus(ctx context.Context, id, status string) (*domain.Order, error) {
	target, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	return s.Update(ctx, id, func(o *domain.Order) (string, error) {
		if err := s.transitions.Validate(o.Status, target); err != nil {
			return "", err
		}
		o.Status = target
		return domain.TopicOrderStatusChanged, nil
	})
}

// MarkPickupComplete closes a pickup order at hand-off. Cash is collected at the
// counter, so a cash order still awaiting payment is marked paid as well.
func (s *Service) MarkPickupComplete(ctx context.Context, id string) (*domain.Order, error) {
	return s.Update(ctx, id, func(o *domain.Order) (string, error) {
		if o.Delivery.Method != domain.DeliveryMethodPickup {
			return "", domain.InvalidState("order %s is not a pickup order", o.ID)
		}
		if o.Status.IsTerminal() {
			return "", domain.Errorf(domain.ErrInvalidTransition, "cannot move order to %s: %s is terminal", domain.OrderStatusCompleted, o.Status)
		}

		o.Status = domain.OrderStatusCompleted
		o.ShippingStatus = domain.ShippingStatusPickedUp
		if o.Delivery.PaymentMethod == domain.PaymentMethodCash && o.PaymentStatus == domain.PaymentStatusPending {
			o.MarkPaid(time.Now().UTC())
		}
		return domain.TopicOrderStatusChanged, nil
	})
}

// Update locks the order, applies fn and persists the result together with its event.
// When fn fails nothing is written.
func (s *Service) Update(ctx context.Context, id string, fn Mutation) (*domain.Order, error) {
	var (
		order    *domain.Order
		previous domain.OrderStatus
		topic    string
	)

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		orders := s.orders.WithTx(tx)

		o, err := orders.Lock(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return domain.NotFound("order %s not found", id)
		}

		previous = o.Status
		topic, err = fn(o)
		if err != nil {
			return err
		}
		order = o
		if topic == "" {
			return nil
		}

		if err := orders.UpdateState(ctx, o); err != nil {
			return err
		}

		event := domain.NewOrderEvent(topic, o, previous)
		return outbox.Insert(ctx, tx, event.EventID, event.Type, o.ID, event)
	})
	if err != nil {
		return nil, err
	}

	if previous != order.Status {
		s.metrics.Transition(ctx, string(previous), string(order.Status))
		s.logger.Info("order status changed", "order_id", order.ID, "from", previous, "to", order.Status)
	}
	return order, nil
}
