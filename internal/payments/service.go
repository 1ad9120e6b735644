package payments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
	"github.com/joao-fontenele/pharmacy-orders/internal/orders"
	"github.com/joao-fontenele/pharmacy-orders/internal/telemetry"
)

const (
	ProviderStripe = "STRIPE"
	ProviderCash   = "CASH"
	ProviderManual = "MANUAL"

	DefaultCurrency          = "usd"
	DefaultTemporaryCurrency = "ars"
	MinTemporaryAmountMinor  = 50
)

// OrderStore is the slice of the order service payments depend on.
type OrderStore interface {
	FindOrder(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, id string, fn orders.Mutation) (*domain.Order, error)
	Allows(from, to domain.OrderStatus) bool
	// ReferenceUsed reports whether another order already recorded this payment.
	ReferenceUsed(ctx context.Context, provider, reference, orderID string) (bool, error)
}

type CustomerFinder interface {
	FindByEmail(ctx context.Context, email string) (*domain.Customer, error)
}

type Service struct {
	orders    OrderStore
	customers CustomerFinder
	gateway   Gateway
	metrics   *telemetry.DomainMetrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(orders OrderStore, customers CustomerFinder, gateway Gateway, metrics *telemetry.DomainMetrics, logger *slog.Logger) *Service {
	if metrics == nil {
		metrics = telemetry.NoopDomainMetrics()
	}
	return &Service{
		orders:    orders,
		customers: customers,
		gateway:   gateway,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ConfirmPayment marks an order paid. Card payments are verified with the provider
// before any write; cash and manual confirmations are trusted but reserved for staff.
// Confirming an already paid order returns it unchanged.
func (s *Service) ConfirmPayment(ctx context.Context, email, orderID, reference, provider string) (*domain.Order, error) {
	caller, err := s.resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	provider = strings.ToUpper(strings.TrimSpace(provider))
	if provider == "" {
		provider = ProviderStripe
	}
	verifying := provider == ProviderStripe
	if !verifying && provider != ProviderCash && provider != ProviderManual {
		return nil, domain.InvalidArgument("unknown payment provider %q", provider)
	}

	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != caller.ID && !caller.IsStaff() {
		return nil, domain.NotFound("order %s not found", orderID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		s.metrics.PaymentConfirmation(ctx, provider, "already_paid")
		return order, nil
	}
	if order.Status.IsTerminal() {
		return nil, domain.Errorf(domain.ErrInvalidTransition, "cannot confirm payment: order is %s", order.Status)
	}

	reference = strings.TrimSpace(reference)
	if reference != "" {
		used, err := s.orders.ReferenceUsed(ctx, provider, reference, order.ID)
		if err != nil {
			return nil, err
		}
		if used {
			s.metrics.PaymentConfirmation(ctx, provider, "failed")
			return nil, domain.Errorf(domain.ErrPaymentVerificationFailed, "payment %s is already recorded on another order", reference)
		}
	}

	if verifying {
		if err := s.verify(ctx, order, reference); err != nil {
			s.metrics.PaymentConfirmation(ctx, provider, "failed")
			return nil, err
		}
	} else if !caller.IsStaff() {
		return nil, domain.Errorf(domain.ErrForbidden, "%s payments can only be confirmed by staff", provider)
	}

	updated, err := s.orders.Update(ctx, order.ID, func(o *domain.Order) (string, error) {
		if o.PaymentStatus == domain.PaymentStatusPaid {
			return "", nil
		}
		if o.Status.IsTerminal() {
			return "", domain.Errorf(domain.ErrInvalidTransition, "cannot confirm payment: order is %s", o.Status)
		}

		o.MarkPaid(s.now())
		if s.orders.Allows(o.Status, domain.OrderStatusConfirmed) {
			o.Status = domain.OrderStatusConfirmed
		}
		o.ShippingStatus = domain.ShippingStatusPendingShipment
		if verifying {
			o.Delivery.PaymentMethod = domain.PaymentMethodCard
		}
		o.PaymentProvider = provider
		o.PaymentReference = reference
		return domain.TopicOrderPaid, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentConfirmation(ctx, provider, "paid")
	s.logger.Info("payment confirmed", "order_id", updated.ID, "provider", provider, "reference", reference)
	return updated, nil
}

// verify accepts an intent only when it succeeded, is not bound to another order and
// charged exactly the order total.
func (s *Service) verify(ctx context.Context, order *domain.Order, reference string) error {
	if reference == "" {
		return domain.InvalidArgument("payment reference is required")
	}

	intent, err := s.gateway.GetIntent(ctx, reference)
	if err != nil {
		return fmt.Errorf("verify payment %s: %w", reference, err)
	}
	if intent.Status != IntentSucceeded {
		return domain.Errorf(domain.ErrPaymentVerificationFailed, "payment %s was not successful (status %s)", reference, intent.Status)
	}
	if bound := intent.Metadata["orderId"]; bound != "" && bound != order.ID {
		return domain.Errorf(domain.ErrPaymentVerificationFailed, "payment %s belongs to another order", reference)
	}
	if want := ToMinorUnits(order.Total); intent.AmountMinor != want {
		return domain.Errorf(domain.ErrPaymentVerificationFailed, "payment %s charged %d minor units, order total is %d", reference, intent.AmountMinor, want)
	}
	return nil
}

// CreateIntent opens a provider intent for the full order total.
func (s *Service) CreateIntent(ctx context.Context, email, orderID, currency string) (*Intent, error) {
	caller, err := s.resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != caller.ID {
		return nil, domain.NotFound("order %s not found", orderID)
	}
	if order.PaymentStatus == domain.PaymentStatusPaid {
		return nil, domain.InvalidState("order %s is already paid", order.ID)
	}
	if order.Status.IsTerminal() {
		return nil, domain.InvalidState("order %s is %s", order.ID, order.Status)
	}

	amount := ToMinorUnits(order.Total)
	if amount <= 0 {
		return nil, domain.InvalidArgument("order total must be positive")
	}

	intent, err := s.gateway.CreateIntent(ctx, amount, normalizeCurrency(currency, DefaultCurrency), map[string]string{
		"orderId":    order.ID,
		"customerId": caller.ID,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("payment intent created", "order_id", order.ID, "intent_id", intent.ID, "amount", amount)
	return intent, nil
}

// CreateTemporaryIntent opens an intent that is not yet bound to an order.
func (s *Service) CreateTemporaryIntent(ctx context.Context, email string, amount decimal.Decimal, currency string) (*Intent, error) {
	caller, err := s.resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	if !amount.IsPositive() {
		return nil, domain.InvalidArgument("amount must be greater than zero")
	}
	minor := ToMinorUnits(amount)
	if minor < MinTemporaryAmountMinor {
		return nil, domain.InvalidArgument("amount must be at least %d minor units", MinTemporaryAmountMinor)
	}

	intent, err := s.gateway.CreateIntent(ctx, minor, normalizeCurrency(currency, DefaultTemporaryCurrency), map[string]string{
		"customerId": caller.ID,
		"temporary":  "true",
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("temporary payment intent created", "customer_id", caller.ID, "intent_id", intent.ID, "amount", minor)
	return intent, nil
}

func (s *Service) resolve(ctx context.Context, email string) (*domain.Customer, error) {
	c, err := s.customers.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.NotFound("customer %s not found", email)
	}
	return c, nil
}

func normalizeCurrency(currency, fallback string) string {
	currency = strings.ToLower(strings.TrimSpace(currency))
	if currency == "" {
		return fallback
	}
	return currency
}
