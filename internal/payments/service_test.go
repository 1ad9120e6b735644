package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
	"github.com/joao-fontenele/pharmacy-orders/internal/orders"
)

const (
	customerID   = "c-customer"
	otherID      = "c-other"
	pharmacistID = "c-pharmacist"
	orderID      = "8f14e45f-ceea-467f-a0e6-4c1d6d9b3a10"
)

type fakeOrders struct {
	mu          sync.Mutex
	orders      map[string]*domain.Order
	topics      []string
	transitions orders.TransitionTable
	updateErr   error
}

func newFakeOrders(os ...*domain.Order) *fakeOrders {
	f := &fakeOrders{orders: map[string]*domain.Order{}, transitions: orders.MustDefaultTransitions()}
	for _, o := range os {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakeOrders) FindOrder(_ context.Context, id string) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, domain.NotFound("order %s not found", id)
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) Update(_ context.Context, id string, fn orders.Mutation) (*domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[id]
	if !ok {
		return nil, domain.NotFound("order %s not found", id)
	}
	cp := *o
	topic, err := fn(&cp)
	if err != nil {
		return nil, err
	}
	if topic == "" {
		return &cp, nil
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.orders[id] = &cp
	f.topics = append(f.topics, topic)
	result := cp
	return &result, nil
}

func (f *fakeOrders) Allows(from, to domain.OrderStatus) bool {
	return f.transitions.Allows(from, to)
}

func (f *fakeOrders) ReferenceUsed(_ context.Context, provider, reference, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for id, o := range f.orders {
		if id != orderID && o.PaymentProvider == provider && o.PaymentReference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOrders) stored(id string) domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.orders[id]
}

type fakeCustomers map[string]*domain.Customer

func (f fakeCustomers) FindByEmail(_ context.Context, email string) (*domain.Customer, error) {
	return f[email], nil
}

type createCall struct {
	amount   int64
	currency string
	metadata map[string]string
}

type fakeGateway struct {
	intents  map[string]*Intent
	err      error
	created  []createCall
	getCalls int
}

func (g *fakeGateway) CreateIntent(_ context.Context, amountMinor int64, currency string, metadata map[string]string) (*Intent, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, createCall{amount: amountMinor, currency: currency, metadata: metadata})
	return &Intent{ID: "pi_new", ClientSecret: "pi_new_secret", Status: IntentPending, AmountMinor: amountMinor, Currency: currency}, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, intentID string) (*Intent, error) {
	g.getCalls++
	if g.err != nil {
		return nil, g.err
	}
	if intent, ok := g.intents[intentID]; ok {
		return intent, nil
	}
	return &Intent{ID: intentID, Status: IntentFailed}, nil
}

func pendingOrder() *domain.Order {
	return &domain.Order{
		ID:            orderID,
		CustomerID:    customerID,
		CustomerEmail: "cliente@farmacia.test",
		Total:         decimal.RequireFromString("1234.50"),
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Delivery: domain.Delivery{
			Method:        domain.DeliveryMethodPickup,
			PaymentMethod: domain.PaymentMethodCash,
		},
	}
}

func newTestService(store *fakeOrders, gw *fakeGateway) *Service {
	svc := NewService(store, fakeCustomers{
		"cliente@farmacia.test":      {ID: customerID, Email: "cliente@farmacia.test", Role: domain.RoleCustomer},
		"otro@farmacia.test":         {ID: otherID, Email: "otro@farmacia.test", Role: domain.RoleCustomer},
		"farmaceutico@farmacia.test": {ID: pharmacistID, Email: "farmaceutico@farmacia.test", Role: domain.RolePharmacist},
	}, gw, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestConfirmPayment_FailedVerificationLeavesOrderUntouched(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	gw := &fakeGateway{intents: map[string]*Intent{"pi_declined": {ID: "pi_declined", Status: IntentFailed}}}
	svc := newTestService(store, gw)

	_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_declined", "stripe")
	require.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)

	stored := store.stored(orderID)
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.PaidAt)
	assert.Empty(t, store.topics)
}

func TestConfirmPayment_PendingIntentIsNotAccepted(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	gw := &fakeGateway{intents: map[string]*Intent{"pi_processing": {ID: "pi_processing", Status: IntentPending}}}
	svc := newTestService(store, gw)

	_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_processing", "STRIPE")
	require.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)
	assert.Equal(t, domain.PaymentStatusPending, store.stored(orderID).PaymentStatus)
}

func TestConfirmPayment_Succeeded(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	gw := &fakeGateway{intents: map[string]*Intent{
		"pi_ok": {ID: "pi_ok", Status: IntentSucceeded, AmountMinor: 123450, Metadata: map[string]string{"orderId": orderID}},
	}}
	svc := newTestService(store, gw)

	order, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_ok", "")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, domain.ShippingStatusPendingShipment, order.ShippingStatus)
	assert.Equal(t, domain.PaymentMethodCard, order.Delivery.PaymentMethod)
	assert.Equal(t, ProviderStripe, order.PaymentProvider)
	assert.Equal(t, "pi_ok", order.PaymentReference)
	require.NotNil(t, order.PaidAt)
	require.NotNil(t, order.TotalPaid)
	assert.True(t, order.TotalPaid.Equal(order.Total))
	assert.Equal(t, []string{domain.TopicOrderPaid}, store.topics)
}

func TestConfirmPayment_AlreadyPaidIsIdempotent(t *testing.T) {
	paid := pendingOrder()
	paid.MarkPaid(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	paid.Status = domain.OrderStatusConfirmed
	store := newFakeOrders(paid)
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	order, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_ok", "STRIPE")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, 0, gw.getCalls)
	assert.Empty(t, store.topics)
}

func TestConfirmPayment_TerminalOrder(t *testing.T) {
	cancelled := pendingOrder()
	cancelled.Status = domain.OrderStatusCancelled
	store := newFakeOrders(cancelled)
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_ok", "STRIPE")
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Equal(t, 0, gw.getCalls)
}

func TestConfirmPayment_ProcessingOrderKeepsStatus(t *testing.T) {
	processing := pendingOrder()
	processing.Status = domain.OrderStatusProcessing
	store := newFakeOrders(processing)
	gw := &fakeGateway{intents: map[string]*Intent{"pi_ok": {ID: "pi_ok", Status: IntentSucceeded, AmountMinor: 123450}}}
	svc := newTestService(store, gw)

	order, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_ok", "STRIPE")
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusProcessing, order.Status)
	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
}

func TestConfirmPayment_ProviderErrorIsInternal(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	gw := &fakeGateway{err: errors.New("dial tcp: i/o timeout")}
	svc := newTestService(store, gw)

	_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_ok", "STRIPE")
	require.Error(t, err)

	var de *domain.Error
	assert.False(t, errors.As(err, &de))
	assert.Equal(t, domain.PaymentStatusPending, store.stored(orderID).PaymentStatus)
}

func TestConfirmPayment_StorageFailureLeavesOrderUntouched(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	store.updateErr = errors.New("connection reset")
	gw := &fakeGateway{intents: map[string]*Intent{"pi_ok": {ID: "pi_ok", Status: IntentSucceeded, AmountMinor: 123450}}}
	svc := newTestService(store, gw)

	_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_ok", "STRIPE")
	require.Error(t, err)
	assert.Equal(t, domain.PaymentStatusPending, store.stored(orderID).PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, store.stored(orderID).Status)
}

func TestConfirmPayment_IntentBoundToAnotherOrder(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	gw := &fakeGateway{intents: map[string]*Intent{
		"pi_other": {ID: "pi_other", Status: IntentSucceeded, AmountMinor: 123450, Metadata: map[string]string{"orderId": "someone-else"}},
	}}
	svc := newTestService(store, gw)

	_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_other", "STRIPE")
	require.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)
}

func TestConfirmPayment_IntentAmountMustMatchTotal(t *testing.T) {
	tests := []struct {
		name   string
		intent *Intent
		err    error
	}{
		{
			name:   "temporary intent for a smaller amount",
			intent: &Intent{ID: "pi_tmp", Status: IntentSucceeded, AmountMinor: 50, Metadata: map[string]string{"temporary": "true"}},
			err:    domain.ErrPaymentVerificationFailed,
		},
		{
			name:   "bound intent for a different amount",
			intent: &Intent{ID: "pi_tmp", Status: IntentSucceeded, AmountMinor: 100, Metadata: map[string]string{"orderId": orderID}},
			err:    domain.ErrPaymentVerificationFailed,
		},
		{
			name:   "temporary intent for the exact total",
			intent: &Intent{ID: "pi_tmp", Status: IntentSucceeded, AmountMinor: 123450, Metadata: map[string]string{"temporary": "true"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeOrders(pendingOrder())
			svc := newTestService(store, &fakeGateway{intents: map[string]*Intent{"pi_tmp": tt.intent}})

			_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_tmp", "STRIPE")
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				assert.Equal(t, domain.PaymentStatusPending, store.stored(orderID).PaymentStatus)
				assert.Empty(t, store.topics)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.PaymentStatusPaid, store.stored(orderID).PaymentStatus)
		})
	}
}

func TestConfirmPayment_ReferenceSettlesOneOrder(t *testing.T) {
	const secondID = "3c59dc04-8b7e-4f0a-9d1e-2a5b6c7d8e9f"
	second := pendingOrder()
	second.ID = secondID
	store := newFakeOrders(pendingOrder(), second)
	gw := &fakeGateway{intents: map[string]*Intent{
		"pi_tmp": {ID: "pi_tmp", Status: IntentSucceeded, AmountMinor: 123450, Metadata: map[string]string{"temporary": "true"}},
	}}
	svc := newTestService(store, gw)

	_, err := svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", orderID, "pi_tmp", "STRIPE")
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), "cliente@farmacia.test", secondID, "pi_tmp", "STRIPE")
	require.ErrorIs(t, err, domain.ErrPaymentVerificationFailed)

	assert.Equal(t, domain.PaymentStatusPending, store.stored(secondID).PaymentStatus)
	assert.Equal(t, []string{domain.TopicOrderPaid}, store.topics)
	assert.Equal(t, 1, gw.getCalls)
}

func TestConfirmPayment_Validation(t *testing.T) {
	tests := []struct {
		name      string
		email     string
		order     string
		reference string
		provider  string
		kind      error
	}{
		{"unknown caller", "nadie@farmacia.test", orderID, "pi_ok", "STRIPE", domain.ErrNotFound},
		{"unknown order", "cliente@farmacia.test", "missing", "pi_ok", "STRIPE", domain.ErrNotFound},
		{"someone else's order", "otro@farmacia.test", orderID, "pi_ok", "STRIPE", domain.ErrNotFound},
		{"unknown provider", "cliente@farmacia.test", orderID, "pi_ok", "PAYPAL", domain.ErrInvalidArgument},
		{"missing reference", "cliente@farmacia.test", orderID, " ", "STRIPE", domain.ErrInvalidArgument},
		{"cash by customer", "cliente@farmacia.test", orderID, "", "CASH", domain.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeOrders(pendingOrder())
			svc := newTestService(store, &fakeGateway{})

			_, err := svc.ConfirmPayment(context.Background(), tt.email, tt.order, tt.reference, tt.provider)
			require.ErrorIs(t, err, tt.kind)
			assert.Empty(t, store.topics)
		})
	}
}

func TestConfirmPayment_CashByStaff(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	order, err := svc.ConfirmPayment(context.Background(), "farmaceutico@farmacia.test", orderID, "receipt-42", "cash")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, domain.PaymentMethodCash, order.Delivery.PaymentMethod)
	assert.Equal(t, ProviderCash, order.PaymentProvider)
	assert.Equal(t, 0, gw.getCalls)
}

func TestCreateIntent(t *testing.T) {
	store := newFakeOrders(pendingOrder())
	gw := &fakeGateway{}
	svc := newTestService(store, gw)

	intent, err := svc.CreateIntent(context.Background(), "cliente@farmacia.test", orderID, "")
	require.NoError(t, err)

	assert.Equal(t, "pi_new_secret", intent.ClientSecret)
	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(123450), gw.created[0].amount)
	assert.Equal(t, DefaultCurrency, gw.created[0].currency)
	assert.Equal(t, map[string]string{"orderId": orderID, "customerId": customerID}, gw.created[0].metadata)
}

func TestCreateIntent_Rejections(t *testing.T) {
	paid := pendingOrder()
	paid.MarkPaid(time.Now())

	t.Run("foreign order", func(t *testing.T) {
		svc := newTestService(newFakeOrders(pendingOrder()), &fakeGateway{})
		_, err := svc.CreateIntent(context.Background(), "otro@farmacia.test", orderID, "usd")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("already paid", func(t *testing.T) {
		svc := newTestService(newFakeOrders(paid), &fakeGateway{})
		_, err := svc.CreateIntent(context.Background(), "cliente@farmacia.test", orderID, "usd")
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("provider failure", func(t *testing.T) {
		svc := newTestService(newFakeOrders(pendingOrder()), &fakeGateway{err: errors.New("503")})
		_, err := svc.CreateIntent(context.Background(), "cliente@farmacia.test", orderID, "usd")
		assert.Error(t, err)
	})
}

func TestCreateTemporaryIntent(t *testing.T) {
	gw := &fakeGateway{}
	svc := newTestService(newFakeOrders(), gw)

	_, err := svc.CreateTemporaryIntent(context.Background(), "cliente@farmacia.test", decimal.RequireFromString("0.50"), "")
	require.NoError(t, err)

	require.Len(t, gw.created, 1)
	assert.Equal(t, int64(50), gw.created[0].amount)
	assert.Equal(t, DefaultTemporaryCurrency, gw.created[0].currency)
	assert.Equal(t, "true", gw.created[0].metadata["temporary"])
	assert.Equal(t, customerID, gw.created[0].metadata["customerId"])

	for _, amount := range []string{"0", "-10", "0.49"} {
		_, err := svc.CreateTemporaryIntent(context.Background(), "cliente@farmacia.test", decimal.RequireFromString(amount), "ars")
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, amount)
	}
	assert.Len(t, gw.created, 1)
}

func TestToMinorUnits(t *testing.T) {
	tests := map[string]int64{
		"0":        0,
		"1":        100,
		"1234.50":  123450,
		"100.005":  10001,
		"0.004":    0,
		"19999.99": 1999999,
	}
	for in, want := range tests {
		assert.Equal(t, want, ToMinorUnits(decimal.RequireFromString(in)), in)
	}
}
