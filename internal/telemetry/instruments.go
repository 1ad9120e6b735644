package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// DomainMetrics are the business counters exported next to the runtime and HTTP metrics.
type DomainMetrics struct {
	checkouts            metric.Int64Counter
	stockRejections      metric.Int64Counter
	transitions          metric.Int64Counter
	paymentConfirmations metric.Int64Counter
}

func NewDomainMetrics(meter metric.Meter) (*DomainMetrics, error) {
	checkouts, err := meter.Int64Counter("pharmacy.checkouts",
		metric.WithDescription("Checkout attempts by entry point and outcome"))
	if err != nil {
		return nil, err
	}

	stockRejections, err := meter.Int64Counter("pharmacy.stock.rejections",
		metric.WithDescription("Checkouts rejected for insufficient stock"))
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("pharmacy.order.transitions",
		metric.WithDescription("Order status transitions applied"))
	if err != nil {
		return nil, err
	}

	paymentConfirmations, err := meter.Int64Counter("pharmacy.payment.confirmations",
		metric.WithDescription("Payment confirmations by provider and outcome"))
	if err != nil {
		return nil, err
	}

	return &DomainMetrics{
		checkouts:            checkouts,
		stockRejections:      stockRejections,
		transitions:          transitions,
		paymentConfirmations: paymentConfirmations,
	}, nil
}

// NoopDomainMetrics records nothing.
func NoopDomainMetrics() *DomainMetrics {
	m, _ := NewDomainMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *DomainMetrics) Checkout(ctx context.Context, source, outcome string) {
	m.checkouts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("outcome", outcome),
	))
}

func (m *DomainMetrics) StockRejected(ctx context.Context) {
	m.stockRejections.Add(ctx, 1)
}

func (m *DomainMetrics) Transition(ctx context.Context, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *DomainMetrics) PaymentConfirmation(ctx context.Context, provider, outcome string) {
	m.paymentConfirmations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}
