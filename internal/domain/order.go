package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusConfirmed,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, status := range orderStatuses {
		if status == candidate {
			return status, nil
		}
	}
	return "", InvalidArgument("unknown order status %q", s)
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type ShippingStatus string

const (
	ShippingStatusPendingShipment ShippingStatus = "PENDING_SHIPMENT"
	ShippingStatusShipped         ShippingStatus = "SHIPPED"
	ShippingStatusDelivered       ShippingStatus = "DELIVERED"
	ShippingStatusPickedUp        ShippingStatus = "PICKED_UP"
)

type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "PICKUP"
	DeliveryMethodDelivery DeliveryMethod = "DELIVERY"
)

type PaymentMethod string

const (
	PaymentMethodCash PaymentMethod = "CASH"
	PaymentMethodCard PaymentMethod = "CARD"
)

type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	Zip    string `json:"zip"`
}

// Delivery is the contact and address snapshot stored on the order.
type Delivery struct {
	FullName      string         `json:"full_name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	Method        DeliveryMethod `json:"method"`
	PaymentMethod PaymentMethod  `json:"payment_method"`
	Address       Address        `json:"address"`
}

// Normalize upper-cases the enumerated fields and validates the combination.
func (d *Delivery) Normalize() error {
	d.Method = DeliveryMethod(strings.ToUpper(strings.TrimSpace(string(d.Method))))
	d.PaymentMethod = PaymentMethod(strings.ToUpper(strings.TrimSpace(string(d.PaymentMethod))))

	switch d.Method {
	case DeliveryMethodPickup:
	case DeliveryMethodDelivery:
		if d.Address.Street == "" || d.Address.City == "" || d.Address.Zip == "" {
			return InvalidArgument("delivery orders require street, city and zip")
		}
	case "":
		return InvalidArgument("delivery method is required")
	default:
		return InvalidArgument("unknown delivery method %q", d.Method)
	}

	switch d.PaymentMethod {
	case PaymentMethodCash, PaymentMethodCard:
	case "":
		d.PaymentMethod = PaymentMethodCash
	default:
		return InvalidArgument("unknown payment method %q", d.PaymentMethod)
	}

	return nil
}

type OrderLine struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitDiscount decimal.Decimal `json:"unit_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
}

type Order struct {
	ID               string           `json:"id"`
	CustomerID       string           `json:"customer_id"`
	CustomerEmail    string           `json:"customer_email"`
	CartID           string           `json:"cart_id,omitempty"`
	Total            decimal.Decimal  `json:"total"`
	Status           OrderStatus      `json:"status"`
	PaymentStatus    PaymentStatus    `json:"payment_status"`
	ShippingStatus   ShippingStatus   `json:"shipping_status,omitempty"`
	Delivery         Delivery         `json:"delivery"`
	PaymentProvider  string           `json:"payment_provider,omitempty"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	PaidAt           *time.Time       `json:"paid_at,omitempty"`
	TotalPaid        *decimal.Decimal `json:"total_paid,omitempty"`
	Lines            []OrderLine      `json:"lines"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// MarkPaid records a settled payment of the full order total.
func (o *Order) MarkPaid(now time.Time) {
	total := o.Total
	o.PaymentStatus = PaymentStatusPaid
	o.PaidAt = &now
	o.TotalPaid = &total
}

// LinesTotal sums the frozen line totals.
func (o *Order) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range o.Lines {
		total = total.Add(l.LineTotal)
	}
	return total
}

// OrderSummary is returned by both checkout entry points.
type OrderSummary struct {
	OrderID  string          `json:"order_id"`
	Total    decimal.Decimal `json:"total"`
	Status   OrderStatus     `json:"status"`
	Lines    []OrderLine     `json:"lines"`
	Delivery Delivery        `json:"delivery"`
}

func (o *Order) Summary() OrderSummary {
	return OrderSummary{
		OrderID:  o.ID,
		Total:    o.Total,
		Status:   o.Status,
		Lines:    o.Lines,
		Delivery: o.Delivery,
	}
}
