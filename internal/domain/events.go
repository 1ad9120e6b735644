package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderPaid          = "order.paid"
)

// OrderEvent is the payload published for every order mutation.
type OrderEvent struct {
	EventID       string          `json:"event_id"`
	Type          string          `json:"type"`
	OrderID       string          `json:"order_id"`
	CustomerID    string          `json:"customer_id"`
	CustomerEmail string          `json:"customer_email"`
	Status        OrderStatus     `json:"status"`
	PreviousState OrderStatus     `json:"previous_status,omitempty"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	Total         decimal.Decimal `json:"total"`
	ItemCount     int             `json:"item_count"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewOrderEvent(topic string, o *Order, previous OrderStatus) OrderEvent {
	return OrderEvent{
		EventID:       uuid.New().String(),
		Type:          topic,
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		CustomerEmail: o.CustomerEmail,
		Status:        o.Status,
		PreviousState: previous,
		PaymentStatus: o.PaymentStatus,
		Total:         o.Total,
		ItemCount:     len(o.Lines),
		Timestamp:     time.Now().UTC(),
	}
}
