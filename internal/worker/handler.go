package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

// Topics are the order events the notification worker subscribes to.
var Topics = []string{
	domain.TopicOrderCreated,
	domain.TopicOrderStatusChanged,
	domain.TopicOrderPaid,
}

type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *NotificationHandler) Handle(ctx context.Context, topic string, payload []byte) error {
	var event domain.OrderEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal %s event: %w", topic, err)
	}

	h.logger.Info("processing order event", "topic", topic, "event_id", event.EventID, "order_id", event.OrderID)

	if event.CustomerEmail == "" {
		h.logger.Warn("order event without customer email, skipping", "topic", topic, "order_id", event.OrderID)
		return nil
	}

	msg, ok := compose(topic, event)
	if !ok {
		h.logger.Warn("no notification for topic", "topic", topic, "order_id", event.OrderID)
		return nil
	}

	if err := h.sendEmail(ctx, msg); err != nil {
		h.logger.Error("failed to send notification", "error", err, "topic", topic, "order_id", event.OrderID)
		return fmt.Errorf("send %s notification: %w", topic, err)
	}

	h.logger.Info("notification sent", "topic", topic, "order_id", event.OrderID)
	return nil
}

func compose(topic string, event domain.OrderEvent) (emailMessage, bool) {
	msg := emailMessage{To: event.CustomerEmail}

	switch topic {
	case domain.TopicOrderCreated:
		msg.Subject = "Order received: " + event.OrderID
		msg.Body = fmt.Sprintf("We received your order %s with %d items for a total of %s.",
			event.OrderID, event.ItemCount, event.Total.StringFixed(2))
	case domain.TopicOrderStatusChanged:
		msg.Subject = fmt.Sprintf("Order %s is now %s", event.OrderID, event.Status)
		msg.Body = fmt.Sprintf("Your order %s moved from %s to %s.", event.OrderID, event.PreviousState, event.Status)
	case domain.TopicOrderPaid:
		msg.Subject = "Payment received: " + event.OrderID
		msg.Body = fmt.Sprintf("We received your payment of %s for order %s.", event.Total.StringFixed(2), event.OrderID)
	default:
		return emailMessage{}, false
	}

	return msg, true
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
