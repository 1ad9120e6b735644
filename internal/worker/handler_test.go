package worker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

type emailSink struct {
	mu       sync.Mutex
	received []emailMessage
	status   int
}

func (s *emailSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var msg emailMessage
	_ = json.NewDecoder(r.Body).Decode(&msg)

	s.mu.Lock()
	s.received = append(s.received, msg)
	status := s.status
	s.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func newTestHandler(t *testing.T, sink *emailSink) *NotificationHandler {
	t.Helper()
	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)
	return NewNotificationHandler(srv.URL, srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func eventPayload(t *testing.T, topic string, previous domain.OrderStatus, status domain.OrderStatus) []byte {
	t.Helper()
	data, err := json.Marshal(domain.OrderEvent{
		EventID:       "evt-1",
		Type:          topic,
		OrderID:       "order-1",
		CustomerEmail: "cliente@farmacia.test",
		Status:        status,
		PreviousState: previous,
		PaymentStatus: domain.PaymentStatusPending,
		Total:         decimal.RequireFromString("7500"),
		ItemCount:     1,
		Timestamp:     time.Now(),
	})
	require.NoError(t, err)
	return data
}

func TestNotificationHandler_Handle(t *testing.T) {
	tests := []struct {
		topic    string
		previous domain.OrderStatus
		status   domain.OrderStatus
		subject  string
	}{
		{domain.TopicOrderCreated, "", domain.OrderStatusPending, "Order received: order-1"},
		{domain.TopicOrderStatusChanged, domain.OrderStatusPending, domain.OrderStatusProcessing, "Order order-1 is now PROCESSING"},
		{domain.TopicOrderPaid, domain.OrderStatusPending, domain.OrderStatusConfirmed, "Payment received: order-1"},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			sink := &emailSink{}
			h := newTestHandler(t, sink)

			err := h.Handle(context.Background(), tt.topic, eventPayload(t, tt.topic, tt.previous, tt.status))
			require.NoError(t, err)

			require.Len(t, sink.received, 1)
			assert.Equal(t, "cliente@farmacia.test", sink.received[0].To)
			assert.Equal(t, tt.subject, sink.received[0].Subject)
		})
	}
}

func TestNotificationHandler_CreatedBodyMentionsTotal(t *testing.T) {
	sink := &emailSink{}
	h := newTestHandler(t, sink)

	require.NoError(t, h.Handle(context.Background(), domain.TopicOrderCreated, eventPayload(t, domain.TopicOrderCreated, "", domain.OrderStatusPending)))
	require.Len(t, sink.received, 1)
	assert.Contains(t, sink.received[0].Body, "7500.00")
}

func TestNotificationHandler_SkipsUnknownTopic(t *testing.T) {
	sink := &emailSink{}
	h := newTestHandler(t, sink)

	require.NoError(t, h.Handle(context.Background(), "order.refunded", eventPayload(t, "order.refunded", "", domain.OrderStatusCancelled)))
	assert.Empty(t, sink.received)
}

func TestNotificationHandler_InvalidPayload(t *testing.T) {
	h := newTestHandler(t, &emailSink{})

	err := h.Handle(context.Background(), domain.TopicOrderCreated, []byte("not json"))
	assert.Error(t, err)
}

func TestNotificationHandler_EmailServiceFailure(t *testing.T) {
	sink := &emailSink{status: http.StatusServiceUnavailable}
	h := newTestHandler(t, sink)

	err := h.Handle(context.Background(), domain.TopicOrderPaid, eventPayload(t, domain.TopicOrderPaid, domain.OrderStatusPending, domain.OrderStatusConfirmed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
