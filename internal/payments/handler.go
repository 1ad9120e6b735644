package payments

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/pharmacy-orders/internal/customers"
	"github.com/joao-fontenele/pharmacy-orders/internal/httpx"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

type confirmRequest struct {
	PaymentReference string `json:"payment_reference"`
	Provider         string `json:"provider"`
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing order id")
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.ConfirmPayment(r.Context(), customers.EmailFromContext(r.Context()), id, req.PaymentReference, req.Provider)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to confirm payment", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type createIntentRequest struct {
	OrderID  string `json:"order_id"`
	Currency string `json:"currency"`
}

func (h *Handler) HandleCreateIntent(w http.ResponseWriter, r *http.Request) {
	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrderID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing order id")
		return
	}

	intent, err := h.service.CreateIntent(r.Context(), customers.EmailFromContext(r.Context()), req.OrderID, req.Currency)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to create payment intent", "order_id", req.OrderID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, intent)
}

type createTemporaryIntentRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

func (h *Handler) HandleCreateTemporaryIntent(w http.ResponseWriter, r *http.Request) {
	var req createTemporaryIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	intent, err := h.service.CreateTemporaryIntent(r.Context(), customers.EmailFromContext(r.Context()), req.Amount, req.Currency)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to create temporary payment intent")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, intent)
}
