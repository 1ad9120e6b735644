package orders

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/pharmacy-orders/internal/customers"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
	"github.com/joao-fontenele/pharmacy-orders/internal/httpx"
)

type Handler struct {
	engine  *CheckoutEngine
	service *Service
	logger  *slog.Logger
}

func NewHandler(engine *CheckoutEngine, service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		engine:  engine,
		service: service,
		logger:  logger,
	}
}

// HandleCheckout accepts an optional delivery body; an empty body checks out for pickup.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var delivery *domain.Delivery
	var req domain.Delivery
	switch err := json.NewDecoder(r.Body).Decode(&req); {
	case errors.Is(err, io.EOF):
	case err != nil:
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	default:
		delivery = &req
	}

	summary, err := h.engine.Checkout(r.Context(), customers.EmailFromContext(r.Context()), delivery)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "checkout failed")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, summary)
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	summary, err := h.engine.CreateOrder(r.Context(), customers.EmailFromContext(r.Context()), req)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to create order")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, summary)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id, customers.EmailFromContext(r.Context()))
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to get order", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListOrders(r.Context(), customers.EmailFromContext(r.Context()))
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to list orders")
		return
	}

	h.logger.Info("orders listed", "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.ListAllOrders(r.Context())
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to list all orders")
		return
	}

	h.logger.Info("all orders listed", "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.service.ChangeStatus(r.Context(), id, req.Status)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to update order status", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandlePickupComplete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.service.MarkPickupComplete(r.Context(), id)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to complete pickup", "order_id", id)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}
