package cart

import (
	"encoding/json"
	"log/slog"
	"net/http"

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

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCart(r.Context(), customers.EmailFromContext(r.Context()))
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to get cart")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, view)
}

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleAddItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProductID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	view, err := h.service.AddItem(r.Context(), customers.EmailFromContext(r.Context()), req.ProductID, req.Quantity)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to add cart item", "product_id", req.ProductID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, view)
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleUpdateItem(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("lineId")
	if lineID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing line id")
		return
	}

	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	view, err := h.service.UpdateItemQuantity(r.Context(), customers.EmailFromContext(r.Context()), lineID, req.Quantity)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to update cart item", "line_id", lineID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, view)
}

func (h *Handler) HandleRemoveItem(w http.ResponseWriter, r *http.Request) {
	lineID := r.PathValue("lineId")
	if lineID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing line id")
		return
	}

	view, err := h.service.RemoveItem(r.Context(), customers.EmailFromContext(r.Context()), lineID)
	if err != nil {
		httpx.HandleError(w, h.logger, err, "failed to remove cart item", "line_id", lineID)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, view)
}
