package catalog

import (
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/pharmacy-orders/internal/httpx"
)

type Handler struct {
	repo   *ProductRepository
	logger *slog.Logger
}

func NewHandler(repo *ProductRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

func (h *Handler) HandleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("products listed", "count", len(products))
	httpx.WriteJSON(w, h.logger, http.StatusOK, products)
}

func (h *Handler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.repo.FindProduct(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "product not found")
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, product)
}
