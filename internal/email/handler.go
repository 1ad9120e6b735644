package email

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/joao-fontenele/pharmacy-orders/internal/httpx"
)

type Handler struct {
	logger *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

// HandleSend accepts a notification for delivery. Delivery itself is logged;
// there is no SMTP relay behind it.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := mail.ParseAddress(req.To); err != nil {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "recipient must be a valid email address")
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "subject is required")
		return
	}

	h.logger.InfoContext(r.Context(), "email sent", "to", req.To, "subject", req.Subject, "body_length", len(req.Body))

	httpx.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}
