package httpx

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, map[string]string{"error": message})
}

// StatusFor maps a domain error kind to an HTTP status. Errors outside the
// taxonomy map to 500.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaymentVerificationFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// HandleError writes user-actionable domain errors verbatim and hides everything
// else behind a generic 500, logging msg with the underlying error.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, msg string, attrs ...any) {
	var de *domain.Error
	if errors.As(err, &de) {
		logger.Warn(msg, append([]any{"reason", de.Message}, attrs...)...)
		WriteError(w, logger, StatusFor(de), de.Message)
		return
	}

	logger.Error(msg, append([]any{"error", err}, attrs...)...)
	WriteError(w, logger, http.StatusInternalServerError, "internal server error")
}
