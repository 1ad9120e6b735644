package customers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
	"github.com/joao-fontenele/pharmacy-orders/internal/httpx"
)

// EmailHeader carries the authenticated caller, set by the edge after token validation.
const EmailHeader = "X-User-Email"

type emailKey struct{}

type Finder interface {
	FindByEmail(ctx context.Context, email string) (*domain.Customer, error)
}

type Middleware struct {
	finder Finder
	logger *slog.Logger
}

func NewMiddleware(finder Finder, logger *slog.Logger) *Middleware {
	return &Middleware{finder: finder, logger: logger}
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(emailKey{}).(string)
	return email
}

func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey{}, email)
}

// Authenticated rejects requests without a caller identity.
func (m *Middleware) Authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.Header.Get(EmailHeader))
		if email == "" {
			httpx.WriteError(w, m.logger, http.StatusUnauthorized, "missing caller identity")
			return
		}
		next(w, r.WithContext(WithEmail(r.Context(), email)))
	}
}

// StaffOnly admits pharmacists and admins.
func (m *Middleware) StaffOnly(next http.HandlerFunc) http.HandlerFunc {
	return m.Authenticated(func(w http.ResponseWriter, r *http.Request) {
		ok, err := m.IsStaff(r.Context(), EmailFromContext(r.Context()))
		if err != nil {
			m.logger.Error("failed to resolve caller", "error", err)
			httpx.WriteError(w, m.logger, http.StatusInternalServerError, "internal server error")
			return
		}
		if !ok {
			httpx.WriteError(w, m.logger, http.StatusForbidden, "staff role required")
			return
		}
		next(w, r)
	})
}

func (m *Middleware) IsStaff(ctx context.Context, email string) (bool, error) {
	c, err := m.finder.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return c != nil && c.IsStaff(), nil
}
