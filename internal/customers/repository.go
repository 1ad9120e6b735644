package customers

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/joao-fontenele/pharmacy-orders/internal/database"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

type CustomerRepository struct {
	db database.DBTX
}

func NewCustomerRepository(db database.DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// FindByEmail returns nil, nil when no customer has the given e-mail.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	c := &domain.Customer{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, role, created_at
		FROM customers
		WHERE lower(email) = $1
	`, strings.ToLower(strings.TrimSpace(email))).Scan(&c.ID, &c.Email, &c.FullName, &c.Role, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return c, nil
}

// Resolve is FindByEmail with a missing customer reported as domain.ErrNotFound.
func (r *CustomerRepository) Resolve(ctx context.Context, email string) (*domain.Customer, error) {
	c, err := r.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.NotFound("customer %s not found", email)
	}
	return c, nil
}
