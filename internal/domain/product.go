package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Price                decimal.Decimal `json:"price"`
	Discount             decimal.Decimal `json:"discount"`
	Stock                int             `json:"stock"`
	RequiresPrescription bool            `json:"requires_prescription"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// LineTotal is max(0, price - discount) * quantity.
func LineTotal(unitPrice, unitDiscount decimal.Decimal, quantity int) decimal.Decimal {
	net := unitPrice.Sub(unitDiscount)
	if net.IsNegative() {
		net = decimal.Zero
	}
	return net.Mul(decimal.NewFromInt(int64(quantity)))
}
