package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartStatus string

const (
	CartStatusOpen       CartStatus = "OPEN"
	CartStatusCheckedOut CartStatus = "CHECKED_OUT"
	CartStatusCancelled  CartStatus = "CANCELLED"
)

type CartLine struct {
	ID           string          `json:"id"`
	CartID       string          `json:"cart_id"`
	ProductID    string          `json:"product_id"`
	ProductName  string          `json:"product_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	UnitDiscount decimal.Decimal `json:"unit_discount"`
	LineTotal    decimal.Decimal `json:"line_total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Snapshot copies the product's current price and discount onto the line.
func (l *CartLine) Snapshot(p *Product) {
	l.UnitPrice = p.Price
	l.UnitDiscount = p.Discount
	l.ProductName = p.Name
}

func (l *CartLine) RecomputeLineTotal() {
	l.LineTotal = LineTotal(l.UnitPrice, l.UnitDiscount, l.Quantity)
}

type Cart struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customer_id"`
	Status     CartStatus `json:"status"`
	Lines      []CartLine `json:"lines"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.LineTotal)
	}
	return total
}

func (c *Cart) LineForProduct(productID string) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// CartView is the read model returned to clients.
type CartView struct {
	ID     string          `json:"id"`
	Status CartStatus      `json:"status"`
	Lines  []CartLine      `json:"lines"`
	Total  decimal.Decimal `json:"total"`
}

func (c *Cart) View() CartView {
	lines := c.Lines
	if lines == nil {
		lines = []CartLine{}
	}
	return CartView{
		ID:     c.ID,
		Status: c.Status,
		Lines:  lines,
		Total:  c.Total(),
	}
}
