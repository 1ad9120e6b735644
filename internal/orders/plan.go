package orders

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

type LineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// candidate is a line waiting to be validated against locked catalog rows. Cart lines
// carry the price snapshot taken when they were added; request lines do not.
type candidate struct {
	ProductID    string
	Quantity     int
	Snapshotted  bool
	UnitPrice    decimal.Decimal
	UnitDiscount decimal.Decimal
}

type plan struct {
	Lines []domain.OrderLine
	Total decimal.Decimal
}

// mergeRequestLines folds repeated product ids into one candidate per product, keeping
// first-seen order.
func mergeRequestLines(reqs []LineRequest) []candidate {
	index := make(map[string]int, len(reqs))
	out := make([]candidate, 0, len(reqs))

	for _, r := range reqs {
		if i, ok := index[r.ProductID]; ok {
			out[i].Quantity += r.Quantity
			continue
		}
		index[r.ProductID] = len(out)
		out = append(out, candidate{ProductID: r.ProductID, Quantity: r.Quantity})
	}
	return out
}

func cartCandidates(lines []domain.CartLine) []candidate {
	out := make([]candidate, 0, len(lines))
	for _, l := range lines {
		out = append(out, candidate{
			ProductID:    l.ProductID,
			Quantity:     l.Quantity,
			Snapshotted:  true,
			UnitPrice:    l.UnitPrice,
			UnitDiscount: l.UnitDiscount,
		})
	}
	return out
}

func productIDs(cands []candidate) []string {
	ids := make([]string, 0, len(cands))
	for _, c := range cands {
		ids = append(ids, c.ProductID)
	}
	sort.Strings(ids)
	return ids
}

// buildPlan validates every candidate and prices it. It never mutates anything, so a
// rejection here happens before a single unit of stock is touched.
func buildPlan(cands []candidate, products map[string]domain.Product, method domain.DeliveryMethod) (*plan, error) {
	p := &plan{
		Lines: make([]domain.OrderLine, 0, len(cands)),
		Total: decimal.Zero,
	}
	var prescription []string

	for _, c := range cands {
		product, ok := products[c.ProductID]
		if !ok {
			return nil, domain.NotFound("product %s not found", c.ProductID)
		}
		if c.Quantity < 1 {
			return nil, domain.InvalidArgument("quantity for %s must be at least 1", product.Name)
		}
		if product.Stock < c.Quantity {
			return nil, domain.InsufficientStock(product.Name, product.Stock, c.Quantity)
		}

		price, discount := product.Price, product.Discount
		if c.Snapshotted {
			price, discount = c.UnitPrice, c.UnitDiscount
		}

		line := domain.OrderLine{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Quantity:     c.Quantity,
			UnitPrice:    price,
			UnitDiscount: discount,
			LineTotal:    domain.LineTotal(price, discount, c.Quantity),
		}
		p.Lines = append(p.Lines, line)
		p.Total = p.Total.Add(line.LineTotal)

		if product.RequiresPrescription {
			prescription = append(prescription, product.Name)
		}
	}

	if len(prescription) > 0 && method != domain.DeliveryMethodPickup {
		return nil, domain.InvalidArgument("prescription items cannot ship, choose PICKUP: %v", prescription)
	}

	return p, nil
}
