package cart

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/joao-fontenele/pharmacy-orders/internal/catalog"
	"github.com/joao-fontenele/pharmacy-orders/internal/customers"
	"github.com/joao-fontenele/pharmacy-orders/internal/database"
	"github.com/joao-fontenele/pharmacy-orders/internal/domain"
)

type Service struct {
	db        *sql.DB
	carts     *CartRepository
	products  *catalog.ProductRepository
	customers *customers.CustomerRepository
	cache     Cache
	group     singleflight.Group
	logger    *slog.Logger
}

func NewService(db *sql.DB, cache Cache, logger *slog.Logger) *Service {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Service{
		db:        db,
		carts:     NewCartRepository(db),
		products:  catalog.NewProductRepository(db),
		customers: customers.NewCustomerRepository(db),
		cache:     cache,
		logger:    logger,
	}
}

// GetCart returns the caller's OPEN cart, creating an empty one on first use.
func (s *Service) GetCart(ctx context.Context, email string) (*domain.CartView, error) {
	customer, err := s.customers.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	view, err := s.cache.Get(ctx, customer.ID)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("cart cache read failed", "error", err, "customer_id", customer.ID)
	}

	v, err, _ := s.group.Do(customer.ID, func() (any, error) {
		// Shared by every waiting caller, so one caller's cancellation must not fail the rest.
		ctx := context.WithoutCancel(ctx)

		version, verr := s.cache.Version(ctx, customer.ID)
		if verr != nil {
			s.logger.Warn("cart cache version read failed", "error", verr, "customer_id", customer.ID)
		}

		if err := s.carts.EnsureOpenCart(ctx, customer.ID); err != nil {
			return nil, err
		}

		c, err := s.carts.FindOpenCart(ctx, customer.ID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, domain.InvalidState("no open cart for customer %s", customer.Email)
		}

		view := c.View()
		if verr == nil {
			err := s.cache.Set(ctx, customer.ID, &view, version)
			switch {
			case errors.Is(err, ErrStaleVersion):
				s.logger.Debug("cart changed while loading, not caching", "customer_id", customer.ID)
			case err != nil:
				s.logger.Warn("cart cache write failed", "error", err, "customer_id", customer.ID)
			}
		}
		return &view, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*domain.CartView), nil
}

// AddItem merges quantity into an existing line for the product or appends a new one.
// Either way the line's price and discount are re-snapshotted from the catalog.
func (s *Service) AddItem(ctx context.Context, email, productID string, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return nil, domain.InvalidArgument("quantity must be at least 1")
	}

	customer, err := s.customers.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	product, err := s.products.FindProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.NotFound("product %s not found", productID)
	}
	if product.Stock < quantity {
		return nil, domain.InsufficientStock(product.Name, product.Stock, quantity)
	}

	var view domain.CartView
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		carts := s.carts.WithTx(tx)

		if err := carts.EnsureOpenCart(ctx, customer.ID); err != nil {
			return err
		}
		c, err := carts.LockOpenCart(ctx, customer.ID)
		if err != nil {
			return err
		}
		if c == nil {
			return domain.InvalidState("no open cart for customer %s", customer.Email)
		}

		if line := c.LineForProduct(product.ID); line != nil {
			if merged := line.Quantity + quantity; merged > product.Stock {
				return domain.InsufficientStock(product.Name, product.Stock, merged)
			}
			line.Quantity += quantity
			line.Snapshot(product)
			line.RecomputeLineTotal()
			if err := carts.UpdateLine(ctx, line); err != nil {
				return err
			}
		} else {
			line := domain.CartLine{
				CartID:    c.ID,
				ProductID: product.ID,
				Quantity:  quantity,
			}
			line.Snapshot(product)
			line.RecomputeLineTotal()
			if err := carts.InsertLine(ctx, &line); err != nil {
				return err
			}
			c.Lines = append(c.Lines, line)
		}

		if err := carts.Touch(ctx, c.ID); err != nil {
			return err
		}

		view = c.View()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, customer.ID)
	s.logger.Info("cart item added", "customer_id", customer.ID, "product_id", product.ID, "quantity", quantity)
	return &view, nil
}

// UpdateItemQuantity sets a line's quantity and keeps the price snapshot taken when the
// line was added.
func (s *Service) UpdateItemQuantity(ctx context.Context, email, lineID string, quantity int) (*domain.CartView, error) {
	if quantity < 1 {
		return nil, domain.InvalidArgument("quantity must be at least 1")
	}

	return s.mutateLine(ctx, email, lineID, func(carts *CartRepository, c *domain.Cart, line *domain.CartLine) error {
		product, err := s.products.FindProduct(ctx, line.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return domain.NotFound("product %s not found", line.ProductID)
		}
		if quantity > product.Stock {
			return domain.InsufficientStock(product.Name, product.Stock, quantity)
		}

		line.Quantity = quantity
		line.RecomputeLineTotal()
		return carts.UpdateLine(ctx, line)
	})
}

func (s *Service) RemoveItem(ctx context.Context, email, lineID string) (*domain.CartView, error) {
	return s.mutateLine(ctx, email, lineID, func(carts *CartRepository, c *domain.Cart, line *domain.CartLine) error {
		removed := line.ID
		if err := carts.DeleteLine(ctx, removed); err != nil {
			return err
		}

		kept := make([]domain.CartLine, 0, len(c.Lines))
		for _, l := range c.Lines {
			if l.ID != removed {
				kept = append(kept, l)
			}
		}
		c.Lines = kept
		return nil
	})
}

// mutateLine locks the caller's OPEN cart and hands fn the line, which must belong to it.
func (s *Service) mutateLine(ctx context.Context, email, lineID string, fn func(*CartRepository, *domain.Cart, *domain.CartLine) error) (*domain.CartView, error) {
	customer, err := s.customers.Resolve(ctx, email)
	if err != nil {
		return nil, err
	}

	var view domain.CartView
	err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		carts := s.carts.WithTx(tx)

		c, err := carts.LockOpenCart(ctx, customer.ID)
		if err != nil {
			return err
		}

		found, err := carts.FindLine(ctx, lineID)
		if err != nil {
			return err
		}
		if found == nil {
			return domain.NotFound("cart line %s not found", lineID)
		}
		if c == nil || found.CartID != c.ID {
			return domain.InvalidState("cart line %s does not belong to your open cart", lineID)
		}

		line := c.LineForProduct(found.ProductID)
		if line == nil {
			return domain.NotFound("cart line %s not found", lineID)
		}

		if err := fn(carts, c, line); err != nil {
			return err
		}
		if err := carts.Touch(ctx, c.ID); err != nil {
			return err
		}

		view = c.View()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Invalidate(ctx, customer.ID)
	return &view, nil
}

// Invalidate drops the cached cart. Failures only cost a stale read until the TTL expires.
func (s *Service) Invalidate(ctx context.Context, customerID string) {
	if err := s.cache.Delete(ctx, customerID); err != nil {
		s.logger.Warn("cart cache invalidation failed", "error", err, "customer_id", customerID)
	}
}
