package cart

import (
	"context"
	"errors"
	"fmt"

	domcatalog "github.com/smartpos/sale-engine/internal/domain/catalog"
	domain "github.com/smartpos/sale-engine/internal/domain/cart"
	"github.com/smartpos/sale-engine/internal/observability"
	"github.com/smartpos/sale-engine/internal/observability/logctx"
)

const componentCartService = "cart_service"

// Service is the pricing and cart resolver: it validates line items against
// catalog state, snapshots prices, and computes totals. It never touches
// stock; reservation is the coordinator's job at submit time.
type Service struct {
	carts   domain.Repository
	catalog domcatalog.Catalog
	idGen   IDGenerator
	calc    Calculator
	log     observability.Logger
}

func NewService(
	carts domain.Repository,
	catalog domcatalog.Catalog,
	idGen IDGenerator,
	calc Calculator,
	logger observability.Logger,
) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Service{
		carts:   carts,
		catalog: catalog,
		idGen:   idGen,
		calc:    calc,
		log:     logger.With(observability.F("component", componentCartService)),
	}
}

// Calculator exposes the pricing rules so the submit coordinator prices the
// same cart the same way.
func (s *Service) Calculator() Calculator { return s.calc }

// BeginSale opens a fresh cart owned by the acting cashier. The engine trusts
// the identity it is given; authorization happens at the gateway.
func (s *Service) BeginSale(ctx context.Context, cashierID string) (*domain.Cart, error) {
	if cashierID == "" {
		return nil, errors.New("cart: cashier id is required")
	}

	c := domain.New(s.idGen.NewID(), cashierID)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: save: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("cart_opened",
		observability.F("cart_id", c.ID),
		observability.F("cashier_id", cashierID),
	)
	return c, nil
}

// AddLine validates the product against the catalog, snapshots its current
// unit price, and appends it to the cart, merging lines for the same product.
func (s *Service) AddLine(ctx context.Context, cartID, productID string, qty int) (*domain.Cart, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := c.AddLine(product.ID, product.Name, qty, product.UnitPrice); err != nil {
		return nil, err
	}
	if err := s.carts.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: update: %w", err)
	}

	logctx.FromOr(ctx, s.log).Debug("cart_line_added",
		observability.F("cart_id", c.ID),
		observability.F("product_id", productID),
		observability.F("quantity", qty),
	)
	return c, nil
}

func (s *Service) RemoveLine(ctx context.Context, cartID, productID string) (*domain.Cart, error) {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if err := c.RemoveLine(productID); err != nil {
		return nil, err
	}
	if err := s.carts.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("cart: update: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, cartID string) (*domain.Cart, error) {
	return s.carts.Get(ctx, cartID)
}

// ComputeTotal prices the cart under the supplied discount rules. Read-only.
func (s *Service) ComputeTotal(ctx context.Context, cartID string, rules ...DiscountRule) (Totals, error) {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return Totals{}, err
	}
	return s.calc.Totals(c.Lines, rules...), nil
}
