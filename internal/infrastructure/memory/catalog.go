package memory

import (
	"context"
	"sync"

	domain "github.com/smartpos/sale-engine/internal/domain/catalog"
)

// Catalog is an in-memory stand-in for the external catalog service.
type Catalog struct {
	mu       sync.RWMutex
	products map[string]*domain.Product
}

func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[string]*domain.Product),
	}
}

func (c *Catalog) Put(ctx context.Context, product *domain.Product) error {
	_ = ctx
	if product == nil || product.ID == "" {
		return domain.ErrProductNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.products[product.ID] = cloneProduct(product)
	return nil
}

func (c *Catalog) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	_ = ctx

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productID]
	if !ok || !p.Active {
		return nil, domain.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func cloneProduct(p *domain.Product) *domain.Product {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
