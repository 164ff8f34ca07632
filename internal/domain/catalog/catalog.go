package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("catalog: product not found")

// Product is the catalog view the engine consumes. Catalog CRUD lives
// outside the engine; only identity, name and the current unit price are
// read here, and the price is snapshotted into cart lines at add time.
type Product struct {
	ID         string
	Name       string
	CategoryID string
	UnitPrice  decimal.Decimal
	Active     bool
	UpdatedAt  time.Time
}

// Catalog is the read-only port to the external catalog service.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (*Product, error)
}
