package stock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("stock: product not tracked")
	ErrInvalidQuantity   = errors.New("stock: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("stock: insufficient stock")
	ErrUnknownToken      = errors.New("stock: unknown reservation token")
)

// InsufficientStockError reports which product could not be reserved and by
// how much the request exceeded availability. It matches ErrInsufficientStock
// under errors.Is.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock: insufficient stock for %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// Item is the authoritative per-product stock record. Quantity on hand is
// mutated only through Ledger operations and never goes negative.
type Item struct {
	ProductID    string
	OnHand       int
	ReorderLevel int
	UpdatedAt    time.Time
}

// IsLowStock is derived on read, never stored.
func (i Item) IsLowStock() bool {
	return i.OnHand <= i.ReorderLevel
}

// Reservation is a temporary hold tied to one in-flight sale. It exists only
// between Reserve and Commit/Release.
type Reservation struct {
	Token     string
	ProductID string
	Quantity  int
	CreatedAt time.Time
}

// CommitResult describes the durable effect of committing a reservation.
// CrossedLowStock is true only on the commit that first moved the product
// at or below its reorder level, so callers can emit the alert exactly once.
type CommitResult struct {
	ProductID       string
	Quantity        int
	OnHand          int
	CrossedLowStock bool
}

// Ledger owns quantity-on-hand. Reserve/Commit/Release on one product are
// serialized against each other; operations on different products do not
// block each other.
type Ledger interface {
	// InitProduct registers a product with its starting stock and reorder level.
	InitProduct(ctx context.Context, productID string, onHand, reorderLevel int) error

	// Reserve atomically checks available = on hand - active reservations and
	// holds qty when available >= qty. Fails with *InsufficientStockError
	// without side effects otherwise.
	Reserve(ctx context.Context, productID string, qty int) (token string, err error)

	// Commit durably decrements on-hand by the reserved quantity and discards
	// the reservation. Committing an already-committed token is a no-op that
	// returns the original result with CrossedLowStock cleared.
	Commit(ctx context.Context, token string) (CommitResult, error)

	// Release discards the reservation without touching on-hand quantity.
	// Releasing an already-committed token is a no-op.
	Release(ctx context.Context, token string) error

	// Increase adds qty back to on-hand. Used by void and by the compensating
	// rollback after a failed sale persist. Returns the new on-hand quantity.
	Increase(ctx context.Context, productID string, qty int) (int, error)

	Item(ctx context.Context, productID string) (Item, error)
	IsLowStock(ctx context.Context, productID string) (bool, error)
	LowStockProducts(ctx context.Context) ([]string, error)
}
